package llmprovider_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/llm/llmtest"
	"agentforge/chat-api/internal/infrastructure/llmprovider"
)

func TestLoadCatalog_Default(t *testing.T) {
	entries, err := llmprovider.LoadCatalog("")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.NotEmpty(t, e.UpstreamModel, e.ID)
	}
}

func TestParseCatalog(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "minimal", yaml: "models:\n  - id: m1\n"},
		{name: "empty", yaml: "models: []\n", wantErr: "empty"},
		{name: "missing id", yaml: "models:\n  - name: x\n", wantErr: "id is required"},
		{name: "duplicate", yaml: "models:\n  - id: m1\n  - id: m1\n", wantErr: "duplicate"},
		{name: "bad tier", yaml: "models:\n  - id: m1\n    tier: gold\n", wantErr: "unknown tier"},
		{name: "bad price", yaml: "models:\n  - id: m1\n    pricePer1kInput: cheap\n", wantErr: "input price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := llmprovider.ParseCatalog([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "m1", entries[0].UpstreamModel)
			assert.Equal(t, "free", entries[0].Tier)
		})
	}
}

func TestCatalogResolver(t *testing.T) {
	entries, err := llmprovider.ParseCatalog([]byte(`
models:
  - id: m1
    upstreamModel: upstream-1
    tier: pro
    pricePer1kInput: "0.5"
    pricePer1kOutput: "1"
`))
	require.NoError(t, err)

	built := 0
	factory := func(entry llmprovider.ModelEntry) (llm.Backend, error) {
		built++
		return llmtest.NewBackend(), nil
	}
	r, err := llmprovider.NewCatalogResolver(entries, factory, 4, zerolog.Nop())
	require.NoError(t, err)

	_, info, err := r.Resolve(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "upstream-1", info.UpstreamModel)
	assert.Equal(t, "pro", info.Tier)
	assert.True(t, info.PricePer1kInput.Equal(decimal.RequireFromString("0.5")))

	_, _, err = r.Resolve(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, built, "backend is cached")

	_, _, err = r.Resolve(context.Background(), "nope")
	assert.True(t, errors.Is(err, llm.ErrModelNotFound))

	assert.Len(t, r.Models(), 1)
}

func sse(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestOpenAIBackend_Stream(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		sse(w,
			`{"id":"1","object":"chat.completion.chunk","model":"up","choices":[{"index":0,"delta":{"role":"assistant","reasoning_content":"hmm"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"up","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"up","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"calculator","arguments":"{\"expr"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"up","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"up","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`,
		)
	}))
	defer srv.Close()

	backend := llmprovider.NewOpenAIBackend(llmprovider.NewClient(srv.URL+"/v1", "key", 0), "up", llm.RuneCounter{})
	s, err := backend.Stream(context.Background(), llm.Request{
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}},
		Tools:    []llm.ToolDefinition{{Name: "calculator", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	require.NoError(t, err)
	defer s.Close()

	var text, reasoning, args strings.Builder
	var usage *llm.Usage
	var finish string
	for {
		d, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		text.WriteString(d.Content)
		reasoning.WriteString(d.Reasoning)
		for _, tc := range d.ToolCalls {
			assert.Equal(t, 0, tc.Index)
			args.WriteString(tc.Arguments)
		}
		if d.FinishReason != "" {
			finish = d.FinishReason
		}
		if d.Usage != nil {
			usage = d.Usage
		}
	}

	assert.Equal(t, "Hel", text.String())
	assert.Equal(t, "hmm", reasoning.String())
	assert.Equal(t, `{"expr`, args.String())
	assert.Equal(t, "tool_calls", finish)
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.PromptTokens)
	assert.Equal(t, 5, usage.CompletionTokens)

	assert.Equal(t, "up", got["model"])
	assert.Equal(t, true, got["stream"])
	assert.NotNil(t, got["tools"])
}

func TestOpenAIBackend_StreamEstimatesMissingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse(w, `{"id":"1","object":"chat.completion.chunk","model":"up","choices":[{"index":0,"delta":{"content":"12345678"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	backend := llmprovider.NewOpenAIBackend(llmprovider.NewClient(srv.URL+"/v1", "key", 0), "up", llm.RuneCounter{})
	s, err := backend.Stream(context.Background(), llm.Request{Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	var usage *llm.Usage
	for {
		d, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if d.Usage != nil {
			usage = d.Usage
		}
	}
	require.NotNil(t, usage)
	assert.Equal(t, 2, usage.CompletionTokens)
	assert.Positive(t, usage.PromptTokens)
}

func TestOpenAIBackend_CompleteWithSchema(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","model":"up","choices":[{"index":0,"message":{"role":"assistant","content":"{\"code\":\"x\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	}))
	defer srv.Close()

	backend := llmprovider.NewOpenAIBackend(llmprovider.NewClient(srv.URL+"/v1", "key", 0), "up", nil)
	out, err := backend.Complete(context.Background(), llm.Request{
		Messages:       []llm.ChatMessage{{Role: llm.RoleUser, Content: "code"}},
		ResponseFormat: &llm.ResponseFormat{Name: "code", Schema: json.RawMessage(`{"type":"object","properties":{"code":{"type":"string"}},"required":["code"]}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"code":"x"}`, out.Content)
	assert.Equal(t, 4, out.Usage.CompletionTokens)

	format, ok := got["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "code", schema["name"])
	assert.Equal(t, true, schema["strict"])
}
