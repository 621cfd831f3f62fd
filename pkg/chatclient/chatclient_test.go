package chatclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/domain/message"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/pkg/chatclient"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"authentication required","type":"unauthorized_error","code":"abc"}}`))
			return
		}
		var req chatclient.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Chat-Id", req.ChatID)
		enc := stream.NewEncoder(w)
		for _, ev := range []stream.Event{
			stream.Start{MessageID: "m1"},
			stream.TextDelta{Text: "echo: "},
			stream.TextDelta{Text: req.Messages[0].Text()},
			stream.Finish{FinishReason: stream.FinishStop},
		} {
			require.NoError(t, enc.Encode(ev))
		}
	})
	mux.HandleFunc("/v1/me/model", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		if body.Model != "fast" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"not_found_error","request_id":"r1"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"fast","name":"Fast","provider":"openai","tier":"free"}`))
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"fast","name":"Fast"},{"id":"smart","name":"Smart"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func userMessage(text string) message.Message {
	return message.Message{ID: "u1", Role: message.RoleUser, Parts: []message.Part{&message.TextPart{Text: text}}}
}

func TestStreamChat(t *testing.T) {
	srv := newServer(t)
	client := chatclient.New(srv.URL, "tok", 5*time.Second)

	cs, err := client.StreamChat(context.Background(), chatclient.ChatRequest{ChatID: "c1", Messages: []message.Message{userMessage("hi")}})
	require.NoError(t, err)
	defer cs.Close()
	assert.Equal(t, "c1", cs.ChatID)

	asm := message.NewAssembler("", "c1")
	msg, err := asm.Consume(context.Background(), cs)
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, message.StatusDone, msg.Status)
	assert.Equal(t, "echo: hi", msg.Text())

	_, err = cs.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamChat_RejectedBeforeStreaming(t *testing.T) {
	srv := newServer(t)
	client := chatclient.New(srv.URL, "wrong", 5*time.Second)

	_, err := client.StreamChat(context.Background(), chatclient.ChatRequest{ChatID: "c1", Messages: []message.Message{userMessage("hi")}})
	var apiErr *chatclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized_error", apiErr.Type)
	assert.Equal(t, "abc", apiErr.Code)
}

func TestSelectModel_OptimisticRollback(t *testing.T) {
	srv := newServer(t)
	client := chatclient.New(srv.URL, "tok", 5*time.Second)
	ctx := context.Background()

	models, err := client.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)

	selected := chatclient.NewOptimistic("smart")
	commit := func(ctx context.Context, id string) error {
		_, err := client.SelectModel(ctx, id)
		return err
	}

	err = selected.Apply(ctx, "missing", commit)
	var apiErr *chatclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "r1", apiErr.RequestID)
	assert.Equal(t, "smart", selected.Value())
	assert.False(t, selected.Pending())

	require.NoError(t, selected.Apply(ctx, "fast", commit))
	assert.Equal(t, "fast", selected.Confirmed())
}

func TestOptimistic(t *testing.T) {
	o := chatclient.NewOptimistic(1)
	o.Propose(2)
	assert.Equal(t, 2, o.Value())
	assert.Equal(t, 1, o.Confirmed())
	assert.True(t, o.Pending())

	assert.Equal(t, 1, o.Rollback())
	assert.Equal(t, 1, o.Value())

	o.Propose(3)
	o.Confirm()
	assert.Equal(t, 3, o.Value())
	assert.False(t, o.Pending())

	o.Confirm()
	assert.Equal(t, 3, o.Confirmed())
}
