package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/config"
	"agentforge/chat-api/internal/domain/agent"
	domainauth "agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/domain/billing"
	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/document"
	"agentforge/chat-api/internal/domain/llm/llmtest"
	"agentforge/chat-api/internal/domain/preference"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/internal/domain/tool"
	"agentforge/chat-api/internal/infrastructure/auth"
	"agentforge/chat-api/internal/infrastructure/memory"
	"agentforge/chat-api/internal/infrastructure/ratelimit"
	"agentforge/chat-api/internal/interfaces/httpserver"
	"agentforge/chat-api/internal/interfaces/httpserver/handlers/agenthandler"
	"agentforge/chat-api/internal/interfaces/httpserver/handlers/chathandler"
	"agentforge/chat-api/internal/interfaces/httpserver/handlers/documenthandler"
	"agentforge/chat-api/internal/interfaces/httpserver/handlers/modelhandler"
	"agentforge/chat-api/internal/interfaces/httpserver/middlewares"
	v1 "agentforge/chat-api/internal/interfaces/httpserver/routes/v1"
)

const testSecret = "test-secret"

type testServer struct {
	handler http.Handler
	backend *llmtest.Backend
}

type serverOptions struct {
	limiter ratelimit.Limiter
	checks  map[string]httpserver.ReadinessCheck
}

func newTestServer(t *testing.T, opts serverOptions, steps ...llmtest.Step) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()

	backend := llmtest.NewBackend(steps...)
	resolver := llmtest.NewResolver(backend, "m1")
	registry, err := tool.NewRegistry()
	require.NoError(t, err)
	generator := tool.NewOrchestrator(tool.NewExecutor(registry, tool.ExecutorConfig{}, log), 3, nil, log)

	chatRepo := memory.NewChatRepository()
	agents := agent.NewService(memory.NewAgentRepository())
	ledger := billing.NewLedger(memory.NewLedgerRepository(), decimal.NewFromInt(10), log)
	prefs := preference.NewService(memory.NewPreferenceRepository(), resolver, "m1")
	turns := chat.NewTurnOrchestrator(chatRepo, agents, resolver, generator, ledger, prefs, nil, chat.TurnConfig{DefaultModel: "m1"}, log)

	route := v1.NewV1Route(
		v1.NewChatRoute(chathandler.NewChatHandler(turns, chat.NewService(chatRepo), 8, log)),
		v1.NewDocumentRoute(documenthandler.NewDocumentHandler(document.NewService(memory.NewDocumentRepository(), resolver, log))),
		v1.NewAgentRoute(agenthandler.NewAgentHandler(agents)),
		v1.NewModelRoute(modelhandler.NewModelHandler(resolver, prefs, ledger)),
	)

	authenticator, err := auth.NewJWTAuthenticator(context.Background(), auth.Config{HMACSecret: testSecret}, log)
	require.NoError(t, err)

	cfg := &config.Config{CORSOrigins: []string{"*"}, ShutdownTimeout: time.Second}
	srv := httpserver.NewHTTPServer(cfg, route, authenticator, opts.limiter, nil, opts.checks, log)
	return &testServer{handler: srv.Handler(), backend: backend}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.IssueHMAC(testSecret, userID, userID+"@example.com", domainauth.TierFree, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func chatBody(chatID, model, text string) map[string]any {
	return map[string]any{
		"id":    chatID,
		"model": model,
		"messages": []map[string]any{{
			"id":    "u1",
			"role":  "user",
			"parts": []map[string]any{{"type": "text", "text": text}},
		}},
	}
}

func decodeEvents(t *testing.T, body []byte) []stream.Event {
	t.Helper()
	dec := stream.NewDecoder(bytes.NewReader(body))
	var events []stream.Event
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Type
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, serverOptions{checks: map[string]httpserver.ReadinessCheck{
		"database": func(context.Context) error { return errors.New("connection refused") },
	}})

	w := srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = srv.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = srv.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPostChat_StreamsTurnAndPersists(t *testing.T) {
	srv := newTestServer(t, serverOptions{}, llmtest.Step{Deltas: llmtest.Text("Hel", "lo")})

	w := srv.do(t, http.MethodPost, "/v1/chat", "alice", chatBody("c1", "m1", "hi"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1", w.Header().Get(middlewares.StreamHeader))
	assert.Equal(t, "c1", w.Header().Get(v1.ChatIDHeader))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))

	events := decodeEvents(t, w.Body.Bytes())
	require.NotEmpty(t, events)
	assert.IsType(t, stream.Start{}, events[0])
	assert.IsType(t, stream.Finish{}, events[len(events)-1])
	var text strings.Builder
	for _, ev := range events {
		if d, ok := ev.(stream.TextDelta); ok {
			text.WriteString(d.Text)
		}
	}
	assert.Equal(t, "Hello", text.String())

	w = srv.do(t, http.MethodGet, "/v1/chats/c1", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Chat     chat.Chat         `json:"chat"`
		Messages []json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "alice", got.Chat.UserID)
	assert.Len(t, got.Messages, 2)

	w = srv.do(t, http.MethodGet, "/v1/chats/c1", "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, http.MethodPatch, "/v1/chats/c1/visibility", "alice", map[string]string{"visibility": "public"})
	require.Equal(t, http.StatusOK, w.Code)
	w = srv.do(t, http.MethodGet, "/v1/chats/c1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/v1/chats", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"c1"`)
}

func TestPostChat_RejectsBeforeStreaming(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	tests := []struct {
		name     string
		userID   string
		body     any
		status   int
		wantType string
	}{
		{name: "anonymous", body: chatBody("c1", "m1", "hi"), status: http.StatusUnauthorized, wantType: "unauthorized_error"},
		{name: "unknown model", userID: "alice", body: chatBody("c1", "nope", "hi"), status: http.StatusNotFound, wantType: "not_found_error"},
		{name: "missing chat id", userID: "alice", body: chatBody("", "m1", "hi"), status: http.StatusBadRequest, wantType: "validation_error"},
		{name: "no messages", userID: "alice", body: map[string]any{"id": "c1"}, status: http.StatusBadRequest, wantType: "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, "/v1/chat", tt.userID, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Empty(t, w.Header().Get(middlewares.StreamHeader))
			assert.Equal(t, tt.wantType, errorType(t, w))
		})
	}
	assert.Empty(t, srv.backend.Requests())
}

func TestInvalidToken(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestModelsAndPreferences(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	w := srv.do(t, http.MethodGet, "/v1/models", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"m1"`)

	w = srv.do(t, http.MethodPut, "/v1/me/model", "alice", map[string]string{"model": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodPut, "/v1/me/model", "alice", map[string]string{"model": "m1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/v1/me/credits", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var credits struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &credits))
	assert.True(t, decimal.NewFromInt(10).Equal(credits.Balance))
}

func TestAgentsAndDocuments(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	w := srv.do(t, http.MethodPost, "/v1/agents", "alice", map[string]any{"name": "Helper", "visibility": "private"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created agent.Agent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = srv.do(t, http.MethodGet, "/v1/agents/"+created.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, http.MethodPost, "/v1/agents", "alice", map[string]any{"name": "x", "visibility": "everyone"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodGet, "/v1/documents/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodGet, "/v1/documents/missing/diff?version=1", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodGet, "/v1/documents/missing", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit(t *testing.T) {
	limiter, err := ratelimit.NewLocalLimiter(1, time.Minute, 100)
	require.NoError(t, err)
	srv := newTestServer(t, serverOptions{limiter: limiter})

	w := srv.do(t, http.MethodGet, "/v1/models", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/v1/models", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited_error", errorType(t, w))

	w = srv.do(t, http.MethodGet, "/v1/models", "bob", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
