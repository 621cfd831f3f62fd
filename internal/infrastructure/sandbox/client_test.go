package sandbox_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/infrastructure/sandbox"
)

func TestClient_Run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run_code", r.URL.Path)
		var req sandbox.RunRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "python", req.Language)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"Success","run_result":{"stdout":"2\n","stderr":"","return_code":0,"execution_time":0.25}}`))
	}))
	defer srv.Close()

	c := sandbox.NewClient(srv.URL+"/", time.Second)
	require.True(t, c.Enabled())
	out, err := c.Run(context.Background(), sandbox.RunRequest{Code: "print(1+1)", Language: "python"})
	require.NoError(t, err)
	assert.Equal(t, "Success", out.Status)
	assert.Equal(t, "2\n", out.Stdout)
	assert.Equal(t, 250, out.DurationMS)
	assert.Empty(t, out.Message)
}

func TestClient_Errors(t *testing.T) {
	disabled := sandbox.NewClient("", 0)
	assert.False(t, disabled.Enabled())
	_, err := disabled.Run(context.Background(), sandbox.RunRequest{Code: "x"})
	assert.ErrorIs(t, err, sandbox.ErrDisabled)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	_, err = sandbox.NewClient(srv.URL, time.Second).Run(context.Background(), sandbox.RunRequest{Code: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
