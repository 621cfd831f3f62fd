package auth_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/infrastructure/auth"
)

func TestJWTAuthenticator_GetSession(t *testing.T) {
	const secret = "test-secret"
	a, err := auth.NewJWTAuthenticator(context.Background(), auth.Config{HMACSecret: secret}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, a.Ready())

	valid, err := auth.IssueHMAC(secret, "alice", "alice@example.com", domainauth.TierPro, time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueHMAC(secret, "alice", "", "", -time.Hour)
	require.NoError(t, err)
	forged, err := auth.IssueHMAC("other-secret", "mallory", "", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantUser string
		wantErr  bool
	}{
		{name: "anonymous", header: ""},
		{name: "valid token", header: "Bearer " + valid, wantUser: "alice"},
		{name: "expired token", header: "Bearer " + expired, wantErr: true},
		{name: "wrong signature", header: "Bearer " + forged, wantErr: true},
		{name: "not a bearer token", header: "Basic abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			session, err := a.GetSession(req)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, session)
				return
			}
			require.NoError(t, err)
			if tt.wantUser == "" {
				assert.Nil(t, session)
				return
			}
			require.NotNil(t, session)
			assert.Equal(t, tt.wantUser, session.UserID)
			assert.Equal(t, domainauth.TierPro, session.Tier)
			assert.Equal(t, "alice@example.com", session.Email)
		})
	}
}

func TestNewJWTAuthenticator_RequiresKeySource(t *testing.T) {
	_, err := auth.NewJWTAuthenticator(context.Background(), auth.Config{}, zerolog.Nop())
	assert.Error(t, err)
}
