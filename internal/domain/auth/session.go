// Package auth defines the caller identity consumed by the domain.
package auth

import (
	"context"
	"net/http"
)

// Entitlement tiers.
const (
	TierFree = "free"
	TierPro  = "pro"
)

// Session identifies an authenticated caller.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Tier   string `json:"tier"`
}

// Allows reports whether the session's tier may use a model of the given tier.
func (s *Session) Allows(modelTier string) bool {
	if modelTier == "" || modelTier == TierFree {
		return true
	}
	return s != nil && s.Tier == TierPro
}

// Authenticator resolves the session of an incoming request. A nil session
// with a nil error means the request is anonymous.
type Authenticator interface {
	GetSession(r *http.Request) (*Session, error)
}

type sessionKey struct{}

// WithSession stores s on ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
