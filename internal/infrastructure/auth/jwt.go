// Package auth validates bearer tokens and maps them to domain sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	domainauth "agentforge/chat-api/internal/domain/auth"
)

// Config selects the key source: a JWKS URL (RS256) or a shared secret (HS256).
type Config struct {
	JWKSURL      string
	HMACSecret   string
	Issuer       string
	Audience     string
	RefreshEvery time.Duration
	ClockSkew    time.Duration
}

// JWTAuthenticator implements domain auth.Authenticator for bearer tokens.
type JWTAuthenticator struct {
	cfg     Config
	jwks    atomic.Pointer[keyfunc.JWKS]
	lastErr atomic.Value
	log     zerolog.Logger
}

type lastErrWrap struct{ Err error }

const (
	jwksInitialRetryInterval   = time.Second
	jwksInitialRetryMaxBackoff = 10 * time.Second
	jwksInitialRetryTimeout    = 2 * time.Minute
)

// NewJWTAuthenticator builds an authenticator, fetching the JWKS when configured.
func NewJWTAuthenticator(ctx context.Context, cfg Config, log zerolog.Logger) (*JWTAuthenticator, error) {
	if cfg.JWKSURL == "" && cfg.HMACSecret == "" {
		return nil, errors.New("either a jwks url or an hmac secret is required")
	}
	a := &JWTAuthenticator{
		cfg: cfg,
		log: log.With().Str("component", "jwt-authenticator").Logger(),
	}
	a.lastErr.Store(lastErrWrap{})
	if cfg.JWKSURL != "" {
		if err := a.initJWKS(ctx); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *JWTAuthenticator) initJWKS(ctx context.Context) error {
	options := keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			a.lastErr.Store(lastErrWrap{Err: err})
			if err != nil {
				a.log.Error().Err(err).Msg("jwks refresh failed")
			}
		},
		RefreshInterval:   a.cfg.RefreshEvery,
		RefreshUnknownKID: true,
	}

	backoff := jwksInitialRetryInterval
	deadline := time.Now().Add(jwksInitialRetryTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for attempt := 1; ; attempt++ {
		jwks, err := keyfunc.Get(a.cfg.JWKSURL, options)
		if err == nil {
			a.lastErr.Store(lastErrWrap{})
			a.jwks.Store(jwks)
			return nil
		}
		a.log.Warn().Err(err).Str("jwks_url", a.cfg.JWKSURL).Int("attempt", attempt).Msg("initial jwks fetch failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("fetch jwks: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fetch jwks: %w", err)
		}
		backoff = min(backoff*2, jwksInitialRetryMaxBackoff)
	}
}

// GetSession returns nil without a bearer token and an error for invalid tokens.
func (a *JWTAuthenticator) GetSession(r *http.Request) (*domainauth.Session, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errors.New("authorization header must be a bearer token")
	}
	return a.Validate(strings.TrimSpace(raw))
}

// Validate parses a token and maps its claims to a session.
func (a *JWTAuthenticator) Validate(rawToken string) (*domainauth.Session, error) {
	opts := []jwt.ParserOption{jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithExpirationRequired()}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}

	var keyFunc jwt.Keyfunc
	if jwks := a.jwks.Load(); jwks != nil {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
		keyFunc = jwks.Keyfunc
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
		secret := []byte(a.cfg.HMACSecret)
		keyFunc = func(*jwt.Token) (any, error) { return secret, nil }
	}

	claims := jwt.MapClaims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(rawToken, claims, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("sub claim missing")
	}
	email, _ := claims["email"].(string)
	tier, _ := claims["tier"].(string)
	if tier == "" {
		tier = domainauth.TierFree
	}
	return &domainauth.Session{UserID: sub, Email: email, Tier: tier}, nil
}

// Ready reports whether the key source is usable.
func (a *JWTAuthenticator) Ready() bool {
	if a.cfg.JWKSURL == "" {
		return true
	}
	if a.jwks.Load() == nil {
		return false
	}
	if wrap, ok := a.lastErr.Load().(lastErrWrap); ok && wrap.Err != nil {
		return false
	}
	return true
}

// IssueHMAC signs a token for userID with the shared secret. Used by local
// tooling and tests.
func IssueHMAC(secret, userID, email, tier string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"tier":  tier,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
