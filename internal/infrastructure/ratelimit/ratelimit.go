// Package ratelimit limits request rates per key, in redis when available
// and in process otherwise.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// FallbackLimiter consults primary and switches to secondary when primary errors.
type FallbackLimiter struct {
	primary   Limiter
	secondary Limiter
	log       zerolog.Logger
}

// NewFallbackLimiter wraps primary with secondary.
func NewFallbackLimiter(primary, secondary Limiter, log zerolog.Logger) *FallbackLimiter {
	return &FallbackLimiter{
		primary:   primary,
		secondary: secondary,
		log:       log.With().Str("component", "rate-limiter").Logger(),
	}
}

// Allow implements Limiter.
func (f *FallbackLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	d, err := f.primary.Allow(ctx, key)
	if err == nil {
		return d, nil
	}
	f.log.Warn().Err(err).Msg("primary rate limiter failed, using local limiter")
	return f.secondary.Allow(ctx, key)
}
