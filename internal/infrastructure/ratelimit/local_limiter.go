package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// LocalLimiter keeps one token bucket per key, evicting idle keys.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets *lru.Cache
	limit   int
	every   rate.Limit
}

// NewLocalLimiter allows bursts of limit that refill over window.
func NewLocalLimiter(limit int, window time.Duration, maxKeys int) (*LocalLimiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	cache, err := lru.New(maxKeys)
	if err != nil {
		return nil, err
	}
	return &LocalLimiter{
		buckets: cache,
		limit:   limit,
		every:   rate.Every(window / time.Duration(limit)),
	}, nil
}

// Allow implements Limiter.
func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	var limiter *rate.Limiter
	if v, ok := l.buckets.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.every, l.limit)
		l.buckets.Add(key, limiter)
	}
	l.mu.Unlock()

	now := time.Now()
	r := limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, Limit: l.limit, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Limit: l.limit, Remaining: int(limiter.TokensAt(now))}, nil
}
