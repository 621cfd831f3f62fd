// Package retry holds the backoff policy shared by startup connections and
// background tasks.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"agentforge/chat-api/internal/utils/platformerrors"
)

// Backoff names how the delay grows between attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// ParseBackoff accepts the config spelling of a backoff, case-insensitively.
func ParseBackoff(s string) (Backoff, error) {
	switch b := Backoff(strings.ToLower(strings.TrimSpace(s))); b {
	case BackoffFixed, BackoffLinear, BackoffExponential:
		return b, nil
	case "":
		return BackoffFixed, nil
	default:
		return "", fmt.Errorf("unknown backoff %q", s)
	}
}

// Policy bounds how often and how quickly a failing operation is retried.
// MaxRetries counts retries after the first attempt.
type Policy struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffStrategy Backoff
	// JitterFactor spreads each delay by up to this fraction in either direction.
	JitterFactor float64
}

// DefaultPolicy is used for infrastructure connections at startup.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		BackoffStrategy: BackoffExponential,
		JitterFactor:    0.25,
	}
}

// FixedPolicy retries maxRetries times, waiting delay each time.
func FixedPolicy(maxRetries int, delay time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, InitialDelay: delay, MaxDelay: delay, BackoffStrategy: BackoffFixed}
}

// NoRetryPolicy never retries.
func NoRetryPolicy() Policy {
	return Policy{}
}

// Delay is the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.InitialDelay <= 0 {
		return 0
	}

	delay := p.InitialDelay
	switch p.BackoffStrategy {
	case BackoffLinear:
		delay = p.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		for i := 1; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				break
			}
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.JitterFactor > 0 {
		spread := float64(delay) * p.JitterFactor * (rand.Float64()*2 - 1)
		delay = max(time.Duration(float64(delay)+spread), 0)
	}
	return delay
}

// Exhausted reports whether no retry is left after attempts tries.
func (p Policy) Exhausted(attempts int) bool {
	return attempts > p.MaxRetries
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked Permanent or is a platform error
// caused by the request itself rather than by a transient condition.
func IsPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	if platformErr := platformerrors.GetPlatformError(err); platformErr != nil {
		switch platformErr.Type {
		case platformerrors.ErrorTypeValidation, platformerrors.ErrorTypeNotFound,
			platformerrors.ErrorTypeForbidden, platformerrors.ErrorTypeUnauthorized,
			platformerrors.ErrorTypePaymentRequired:
			return true
		}
	}
	return false
}

// Do runs fn until it succeeds, fails permanently or the policy is exhausted.
// attempt starts at 0.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil || IsPermanent(lastErr) || p.Exhausted(attempt+1) {
			return lastErr
		}

		timer := time.NewTimer(p.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
