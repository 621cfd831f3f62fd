package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another worker")

// Locker runs functions under named redis mutexes.
type Locker struct {
	rs     *redsync.Redsync
	prefix string
	log    zerolog.Logger
}

// NewLocker creates a locker on client.
func NewLocker(client redis.UniversalClient, log zerolog.Logger) *Locker {
	return &Locker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: "chat-api:lock:",
		log:    log.With().Str("component", "redis-locker").Logger(),
	}
}

// WithLock runs fn while holding name. It does not wait: a held lock
// returns ErrLockHeld immediately.
func (l *Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(l.prefix+name, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return ErrLockHeld
		}
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			l.log.Error().Err(err).Str("lock", name).Msg("failed to unlock mutex")
		}
	}()
	return fn(ctx)
}
