package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/retry"
	"agentforge/chat-api/internal/infrastructure/queue"
	"agentforge/chat-api/internal/infrastructure/redisstore"
)

// KindTitle is the task kind for chat titling.
const KindTitle = "title"

// Locker serializes work across replicas.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// TitleScheduler implements chat.TitleScheduler by enqueueing title tasks.
type TitleScheduler struct {
	queue  queue.TaskQueue
	notify func()
}

var _ chat.TitleScheduler = (*TitleScheduler)(nil)

// NewTitleScheduler enqueues on q and wakes pool when it is not nil.
func NewTitleScheduler(q queue.TaskQueue, pool *Pool) *TitleScheduler {
	s := &TitleScheduler{queue: q, notify: func() {}}
	if pool != nil {
		s.notify = pool.Notify
	}
	return s
}

// SubmitTitle enqueues the task. It is not bound to the request lifetime.
func (s *TitleScheduler) SubmitTitle(ctx context.Context, task chat.TitleTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode title task: %w", err)
	}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), &queue.Task{Kind: KindTitle, Payload: payload}); err != nil {
		return fmt.Errorf("enqueue title task: %w", err)
	}
	s.notify()
	return nil
}

// TitleHandler decodes title tasks and runs them through svc. With a locker,
// only one replica titles a given chat at a time.
func TitleHandler(svc *chat.TitleService, locker Locker, lockTTL time.Duration) Handler {
	return func(ctx context.Context, task queue.Task) error {
		var tt chat.TitleTask
		if err := json.Unmarshal(task.Payload, &tt); err != nil {
			return retry.Permanent(fmt.Errorf("decode title task: %w", err))
		}
		if locker == nil {
			return svc.Handle(ctx, tt)
		}
		err := locker.WithLock(ctx, "title:"+tt.ChatID, lockTTL, func(ctx context.Context) error {
			return svc.Handle(ctx, tt)
		})
		if errors.Is(err, redisstore.ErrLockHeld) {
			return nil
		}
		return err
	}
}
