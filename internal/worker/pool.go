// Package worker runs queued background tasks such as chat titling.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/domain/retry"
	"agentforge/chat-api/internal/infrastructure/metrics"
	"agentforge/chat-api/internal/infrastructure/observability"
	"agentforge/chat-api/internal/infrastructure/queue"
)

// Handler processes one task attempt.
type Handler func(ctx context.Context, task queue.Task) error

// TaskError reports a failed attempt. Final is set when no retry follows.
type TaskError struct {
	TaskID  string
	Kind    string
	Attempt int
	Final   bool
	Err     error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("task %s (%s) attempt %d: %v", e.TaskID, e.Kind, e.Attempt, e.Err)
}

func (e TaskError) Unwrap() error { return e.Err }

// Config contains worker pool configuration.
type Config struct {
	WorkerCount  int
	PollInterval time.Duration
	TaskTimeout  time.Duration
	Retry        retry.Policy
}

// Pool manages multiple background workers.
type Pool struct {
	queue    queue.TaskQueue
	handlers map[string]Handler
	cfg      Config
	tracer   *observability.TaskTracer
	log      zerolog.Logger

	workers []*Worker
	wake    chan struct{}
	errs    chan TaskError
	wg      sync.WaitGroup
	stop    chan struct{}
	once    sync.Once
}

// NewPool creates a new worker pool.
func NewPool(q queue.TaskQueue, cfg Config, tracer *observability.TaskTracer, log zerolog.Logger) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = time.Minute
	}
	if tracer == nil {
		tracer = observability.NewTaskTracer(nil)
	}
	return &Pool{
		queue:    q,
		handlers: make(map[string]Handler),
		cfg:      cfg,
		tracer:   tracer,
		log:      log,
		wake:     make(chan struct{}, 1),
		errs:     make(chan TaskError, 64),
		stop:     make(chan struct{}),
	}
}

// Register installs the handler for a task kind. Call before Start.
func (p *Pool) Register(kind string, h Handler) {
	p.handlers[kind] = h
}

// Errors delivers failed attempts. Errors are dropped when nobody reads.
func (p *Pool) Errors() <-chan TaskError {
	return p.errs
}

// Notify wakes an idle worker without waiting for the next poll.
func (p *Pool) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start initializes and starts all workers.
func (p *Pool) Start(ctx context.Context) {
	poolLog := p.log.With().Str("component", "worker-pool").Logger()
	poolLog.Info().Int("worker_count", p.cfg.WorkerCount).Msg("starting worker pool")

	p.workers = make([]*Worker, p.cfg.WorkerCount)
	for i := range p.workers {
		w := newWorker(i+1, p)
		p.workers[i] = w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(ctx)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.watchDepth(ctx)
	}()
}

// Stop signals all workers and waits for in-flight tasks.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stop) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	log := p.log.With().Str("component", "worker-pool").Logger()
	select {
	case <-done:
		log.Info().Msg("all workers stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("worker pool shutdown timed out")
	}
}

// GetQueueDepth returns the current queue depth.
func (p *Pool) GetQueueDepth(ctx context.Context) (int64, error) {
	return p.queue.GetQueueDepth(ctx)
}

func (p *Pool) watchDepth(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval * 5)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			if depth, err := p.queue.GetQueueDepth(ctx); err == nil {
				metrics.QueueDepth.Set(float64(depth))
			}
		}
	}
}

func (p *Pool) report(te TaskError) {
	select {
	case p.errs <- te:
	default:
	}
}
