package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/domain/retry"
	"agentforge/chat-api/internal/infrastructure/metrics"
	"agentforge/chat-api/internal/infrastructure/queue"
)

// Worker processes background tasks from the queue.
type Worker struct {
	id   int
	pool *Pool
	log  zerolog.Logger
}

func newWorker(id int, pool *Pool) *Worker {
	return &Worker{
		id:   id,
		pool: pool,
		log:  pool.log.With().Int("worker_id", id).Logger(),
	}
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pool.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pool.stop:
			return
		case <-ticker.C:
		case <-w.pool.wake:
		}
		// Drain everything runnable before sleeping again.
		for w.processNextTask(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-w.pool.stop:
				return
			default:
			}
		}
	}
}

// processNextTask reports whether a task was claimed.
func (w *Worker) processNextTask(ctx context.Context) bool {
	task, err := w.pool.queue.Dequeue(ctx)
	if err != nil {
		w.log.Error().Err(err).Str("component", "worker").Msg("failed to dequeue task")
		return false
	}
	if task == nil {
		return false
	}

	log := w.log.With().
		Str("component", task.Kind+"-worker").
		Str("task_id", task.ID).
		Int("attempt", task.Attempts).
		Logger()

	metrics.WorkersBusy.Inc()
	defer metrics.WorkersBusy.Dec()

	start := time.Now()
	err = w.execute(ctx, *task)
	elapsed := time.Since(start)

	if err == nil {
		metrics.ObserveBackgroundTask(task.Kind, elapsed, nil, false)
		if markErr := w.pool.queue.MarkCompleted(ctx, task.ID); markErr != nil {
			log.Error().Err(markErr).Msg("failed to mark task completed")
		}
		log.Debug().Dur("elapsed", elapsed).Msg("task completed")
		return true
	}

	policy := w.pool.cfg.Retry
	final := policy.Exhausted(task.Attempts) || retry.IsPermanent(err)
	metrics.ObserveBackgroundTask(task.Kind, elapsed, err, final)
	w.pool.report(TaskError{TaskID: task.ID, Kind: task.Kind, Attempt: task.Attempts, Final: final, Err: err})

	if final {
		log.Error().Err(err).Msg("task failed permanently")
		if markErr := w.pool.queue.MarkFailed(ctx, task.ID, err); markErr != nil {
			log.Error().Err(markErr).Msg("failed to mark task failed")
		}
		return true
	}

	delay := policy.Delay(task.Attempts)
	log.Warn().Err(err).Dur("retry_in", delay).Msg("task failed, retrying")
	if markErr := w.pool.queue.Requeue(ctx, task.ID, time.Now().Add(delay), err); markErr != nil {
		log.Error().Err(markErr).Msg("failed to requeue task")
	}
	return true
}

func (w *Worker) execute(ctx context.Context, task queue.Task) error {
	handler, ok := w.pool.handlers[task.Kind]
	if !ok {
		return retry.Permanent(fmt.Errorf("no handler for task kind %q", task.Kind))
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.pool.cfg.TaskTimeout)
	defer cancel()

	return w.pool.tracer.Trace(taskCtx, task.Kind, task.ID, task.Attempts, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		return handler(ctx, task)
	})
}
