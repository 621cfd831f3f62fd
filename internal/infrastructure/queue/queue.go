// Package queue stores background tasks for the worker pool.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Task statuses.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Task represents a background task to be processed.
type Task struct {
	ID       string
	Kind     string
	Payload  json.RawMessage
	Attempts int
	RunAfter time.Time
	QueuedAt time.Time
}

// TaskQueue defines the interface for task queue operations.
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(ctx context.Context, task *Task) error

	// Dequeue claims the oldest runnable task, marking it in progress and
	// counting the attempt. It returns nil when nothing is runnable.
	Dequeue(ctx context.Context) (*Task, error)

	// MarkCompleted updates task status to completed
	MarkCompleted(ctx context.Context, taskID string) error

	// MarkFailed updates task status to failed
	MarkFailed(ctx context.Context, taskID string, err error) error

	// Requeue returns a claimed task to the queue, runnable after runAfter.
	Requeue(ctx context.Context, taskID string, runAfter time.Time, err error) error

	// GetQueueDepth returns the number of queued tasks
	GetQueueDepth(ctx context.Context) (int64, error)
}
