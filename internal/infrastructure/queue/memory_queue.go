package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	task    Task
	status  string
	lastErr string
}

// MemoryQueue implements TaskQueue in process. Tasks are lost on restart.
type MemoryQueue struct {
	mu      sync.Mutex
	entries []*memoryEntry
	now     func() time.Time
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

// Enqueue adds a task to the queue.
func (q *MemoryQueue) Enqueue(_ context.Context, task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := q.now()
	if task.QueuedAt.IsZero() {
		task.QueuedAt = now
	}
	if task.RunAfter.IsZero() {
		task.RunAfter = now
	}
	q.entries = append(q.entries, &memoryEntry{task: *task, status: StatusQueued})
	return nil
}

// Dequeue claims the oldest runnable task.
func (q *MemoryQueue) Dequeue(_ context.Context) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var picked *memoryEntry
	for _, e := range q.entries {
		if e.status != StatusQueued || e.task.RunAfter.After(now) {
			continue
		}
		if picked == nil || e.task.QueuedAt.Before(picked.task.QueuedAt) {
			picked = e
		}
	}
	if picked == nil {
		return nil, nil
	}
	picked.status = StatusInProgress
	picked.task.Attempts++
	task := picked.task
	return &task, nil
}

// MarkCompleted updates task status to completed.
func (q *MemoryQueue) MarkCompleted(_ context.Context, taskID string) error {
	return q.set(taskID, func(e *memoryEntry) { e.status = StatusCompleted })
}

// MarkFailed updates task status to failed.
func (q *MemoryQueue) MarkFailed(_ context.Context, taskID string, taskErr error) error {
	return q.set(taskID, func(e *memoryEntry) {
		e.status = StatusFailed
		if taskErr != nil {
			e.lastErr = taskErr.Error()
		}
	})
}

// Requeue makes a claimed task runnable again after runAfter.
func (q *MemoryQueue) Requeue(_ context.Context, taskID string, runAfter time.Time, taskErr error) error {
	return q.set(taskID, func(e *memoryEntry) {
		e.status = StatusQueued
		e.task.RunAfter = runAfter
		if taskErr != nil {
			e.lastErr = taskErr.Error()
		}
	})
}

// GetQueueDepth returns the number of queued tasks.
func (q *MemoryQueue) GetQueueDepth(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, e := range q.entries {
		if e.status == StatusQueued {
			n++
		}
	}
	return n, nil
}

// Status reports the status and last error of a task.
func (q *MemoryQueue) Status(taskID string) (status, lastErr string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.task.ID == taskID {
			return e.status, e.lastErr, true
		}
	}
	return "", "", false
}

func (q *MemoryQueue) set(taskID string, fn func(*memoryEntry)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.task.ID == taskID {
			fn(e)
			if e.status != StatusQueued && e.status != StatusInProgress {
				q.prune()
			}
			return nil
		}
	}
	return fmt.Errorf("task not found: %s", taskID)
}

// prune drops settled entries beyond the retention window.
func (q *MemoryQueue) prune() {
	const keepSettled = 1000
	settled := 0
	for i := len(q.entries) - 1; i >= 0; i-- {
		s := q.entries[i].status
		if s == StatusCompleted || s == StatusFailed {
			settled++
			if settled > keepSettled {
				q.entries = append(q.entries[:i], q.entries[i+1:]...)
			}
		}
	}
}
