package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"agentforge/chat-api/internal/infrastructure/database/dbschema"
)

// PostgresQueue implements TaskQueue on the tasks table.
type PostgresQueue struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewPostgresQueue creates a new PostgreSQL-backed task queue.
func NewPostgresQueue(db *gorm.DB, log zerolog.Logger) *PostgresQueue {
	return &PostgresQueue{
		db:  db,
		log: log.With().Str("component", "postgres-queue").Logger(),
	}
}

// Enqueue inserts a queued task row.
func (q *PostgresQueue) Enqueue(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.QueuedAt.IsZero() {
		task.QueuedAt = now
	}
	if task.RunAfter.IsZero() {
		task.RunAfter = now
	}
	row := dbschema.Task{
		ID:       task.ID,
		Kind:     task.Kind,
		Payload:  datatypes.JSON(task.Payload),
		Status:   StatusQueued,
		RunAfter: task.RunAfter,
		QueuedAt: task.QueuedAt,
	}
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Dequeue claims the next runnable task using FOR UPDATE SKIP LOCKED so
// concurrent workers never receive the same row.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	var claimed *Task
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row dbschema.Task
		err := tx.Raw(
			"SELECT * FROM chat_api.tasks WHERE status = ? AND run_after <= ? ORDER BY queued_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED",
			StatusQueued, time.Now().UTC(),
		).Scan(&row).Error
		if err != nil {
			return err
		}
		if row.ID == "" {
			return nil
		}

		now := time.Now().UTC()
		row.Attempts++
		if err := tx.Model(&dbschema.Task{}).Where("id = ?", row.ID).Updates(map[string]any{
			"status":     StatusInProgress,
			"attempts":   row.Attempts,
			"started_at": now,
		}).Error; err != nil {
			return err
		}

		claimed = &Task{
			ID:       row.ID,
			Kind:     row.Kind,
			Payload:  []byte(row.Payload),
			Attempts: row.Attempts,
			RunAfter: row.RunAfter,
			QueuedAt: row.QueuedAt,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue task: %w", err)
	}
	return claimed, nil
}

// MarkCompleted updates the task status to completed.
func (q *PostgresQueue) MarkCompleted(ctx context.Context, taskID string) error {
	now := time.Now().UTC()
	return q.update(ctx, taskID, "mark completed", map[string]any{
		"status":       StatusCompleted,
		"completed_at": now,
	})
}

// MarkFailed updates the task status to failed.
func (q *PostgresQueue) MarkFailed(ctx context.Context, taskID string, taskErr error) error {
	now := time.Now().UTC()
	return q.update(ctx, taskID, "mark failed", map[string]any{
		"status":       StatusFailed,
		"last_error":   errString(taskErr),
		"completed_at": now,
	})
}

// Requeue returns the task to the queue.
func (q *PostgresQueue) Requeue(ctx context.Context, taskID string, runAfter time.Time, taskErr error) error {
	return q.update(ctx, taskID, "requeue", map[string]any{
		"status":     StatusQueued,
		"last_error": errString(taskErr),
		"run_after":  runAfter.UTC(),
	})
}

// GetQueueDepth returns the number of queued tasks.
func (q *PostgresQueue) GetQueueDepth(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&dbschema.Task{}).
		Where("status = ?", StatusQueued).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("get queue depth: %w", err)
	}
	return count, nil
}

func (q *PostgresQueue) update(ctx context.Context, taskID, op string, fields map[string]any) error {
	result := q.db.WithContext(ctx).Model(&dbschema.Task{}).Where("id = ?", taskID).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("%s: %w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s: task not found: %s", op, taskID)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
