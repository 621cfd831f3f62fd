package dbschema

import (
	"time"

	"gorm.io/datatypes"
)

// Task is a queued background job.
type Task struct {
	ID          string         `gorm:"type:varchar(64);primaryKey"`
	Kind        string         `gorm:"type:varchar(64);not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	Status      string         `gorm:"type:varchar(16);not null;default:'queued'"`
	Attempts    int            `gorm:"not null;default:0"`
	LastError   string         `gorm:"type:text"`
	RunAfter    time.Time      `gorm:"not null"`
	QueuedAt    time.Time      `gorm:"not null"`
	StartedAt   *time.Time
	CompletedAt *time.Time
}
