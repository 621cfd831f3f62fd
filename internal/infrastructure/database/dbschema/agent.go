package dbschema

import (
	"time"

	"gorm.io/datatypes"

	"agentforge/chat-api/internal/domain/agent"
)

// Agent is the persisted agent row.
type Agent struct {
	ID           string                     `gorm:"type:varchar(64);primaryKey"`
	UserID       string                     `gorm:"type:varchar(255);not null;index"`
	Name         string                     `gorm:"type:varchar(255);not null"`
	Description  string                     `gorm:"type:text"`
	SystemPrompt string                     `gorm:"type:text"`
	ModelID      string                     `gorm:"type:varchar(128)"`
	Visibility   string                     `gorm:"type:varchar(16);not null;default:'private'"`
	Tools        datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	CreatedAt    time.Time
}

// NewSchemaAgent converts a domain agent into a row.
func NewSchemaAgent(a *agent.Agent) *Agent {
	return &Agent{
		ID:           a.ID,
		UserID:       a.UserID,
		Name:         a.Name,
		Description:  a.Description,
		SystemPrompt: a.SystemPrompt,
		ModelID:      a.ModelID,
		Visibility:   string(a.Visibility),
		Tools:        datatypes.NewJSONSlice(a.Tools),
		CreatedAt:    a.CreatedAt,
	}
}

// EtoD converts the row back to the domain representation.
func (a *Agent) EtoD() *agent.Agent {
	return &agent.Agent{
		ID:           a.ID,
		UserID:       a.UserID,
		Name:         a.Name,
		Description:  a.Description,
		SystemPrompt: a.SystemPrompt,
		ModelID:      a.ModelID,
		Visibility:   agent.Visibility(a.Visibility),
		Tools:        []string(a.Tools),
		CreatedAt:    a.CreatedAt,
	}
}
