// Package dbschema holds the gorm row types and their domain conversions.
package dbschema

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/message"
)

// Chat is the persisted chat row.
type Chat struct {
	ID         string  `gorm:"type:varchar(64);primaryKey"`
	UserID     string  `gorm:"type:varchar(255);not null;index"`
	AgentID    *string `gorm:"type:varchar(64)"`
	Title      string  `gorm:"type:text;not null"`
	Visibility string  `gorm:"type:varchar(16);not null;default:'private'"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSchemaChat converts a domain chat into a row.
func NewSchemaChat(c *chat.Chat) *Chat {
	return &Chat{
		ID:         c.ID,
		UserID:     c.UserID,
		AgentID:    c.AgentID,
		Title:      c.Title,
		Visibility: string(c.Visibility),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// EtoD converts the row back to the domain representation.
func (c *Chat) EtoD() *chat.Chat {
	return &chat.Chat{
		ID:         c.ID,
		UserID:     c.UserID,
		AgentID:    c.AgentID,
		Title:      c.Title,
		Visibility: chat.Visibility(c.Visibility),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// Message stores parts as a type-tagged JSON array.
type Message struct {
	ID          string                                  `gorm:"type:varchar(64);primaryKey"`
	ChatID      string                                  `gorm:"type:varchar(64);not null;index"`
	Role        string                                  `gorm:"type:varchar(16);not null"`
	Parts       datatypes.JSON                          `gorm:"type:jsonb;not null"`
	Attachments datatypes.JSONSlice[message.Attachment] `gorm:"type:jsonb"`
	Annotations datatypes.JSONSlice[message.Annotation] `gorm:"type:jsonb"`
	Status      string                                  `gorm:"type:varchar(16);not null"`
	Error       string                                  `gorm:"type:text"`
	CreatedAt   time.Time
}

// NewSchemaMessage converts a domain message into a row.
func NewSchemaMessage(chatID string, m message.Message) (*Message, error) {
	parts, err := message.MarshalParts(m.Parts)
	if err != nil {
		return nil, fmt.Errorf("encode parts of message %s: %w", m.ID, err)
	}
	return &Message{
		ID:          m.ID,
		ChatID:      chatID,
		Role:        string(m.Role),
		Parts:       datatypes.JSON(parts),
		Attachments: datatypes.NewJSONSlice(m.Attachments),
		Annotations: datatypes.NewJSONSlice(m.Annotations),
		Status:      string(m.Status),
		Error:       m.Error,
		CreatedAt:   m.CreatedAt,
	}, nil
}

// EtoD converts the row back to the domain representation.
func (m *Message) EtoD() (message.Message, error) {
	parts, err := message.UnmarshalParts(m.Parts)
	if err != nil {
		return message.Message{}, fmt.Errorf("decode parts of message %s: %w", m.ID, err)
	}
	return message.Message{
		ID:          m.ID,
		ChatID:      m.ChatID,
		Role:        message.Role(m.Role),
		Parts:       parts,
		Attachments: []message.Attachment(m.Attachments),
		Annotations: []message.Annotation(m.Annotations),
		Status:      message.Status(m.Status),
		Error:       m.Error,
		CreatedAt:   m.CreatedAt,
	}, nil
}
