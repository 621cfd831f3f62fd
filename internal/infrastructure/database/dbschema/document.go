package dbschema

import (
	"time"

	"gorm.io/datatypes"

	"agentforge/chat-api/internal/domain/document"
)

// Document is one persisted document version.
type Document struct {
	ID           string                                 `gorm:"type:varchar(64);primaryKey"`
	VersionIndex int                                    `gorm:"primaryKey;autoIncrement:false"`
	UserID       string                                 `gorm:"type:varchar(255);not null"`
	ChatID       *string                                `gorm:"type:varchar(64)"`
	Kind         string                                 `gorm:"type:varchar(16);not null"`
	Title        string                                 `gorm:"type:text;not null"`
	Content      string                                 `gorm:"type:text;not null"`
	Metadata     datatypes.JSONType[map[string]string] `gorm:"type:jsonb"`
	CreatedAt    time.Time
}

// NewSchemaDocument converts a domain document version into a row.
func NewSchemaDocument(d *document.Document) *Document {
	return &Document{
		ID:           d.ID,
		VersionIndex: d.VersionIndex,
		UserID:       d.UserID,
		ChatID:       d.ChatID,
		Kind:         string(d.Kind),
		Title:        d.Title,
		Content:      d.Content,
		Metadata:     datatypes.NewJSONType(d.Metadata),
		CreatedAt:    d.CreatedAt,
	}
}

// EtoD converts the row back to the domain representation.
func (d *Document) EtoD() *document.Document {
	return &document.Document{
		ID:           d.ID,
		UserID:       d.UserID,
		ChatID:       d.ChatID,
		Kind:         document.Kind(d.Kind),
		Title:        d.Title,
		Content:      d.Content,
		Metadata:     d.Metadata.Data(),
		VersionIndex: d.VersionIndex,
		CreatedAt:    d.CreatedAt,
	}
}
