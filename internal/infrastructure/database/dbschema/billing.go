package dbschema

import (
	"time"

	"github.com/shopspring/decimal"

	"agentforge/chat-api/internal/domain/billing"
)

// CreditAccount holds the running balance of one user.
type CreditAccount struct {
	UserID    string          `gorm:"type:varchar(255);primaryKey"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreditEntry is one ledger movement.
type CreditEntry struct {
	ID        string          `gorm:"type:varchar(64);primaryKey"`
	UserID    string          `gorm:"type:varchar(255);not null;index"`
	Kind      string          `gorm:"type:varchar(16);not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Reference string          `gorm:"type:varchar(255)"`
	CreatedAt time.Time
}

// NewSchemaCreditEntry converts a domain entry into a row.
func NewSchemaCreditEntry(e billing.Entry) *CreditEntry {
	return &CreditEntry{
		ID:        e.ID,
		UserID:    e.UserID,
		Kind:      string(e.Kind),
		Amount:    e.Amount,
		Reference: e.Reference,
		CreatedAt: e.CreatedAt,
	}
}

// EtoD converts the row back to the domain representation.
func (e *CreditEntry) EtoD() billing.Entry {
	return billing.Entry{
		ID:        e.ID,
		UserID:    e.UserID,
		Kind:      billing.EntryKind(e.Kind),
		Amount:    e.Amount,
		Reference: e.Reference,
		CreatedAt: e.CreatedAt,
	}
}

// UserPreference stores the selected model of a user.
type UserPreference struct {
	UserID    string `gorm:"type:varchar(255);primaryKey"`
	ModelID   string `gorm:"type:varchar(128);not null"`
	UpdatedAt time.Time
}
