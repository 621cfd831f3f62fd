// Package billing keeps a per-user credit ledger charged by model usage.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agentforge/chat-api/internal/utils/platformerrors"
)

// ErrInsufficientCredits is wrapped by Reserve when the balance is too low.
var ErrInsufficientCredits = errors.New("insufficient credits")

// EntryKind classifies ledger entries.
type EntryKind string

const (
	EntryGrant  EntryKind = "grant"
	EntryCharge EntryKind = "charge"
)

// Entry is one balance movement. Charges carry a negative amount.
type Entry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Kind      EntryKind       `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEntry stamps a new entry with an id and the current time.
func NewEntry(userID string, kind EntryKind, amount decimal.Decimal, reference string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	}
}

// Repository stores balances and entries.
type Repository interface {
	// EnsureAccount opens the account with initial credits if missing and returns the balance.
	EnsureAccount(ctx context.Context, userID string, initial decimal.Decimal) (decimal.Decimal, error)
	// AddEntry records entry and applies it to the balance atomically.
	AddEntry(ctx context.Context, entry Entry) (decimal.Decimal, error)
	ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Ledger applies credit rules on top of a Repository.
type Ledger struct {
	repo    Repository
	initial decimal.Decimal
	log     zerolog.Logger
}

// NewLedger creates a ledger granting initial credits to new accounts.
func NewLedger(repo Repository, initial decimal.Decimal, log zerolog.Logger) *Ledger {
	return &Ledger{
		repo:    repo,
		initial: initial,
		log:     log.With().Str("component", "billing-ledger").Logger(),
	}
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	balance, err := l.repo.EnsureAccount(ctx, userID, l.initial)
	if err != nil {
		return decimal.Zero, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load balance")
	}
	return balance, nil
}

// Reserve checks that the balance covers min before any generation cost is incurred.
func (l *Ledger) Reserve(ctx context.Context, userID string, min decimal.Decimal) error {
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if balance.LessThan(min) || !balance.IsPositive() {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypePaymentRequired,
			"insufficient credits", ErrInsufficientCredits, "5b9e1c47-0a3d-4f82-a6c1-7d2e8b4f9a30",
			map[string]any{"balance": balance.String()})
	}
	return nil
}

// Charge debits amount. Zero and negative amounts are ignored.
func (l *Ledger) Charge(ctx context.Context, userID string, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return nil
	}
	balance, err := l.repo.AddEntry(ctx, NewEntry(userID, EntryCharge, amount.Neg(), reference))
	if err != nil {
		return fmt.Errorf("charge %s: %w", userID, err)
	}
	l.log.Debug().
		Str("user_id", userID).
		Str("amount", amount.String()).
		Str("balance", balance.String()).
		Str("reference", reference).
		Msg("usage charged")
	return nil
}

// Grant credits amount to the user.
func (l *Ledger) Grant(ctx context.Context, userID string, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	if _, err := l.repo.EnsureAccount(ctx, userID, l.initial); err != nil {
		return decimal.Zero, fmt.Errorf("open account %s: %w", userID, err)
	}
	return l.repo.AddEntry(ctx, NewEntry(userID, EntryGrant, amount, reference))
}

// Entries returns the most recent ledger entries of the user.
func (l *Ledger) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.repo.ListEntries(ctx, userID, limit)
}
