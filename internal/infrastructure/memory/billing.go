package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"agentforge/chat-api/internal/domain/billing"
)

// LedgerRepository implements billing.Repository in memory.
type LedgerRepository struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	entries  map[string][]billing.Entry
}

var _ billing.Repository = (*LedgerRepository)(nil)

// NewLedgerRepository creates an empty ledger.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		balances: make(map[string]decimal.Decimal),
		entries:  make(map[string][]billing.Entry),
	}
}

func (r *LedgerRepository) EnsureAccount(_ context.Context, userID string, initial decimal.Decimal) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if balance, ok := r.balances[userID]; ok {
		return balance, nil
	}
	r.balances[userID] = initial
	if initial.IsPositive() {
		r.entries[userID] = append(r.entries[userID], billing.NewEntry(userID, billing.EntryGrant, initial, "initial"))
	}
	return initial, nil
}

func (r *LedgerRepository) AddEntry(_ context.Context, entry billing.Entry) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, ok := r.balances[entry.UserID]
	if !ok {
		return decimal.Zero, fmt.Errorf("credit account %s not found", entry.UserID)
	}
	balance = balance.Add(entry.Amount)
	r.balances[entry.UserID] = balance
	r.entries[entry.UserID] = append(r.entries[entry.UserID], entry)
	return balance, nil
}

func (r *LedgerRepository) ListEntries(_ context.Context, userID string, limit int) ([]billing.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]billing.Entry(nil), r.entries[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
