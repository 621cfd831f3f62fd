package chatclient

import (
	"context"
	"sync"
)

// Optimistic holds a confirmed value and at most one pending proposal.
// Readers see the proposal immediately; it becomes the confirmed value only
// after Confirm and is discarded by Rollback.
type Optimistic[T any] struct {
	mu        sync.Mutex
	confirmed T
	pending   *T
}

func NewOptimistic[T any](initial T) *Optimistic[T] {
	return &Optimistic[T]{confirmed: initial}
}

// Value returns the pending proposal, or the confirmed value without one.
func (o *Optimistic[T]) Value() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != nil {
		return *o.pending
	}
	return o.confirmed
}

// Confirmed returns the last confirmed value.
func (o *Optimistic[T]) Confirmed() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.confirmed
}

// Pending reports whether a proposal awaits confirmation.
func (o *Optimistic[T]) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending != nil
}

// Propose replaces any pending proposal with v.
func (o *Optimistic[T]) Propose(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = &v
}

// Confirm promotes the pending proposal. It is a no-op without one.
func (o *Optimistic[T]) Confirm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != nil {
		o.confirmed = *o.pending
		o.pending = nil
	}
}

// Rollback drops the pending proposal and returns the confirmed value.
func (o *Optimistic[T]) Rollback() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = nil
	return o.confirmed
}

// Apply proposes v, runs commit and confirms on success or rolls back on error.
func (o *Optimistic[T]) Apply(ctx context.Context, v T, commit func(ctx context.Context, v T) error) error {
	o.Propose(v)
	if err := commit(ctx, v); err != nil {
		o.Rollback()
		return err
	}
	o.Confirm()
	return nil
}
