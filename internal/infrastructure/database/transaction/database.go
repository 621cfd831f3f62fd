// Package transaction carries a gorm transaction through the context so
// repositories can join a caller's unit of work.
package transaction

import (
	"context"

	"gorm.io/gorm"
)

type txContextKey struct{}

// WithTx returns ctx carrying tx.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// Database hands repositories the active transaction or the pool.
type Database struct {
	db *gorm.DB
}

// NewDatabase wraps db.
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetTx returns the transaction in ctx, or the pool bound to ctx.
func (t *Database) GetTx(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return tx
	}
	return t.db.WithContext(ctx)
}

// InTx runs fn inside a transaction, joining an existing one when present.
func (t *Database) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
