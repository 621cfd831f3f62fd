package billingrepo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agentforge/chat-api/internal/domain/billing"
	"agentforge/chat-api/internal/infrastructure/database/dbschema"
	"agentforge/chat-api/internal/infrastructure/database/transaction"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// LedgerGormRepository implements billing.Repository using GORM
type LedgerGormRepository struct {
	db *transaction.Database
}

var _ billing.Repository = (*LedgerGormRepository)(nil)

// NewLedgerGormRepository creates a new ledger repository
func NewLedgerGormRepository(db *transaction.Database) billing.Repository {
	return &LedgerGormRepository{db: db}
}

// EnsureAccount implements billing.Repository. The opening grant is recorded
// as an entry so the balance always equals the sum of entries.
func (repo *LedgerGormRepository) EnsureAccount(ctx context.Context, userID string, initial decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := repo.db.InTx(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		now := time.Now().UTC()
		account := dbschema.CreditAccount{UserID: userID, Balance: initial, CreatedAt: now, UpdatedAt: now}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&account)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			balance = initial
			if !initial.IsPositive() {
				return nil
			}
			entry := dbschema.NewSchemaCreditEntry(billing.NewEntry(userID, billing.EntryGrant, initial, "initial"))
			return tx.Create(entry).Error
		}
		var existing dbschema.CreditAccount
		if err := tx.Where("user_id = ?", userID).First(&existing).Error; err != nil {
			return err
		}
		balance = existing.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to open credit account")
	}
	return balance, nil
}

// AddEntry implements billing.Repository. The account row is locked so
// concurrent charges serialize on the balance.
func (repo *LedgerGormRepository) AddEntry(ctx context.Context, entry billing.Entry) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := repo.db.InTx(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		var account dbschema.CreditAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", entry.UserID).First(&account).Error; err != nil {
			return err
		}
		balance = account.Balance.Add(entry.Amount)
		if err := tx.Model(&account).Updates(map[string]any{"balance": balance, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}
		return tx.Create(dbschema.NewSchemaCreditEntry(entry)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "credit account not found", err, "0c9d3e51-7a2f-4b86-9e14-d5c8a7b2f613")
		}
		return decimal.Zero, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to record ledger entry")
	}
	return balance, nil
}

// ListEntries implements billing.Repository.
func (repo *LedgerGormRepository) ListEntries(ctx context.Context, userID string, limit int) ([]billing.Entry, error) {
	var rows []dbschema.CreditEntry
	err := repo.db.GetTx(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list ledger entries")
	}
	out := make([]billing.Entry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].EtoD())
	}
	return out, nil
}
