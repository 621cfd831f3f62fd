package preferencerepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agentforge/chat-api/internal/domain/preference"
	"agentforge/chat-api/internal/infrastructure/database/dbschema"
	"agentforge/chat-api/internal/infrastructure/database/transaction"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// PreferenceGormRepository implements preference.Repository using GORM
type PreferenceGormRepository struct {
	db *transaction.Database
}

var _ preference.Repository = (*PreferenceGormRepository)(nil)

// NewPreferenceGormRepository creates a new preference repository
func NewPreferenceGormRepository(db *transaction.Database) preference.Repository {
	return &PreferenceGormRepository{db: db}
}

// GetModel implements preference.Repository.
func (repo *PreferenceGormRepository) GetModel(ctx context.Context, userID string) (string, error) {
	var row dbschema.UserPreference
	if err := repo.db.GetTx(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", preference.ErrNotSet
		}
		return "", platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to load preference")
	}
	return row.ModelID, nil
}

// SetModel implements preference.Repository.
func (repo *PreferenceGormRepository) SetModel(ctx context.Context, userID, modelID string) error {
	row := dbschema.UserPreference{UserID: userID, ModelID: modelID, UpdatedAt: time.Now().UTC()}
	err := repo.db.GetTx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"model_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to save preference")
	}
	return nil
}
