package documentrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"agentforge/chat-api/internal/domain/document"
	"agentforge/chat-api/internal/infrastructure/database/dbschema"
	"agentforge/chat-api/internal/infrastructure/database/transaction"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// DocumentGormRepository implements document.Repository using GORM
type DocumentGormRepository struct {
	db *transaction.Database
}

var _ document.Repository = (*DocumentGormRepository)(nil)

// NewDocumentGormRepository creates a new document repository
func NewDocumentGormRepository(db *transaction.Database) document.Repository {
	return &DocumentGormRepository{db: db}
}

// SaveVersion implements document.Repository. The (id, version_index)
// primary key rejects concurrent writers of the same version.
func (repo *DocumentGormRepository) SaveVersion(ctx context.Context, doc *document.Document) error {
	if err := repo.db.GetTx(ctx).Create(dbschema.NewSchemaDocument(doc)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return document.ErrVersionConflict
		}
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to save document version")
	}
	return nil
}

// Latest implements document.Repository.
func (repo *DocumentGormRepository) Latest(ctx context.Context, id string) (*document.Document, error) {
	var row dbschema.Document
	err := repo.db.GetTx(ctx).Where("id = ?", id).Order("version_index DESC").First(&row).Error
	return repo.one(ctx, &row, err)
}

// Version implements document.Repository.
func (repo *DocumentGormRepository) Version(ctx context.Context, id string, version int) (*document.Document, error) {
	var row dbschema.Document
	err := repo.db.GetTx(ctx).Where("id = ? AND version_index = ?", id, version).First(&row).Error
	return repo.one(ctx, &row, err)
}

// Versions implements document.Repository.
func (repo *DocumentGormRepository) Versions(ctx context.Context, id string) ([]*document.Document, error) {
	var rows []dbschema.Document
	if err := repo.db.GetTx(ctx).Where("id = ?", id).Order("version_index ASC").Find(&rows).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list document versions")
	}
	out := make([]*document.Document, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].EtoD())
	}
	return out, nil
}

func (repo *DocumentGormRepository) one(ctx context.Context, row *dbschema.Document, err error) (*document.Document, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, document.ErrNotFound
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to load document")
	}
	return row.EtoD(), nil
}
