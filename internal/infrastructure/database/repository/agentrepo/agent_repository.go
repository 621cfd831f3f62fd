package agentrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"agentforge/chat-api/internal/domain/agent"
	"agentforge/chat-api/internal/infrastructure/database/dbschema"
	"agentforge/chat-api/internal/infrastructure/database/transaction"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// AgentGormRepository implements agent.Repository using GORM
type AgentGormRepository struct {
	db *transaction.Database
}

var _ agent.Repository = (*AgentGormRepository)(nil)

// NewAgentGormRepository creates a new agent repository
func NewAgentGormRepository(db *transaction.Database) agent.Repository {
	return &AgentGormRepository{db: db}
}

// Get implements agent.Repository.
func (repo *AgentGormRepository) Get(ctx context.Context, id string) (*agent.Agent, error) {
	var row dbschema.Agent
	if err := repo.db.GetTx(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, agent.ErrNotFound
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to load agent")
	}
	return row.EtoD(), nil
}

// Create implements agent.Repository.
func (repo *AgentGormRepository) Create(ctx context.Context, a *agent.Agent) error {
	if err := repo.db.GetTx(ctx).Create(dbschema.NewSchemaAgent(a)).Error; err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create agent")
	}
	return nil
}

// ListVisible implements agent.Repository.
func (repo *AgentGormRepository) ListVisible(ctx context.Context, userID string) ([]*agent.Agent, error) {
	var rows []dbschema.Agent
	err := repo.db.GetTx(ctx).
		Where("visibility = ? OR user_id = ?", string(agent.VisibilityPublic), userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list agents")
	}
	out := make([]*agent.Agent, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].EtoD())
	}
	return out, nil
}
