package chatrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/message"
	"agentforge/chat-api/internal/infrastructure/database/dbschema"
	"agentforge/chat-api/internal/infrastructure/database/transaction"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// ChatGormRepository implements chat.Repository using GORM
type ChatGormRepository struct {
	db *transaction.Database
}

var _ chat.Repository = (*ChatGormRepository)(nil)

// NewChatGormRepository creates a new chat repository
func NewChatGormRepository(db *transaction.Database) chat.Repository {
	return &ChatGormRepository{db: db}
}

// GetChat implements chat.Repository.
func (repo *ChatGormRepository) GetChat(ctx context.Context, id string) (*chat.Chat, error) {
	var row dbschema.Chat
	if err := repo.db.GetTx(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chat.ErrChatNotFound
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to load chat")
	}
	return row.EtoD(), nil
}

// CreateChat implements chat.Repository.
func (repo *ChatGormRepository) CreateChat(ctx context.Context, c *chat.Chat) error {
	if err := repo.db.GetTx(ctx).Create(dbschema.NewSchemaChat(c)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return chat.ErrChatExists
		}
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create chat")
	}
	return nil
}

// UpdateChatTitle implements chat.Repository.
func (repo *ChatGormRepository) UpdateChatTitle(ctx context.Context, id, title string) error {
	return repo.update(ctx, id, map[string]any{"title": title, "updated_at": time.Now().UTC()})
}

// UpdateChatVisibility implements chat.Repository.
func (repo *ChatGormRepository) UpdateChatVisibility(ctx context.Context, id string, visibility chat.Visibility) error {
	return repo.update(ctx, id, map[string]any{"visibility": string(visibility), "updated_at": time.Now().UTC()})
}

func (repo *ChatGormRepository) update(ctx context.Context, id string, fields map[string]any) error {
	result := repo.db.GetTx(ctx).Model(&dbschema.Chat{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, result.Error, "failed to update chat")
	}
	if result.RowsAffected == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

// ListChatsByUser implements chat.Repository.
func (repo *ChatGormRepository) ListChatsByUser(ctx context.Context, userID string, limit int) ([]*chat.Chat, error) {
	var rows []dbschema.Chat
	err := repo.db.GetTx(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list chats")
	}
	out := make([]*chat.Chat, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].EtoD())
	}
	return out, nil
}

// GetMessagesByChat implements chat.Repository.
func (repo *ChatGormRepository) GetMessagesByChat(ctx context.Context, chatID string) ([]message.Message, error) {
	var rows []dbschema.Message
	err := repo.db.GetTx(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to load messages")
	}
	out := make([]message.Message, 0, len(rows))
	for i := range rows {
		m, err := rows[i].EtoD()
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to decode message")
		}
		out = append(out, m)
	}
	return out, nil
}

// SaveMessages implements chat.Repository. Messages are upserted by id and
// the chat's updated_at is bumped in the same transaction.
func (repo *ChatGormRepository) SaveMessages(ctx context.Context, chatID string, msgs []message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]*dbschema.Message, 0, len(msgs))
	for _, m := range msgs {
		row, err := dbschema.NewSchemaMessage(chatID, m)
		if err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to encode message")
		}
		rows = append(rows, row)
	}

	return repo.db.InTx(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"parts", "attachments", "annotations", "status", "error"}),
		}).Create(&rows).Error
		if err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to save messages")
		}
		if err := tx.Model(&dbschema.Chat{}).Where("id = ?", chatID).Update("updated_at", time.Now().UTC()).Error; err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to touch chat")
		}
		return nil
	})
}
