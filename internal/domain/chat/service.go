package chat

import (
	"context"
	"errors"

	"agentforge/chat-api/internal/domain/message"
	"agentforge/chat-api/internal/utils/platformerrors"
)

const defaultListLimit = 50

// Service serves chat reads and visibility changes.
type Service struct {
	repo Repository
}

// NewService creates a chat service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListChats returns the user's chats, most recently updated first.
func (s *Service) ListChats(ctx context.Context, userID string, limit int) ([]*Chat, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	chats, err := s.repo.ListChatsByUser(ctx, userID, limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list chats")
	}
	return chats, nil
}

// GetChatWithMessages returns a chat readable by userID and its messages.
func (s *Service) GetChatWithMessages(ctx context.Context, userID, chatID string) (*Chat, []message.Message, error) {
	c, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if !c.ReadableBy(userID) {
		return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "chat is private", nil, "b1d4e7a2-3c6f-4895-a0b2-c5d8e1f4a739")
	}
	msgs, err := s.repo.GetMessagesByChat(ctx, chatID)
	if err != nil {
		return nil, nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load messages")
	}
	return c, msgs, nil
}

// UpdateVisibility changes the visibility of a chat owned by userID.
func (s *Service) UpdateVisibility(ctx context.Context, userID, chatID string, visibility Visibility) (*Chat, error) {
	if !visibility.Valid() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid visibility", nil, "d7a0c3f6-8b2e-4d51-9c74-e1b5a8f2c036")
	}
	c, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "chat belongs to another user", nil, "f2c5e8b1-4a7d-4063-b9e2-a6d1c4f7b850")
	}
	if err := s.repo.UpdateChatVisibility(ctx, chatID, visibility); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update visibility")
	}
	c.Visibility = visibility
	return c, nil
}

func (s *Service) getChat(ctx context.Context, chatID string) (*Chat, error) {
	c, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrChatNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "chat not found", err, "a9e3b6d0-5f2c-4b87-8d1e-c4f7a0b3e692")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load chat")
	}
	return c, nil
}
