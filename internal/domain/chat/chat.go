// Package chat runs chat turns: it authorizes the caller, resolves the chat,
// agent and model, streams the generation loop and schedules the title task.
package chat

import (
	"context"
	"errors"
	"time"

	"agentforge/chat-api/internal/domain/message"
)

// PlaceholderTitle is the title of a chat until its generated title lands.
const PlaceholderTitle = "New Chat"

var (
	// ErrChatNotFound is returned by repositories for unknown chat ids.
	ErrChatNotFound = errors.New("chat not found")
	// ErrChatExists is returned by CreateChat when the id is taken.
	ErrChatExists = errors.New("chat already exists")
)

// Visibility controls who may read a chat.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityLink    Visibility = "link"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityLink:
		return true
	}
	return false
}

// Chat is a conversation owned by one user.
type Chat struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	AgentID    *string    `json:"agentId,omitempty"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ReadableBy reports whether userID may read the chat.
func (c *Chat) ReadableBy(userID string) bool {
	return c.UserID == userID || c.Visibility == VisibilityPublic || c.Visibility == VisibilityLink
}

// Repository persists chats and their messages.
type Repository interface {
	GetChat(ctx context.Context, id string) (*Chat, error)
	CreateChat(ctx context.Context, chat *Chat) error
	UpdateChatTitle(ctx context.Context, id, title string) error
	UpdateChatVisibility(ctx context.Context, id string, visibility Visibility) error
	ListChatsByUser(ctx context.Context, userID string, limit int) ([]*Chat, error)
	GetMessagesByChat(ctx context.Context, chatID string) ([]message.Message, error)
	// SaveMessages upserts messages by id.
	SaveMessages(ctx context.Context, chatID string, msgs []message.Message) error
}

// ensureChat returns the chat, creating it with the placeholder title when missing.
func ensureChat(ctx context.Context, repo Repository, seed Chat) (*Chat, error) {
	existing, err := repo.GetChat(ctx, seed.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrChatNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	seed.Title = PlaceholderTitle
	if !seed.Visibility.Valid() {
		seed.Visibility = VisibilityPrivate
	}
	seed.CreatedAt, seed.UpdatedAt = now, now
	if err := repo.CreateChat(ctx, &seed); err != nil {
		if errors.Is(err, ErrChatExists) {
			return repo.GetChat(ctx, seed.ID)
		}
		return nil, err
	}
	return &seed, nil
}
