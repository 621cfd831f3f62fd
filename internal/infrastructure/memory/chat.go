// Package memory provides in-process repositories used when no database is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/message"
)

// ChatRepository implements chat.Repository in memory.
type ChatRepository struct {
	mu       sync.RWMutex
	chats    map[string]chat.Chat
	messages map[string][]message.Message
}

var _ chat.Repository = (*ChatRepository)(nil)

// NewChatRepository creates an empty repository.
func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		chats:    make(map[string]chat.Chat),
		messages: make(map[string][]message.Message),
	}
}

func (r *ChatRepository) GetChat(_ context.Context, id string) (*chat.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[id]
	if !ok {
		return nil, chat.ErrChatNotFound
	}
	return &c, nil
}

func (r *ChatRepository) CreateChat(_ context.Context, c *chat.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[c.ID]; ok {
		return chat.ErrChatExists
	}
	r.chats[c.ID] = *c
	return nil
}

func (r *ChatRepository) UpdateChatTitle(_ context.Context, id, title string) error {
	return r.update(id, func(c *chat.Chat) { c.Title = title })
}

func (r *ChatRepository) UpdateChatVisibility(_ context.Context, id string, visibility chat.Visibility) error {
	return r.update(id, func(c *chat.Chat) { c.Visibility = visibility })
}

func (r *ChatRepository) update(id string, fn func(*chat.Chat)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[id]
	if !ok {
		return chat.ErrChatNotFound
	}
	fn(&c)
	c.UpdatedAt = time.Now().UTC()
	r.chats[id] = c
	return nil
}

func (r *ChatRepository) ListChatsByUser(_ context.Context, userID string, limit int) ([]*chat.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*chat.Chat
	for _, c := range r.chats {
		if c.UserID == userID {
			cp := c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ChatRepository) GetMessagesByChat(_ context.Context, chatID string) ([]message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.messages[chatID]
	out := make([]message.Message, len(stored))
	for i, m := range stored {
		out[i] = m.Clone()
	}
	return out, nil
}

func (r *ChatRepository) SaveMessages(_ context.Context, chatID string, msgs []message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.messages[chatID]
	for _, m := range msgs {
		m = m.Clone()
		m.ChatID = chatID
		replaced := false
		for i := range stored {
			if stored[i].ID == m.ID {
				stored[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			stored = append(stored, m)
		}
	}
	r.messages[chatID] = stored
	if c, ok := r.chats[chatID]; ok {
		c.UpdatedAt = time.Now().UTC()
		r.chats[chatID] = c
	}
	return nil
}
