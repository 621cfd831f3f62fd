// Package requests holds the HTTP request bodies and query parameters.
package requests

import (
	"strings"

	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/message"
)

// ChatRequest starts a turn. The chat id may be sent as "id" or "chatId".
type ChatRequest struct {
	ID           string            `json:"id"`
	ChatID       string            `json:"chatId"`
	Model        string            `json:"model"`
	Messages     []message.Message `json:"messages" binding:"required,min=1"`
	SystemPrompt string            `json:"systemPrompt"`
	AgentID      *string           `json:"agentId"`
	Visibility   chat.Visibility   `json:"visibility"`
}

// ToTurnRequest maps the body to a domain turn request.
func (r ChatRequest) ToTurnRequest() chat.TurnRequest {
	chatID := strings.TrimSpace(r.ChatID)
	if chatID == "" {
		chatID = strings.TrimSpace(r.ID)
	}
	return chat.TurnRequest{
		ChatID:       chatID,
		ModelID:      strings.TrimSpace(r.Model),
		Messages:     r.Messages,
		SystemPrompt: r.SystemPrompt,
		AgentID:      r.AgentID,
		Visibility:   r.Visibility,
	}
}

// UpdateVisibilityRequest changes who may read a chat.
type UpdateVisibilityRequest struct {
	Visibility chat.Visibility `json:"visibility" binding:"required"`
}
