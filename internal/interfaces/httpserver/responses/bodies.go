package responses

import (
	"github.com/shopspring/decimal"

	"agentforge/chat-api/internal/domain/billing"
	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/message"
)

// ChatResponse is a chat with its persisted messages.
type ChatResponse struct {
	Chat     *chat.Chat        `json:"chat"`
	Messages []message.Message `json:"messages"`
}

// CreditsResponse reports the caller's balance and recent ledger entries.
type CreditsResponse struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
	Entries []billing.Entry `json:"entries"`
}
