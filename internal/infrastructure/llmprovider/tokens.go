package llmprovider

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"agentforge/chat-api/internal/domain/llm"
)

// TokenCounter counts tokens with the cl100k_base encoding. When the
// encoding cannot be loaded it falls back to a rune based estimate.
type TokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
	fallback llm.RuneCounter
}

var _ llm.TokenCounter = (*TokenCounter)(nil)

// NewTokenCounter creates a lazily initialized counter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count implements llm.TokenCounter.
func (c *TokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.encoding = enc
		}
	})
	if c.encoding == nil {
		return c.fallback.Count(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}
