package llm_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"agentforge/chat-api/internal/domain/llm"
)

func TestTrimMessagesToFitContext(t *testing.T) {
	long := strings.Repeat("x", 4000)

	tests := []struct {
		name          string
		messages      []llm.ChatMessage
		contextLength int
		wantRoles     []string
		wantTrimmed   int
	}{
		{
			name: "fits without trimming",
			messages: []llm.ChatMessage{
				{Role: llm.RoleSystem, Content: "sys"},
				{Role: llm.RoleUser, Content: "hi"},
			},
			contextLength: 1000,
			wantRoles:     []string{llm.RoleSystem, llm.RoleUser},
		},
		{
			name: "drops tool results first",
			messages: []llm.ChatMessage{
				{Role: llm.RoleSystem, Content: "sys"},
				{Role: llm.RoleUser, Content: "q"},
				{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "a", Name: "calc"}}},
				{Role: llm.RoleTool, Content: long, ToolCallID: "a"},
				{Role: llm.RoleUser, Content: "next"},
			},
			contextLength: 200,
			wantRoles:     []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser},
			wantTrimmed:   1,
		},
		{
			name: "never drops user messages",
			messages: []llm.ChatMessage{
				{Role: llm.RoleSystem, Content: "sys"},
				{Role: llm.RoleUser, Content: long},
				{Role: llm.RoleUser, Content: long},
			},
			contextLength: 100,
			wantRoles:     []string{llm.RoleSystem, llm.RoleUser, llm.RoleUser},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := llm.TrimMessagesToFitContext(llm.RuneCounter{}, tt.messages, tt.contextLength)

			roles := make([]string, 0, len(got.Messages))
			for _, m := range got.Messages {
				roles = append(roles, m.Role)
			}
			assert.Equal(t, tt.wantRoles, roles)
			assert.Equal(t, tt.wantTrimmed, got.TrimmedCount)
		})
	}
}

func TestModelInfo_Cost(t *testing.T) {
	info := llm.ModelInfo{
		PricePer1kInput:  decimal.RequireFromString("0.5"),
		PricePer1kOutput: decimal.RequireFromString("1.5"),
	}

	cost := info.Cost(llm.Usage{PromptTokens: 2000, CompletionTokens: 1000})
	assert.True(t, decimal.RequireFromString("2.5").Equal(cost), "got %s", cost)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", llm.TruncateText("abc", 5))
	assert.Equal(t, "ab... [truncated]", llm.TruncateText("abcdef", 2))
}
