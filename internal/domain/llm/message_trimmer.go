package llm

import "unicode/utf8"

const (
	// DefaultContextLength is used when model context length is unknown.
	DefaultContextLength = 128000

	// MinMessagesToKeep keeps the system prompt plus the latest user message.
	MinMessagesToKeep = 2

	// SafetyMarginRatio reserves room for the response.
	SafetyMarginRatio = 0.80
)

// TokenCounter estimates the token size of text.
type TokenCounter interface {
	Count(text string) int
}

// RuneCounter approximates tokens as four runes each.
type RuneCounter struct{}

// Count implements TokenCounter.
func (RuneCounter) Count(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// EstimateMessagesTokenCount estimates total tokens across all messages.
func EstimateMessagesTokenCount(counter TokenCounter, messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		// role and framing
		total += 10
		total += counter.Count(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += 20
			total += counter.Count(tc.Name)
			total += counter.Count(tc.Arguments)
		}
	}
	return total
}

// TrimMessagesResult contains the result of trimming messages.
type TrimMessagesResult struct {
	Messages        []ChatMessage
	TrimmedCount    int
	EstimatedTokens int
}

// TrimMessagesToFitContext drops the oldest tool results, then tool-calling
// assistant turns, then plain assistant turns until the history fits.
// System prompts and user messages are never removed.
func TrimMessagesToFitContext(counter TokenCounter, messages []ChatMessage, contextLength int) TrimMessagesResult {
	if counter == nil {
		counter = RuneCounter{}
	}
	if contextLength <= 0 {
		contextLength = DefaultContextLength
	}
	maxTokens := int(float64(contextLength) * SafetyMarginRatio)

	currentTokens := EstimateMessagesTokenCount(counter, messages)
	if currentTokens <= maxTokens {
		return TrimMessagesResult{Messages: messages, EstimatedTokens: currentTokens}
	}

	result := make([]ChatMessage, len(messages))
	copy(result, messages)
	trimmed := 0

	for currentTokens > maxTokens && len(result) > MinMessagesToKeep {
		idx := firstIndex(result, func(m ChatMessage) bool { return m.Role == RoleTool })
		if idx == -1 {
			idx = firstIndex(result, func(m ChatMessage) bool { return m.Role == RoleAssistant && len(m.ToolCalls) > 0 })
		}
		if idx == -1 {
			idx = firstIndex(result, func(m ChatMessage) bool { return m.Role == RoleAssistant })
		}
		if idx == -1 {
			break
		}
		result = append(result[:idx], result[idx+1:]...)
		trimmed++
		currentTokens = EstimateMessagesTokenCount(counter, result)
	}

	return TrimMessagesResult{Messages: result, TrimmedCount: trimmed, EstimatedTokens: currentTokens}
}

func firstIndex(messages []ChatMessage, match func(ChatMessage) bool) int {
	for i := 1; i < len(messages); i++ {
		if match(messages[i]) {
			return i
		}
	}
	return -1
}

// TruncateText caps text at maxChars runes.
func TruncateText(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "... [truncated]"
}
