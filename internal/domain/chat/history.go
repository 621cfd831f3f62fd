package chat

import (
	"strings"

	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/message"
)

// toModelHistory converts chat messages into the model conversation. Settled
// tool invocations become assistant tool calls followed by tool messages;
// invocations without a result are dropped.
func toModelHistory(systemPrompt string, msgs []message.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, llm.ChatMessage{Role: llm.RoleSystem, Content: systemPrompt})
	}

	for _, m := range msgs {
		switch m.Role {
		case message.RoleUser, message.RoleSystem:
			out = append(out, llm.ChatMessage{Role: string(m.Role), Content: m.Text()})
		case message.RoleAssistant:
			out = append(out, assistantHistory(m)...)
		}
	}
	return out
}

func assistantHistory(m message.Message) []llm.ChatMessage {
	var (
		out     []llm.ChatMessage
		text    strings.Builder
		pending []*message.ToolInvocationPart
	)

	flush := func() {
		if text.Len() == 0 && len(pending) == 0 {
			return
		}
		msg := llm.ChatMessage{Role: llm.RoleAssistant, Content: text.String()}
		for _, p := range pending {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{ID: p.ToolCallID, Name: p.ToolName, Arguments: argsString(p)})
		}
		out = append(out, msg)
		for _, p := range pending {
			out = append(out, llm.ChatMessage{Role: llm.RoleTool, ToolCallID: p.ToolCallID, Name: p.ToolName, Content: string(p.Result)})
		}
		text.Reset()
		pending = nil
	}

	for _, part := range m.Parts {
		switch p := part.(type) {
		case *message.TextPart:
			if len(pending) > 0 {
				flush()
			}
			text.WriteString(p.Text)
		case *message.ToolInvocationPart:
			if p.State == message.InvocationResult {
				pending = append(pending, p)
			}
		}
	}
	flush()
	return out
}

func argsString(p *message.ToolInvocationPart) string {
	if len(p.Args) == 0 {
		return "{}"
	}
	return string(p.Args)
}
