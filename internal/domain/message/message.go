// Package message models chat messages as ordered typed parts.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Status tracks assembly progress of a message.
type Status string

const (
	StatusStreaming  Status = "streaming"
	StatusDone       Status = "done"
	StatusIncomplete Status = "incomplete"
	StatusFailed     Status = "failed"
)

// Final reports whether the message was sealed by a finish event.
func (s Status) Final() bool {
	return s == StatusDone
}

// PartType identifies a member of the Part union.
type PartType string

const (
	PartText           PartType = "text"
	PartReasoning      PartType = "reasoning"
	PartToolInvocation PartType = "tool-invocation"
)

// Part is a typed fragment of message content: TextPart, ReasoningPart or ToolInvocationPart.
type Part interface {
	PartType() PartType
	clone() Part
}

// TextPart accumulates streamed text.
type TextPart struct {
	Text string `json:"text"`
}

// ReasoningPart accumulates model reasoning.
type ReasoningPart struct {
	Text string `json:"text"`
}

// InvocationState is the client visible state of a tool invocation.
type InvocationState string

const (
	InvocationCall   InvocationState = "call"
	InvocationResult InvocationState = "result"
)

// ToolInvocationPart tracks a tool call and, once settled, its result.
type ToolInvocationPart struct {
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId"`
	State      InvocationState `json:"state"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}

func (*TextPart) PartType() PartType           { return PartText }
func (*ReasoningPart) PartType() PartType      { return PartReasoning }
func (*ToolInvocationPart) PartType() PartType { return PartToolInvocation }

func (p *TextPart) clone() Part      { c := *p; return &c }
func (p *ReasoningPart) clone() Part { c := *p; return &c }
func (p *ToolInvocationPart) clone() Part {
	c := *p
	c.Args = append(json.RawMessage(nil), p.Args...)
	if p.Result != nil {
		c.Result = append(json.RawMessage(nil), p.Result...)
	}
	return &c
}

// Attachment references an uploaded file.
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// Annotation is a data payload observed while streaming.
type Annotation struct {
	Kind    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Message is a chat message made of ordered parts.
type Message struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chatId,omitempty"`
	Role        Role         `json:"role"`
	Parts       []Part       `json:"-"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Status      Status       `json:"status"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Text joins every TextPart of the message.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(*TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// ToolInvocations returns the tool parts in order.
func (m *Message) ToolInvocations() []*ToolInvocationPart {
	var out []*ToolInvocationPart
	for _, p := range m.Parts {
		if tp, ok := p.(*ToolInvocationPart); ok {
			out = append(out, tp)
		}
	}
	return out
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	out := m
	out.Parts = make([]Part, len(m.Parts))
	for i, p := range m.Parts {
		out.Parts[i] = p.clone()
	}
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	out.Annotations = append([]Annotation(nil), m.Annotations...)
	return out
}

type partEnvelope struct {
	Type PartType `json:"type"`
	ToolInvocationPart
}

// MarshalParts encodes parts as a JSON array of type-tagged objects.
func MarshalParts(parts []Part) ([]byte, error) {
	out := make([]json.RawMessage, 0, len(parts))
	for _, p := range parts {
		var (
			raw []byte
			err error
		)
		switch v := p.(type) {
		case *TextPart:
			raw, err = json.Marshal(struct {
				Type PartType `json:"type"`
				Text string   `json:"text"`
			}{PartText, v.Text})
		case *ReasoningPart:
			raw, err = json.Marshal(struct {
				Type PartType `json:"type"`
				Text string   `json:"text"`
			}{PartReasoning, v.Text})
		case *ToolInvocationPart:
			raw, err = json.Marshal(partEnvelope{Type: PartToolInvocation, ToolInvocationPart: *v})
		default:
			err = fmt.Errorf("unsupported part %T", p)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalParts decodes the output of MarshalParts.
func UnmarshalParts(data []byte) ([]Part, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode parts: %w", err)
	}
	parts := make([]Part, 0, len(raws))
	for _, raw := range raws {
		var head struct {
			Type PartType `json:"type"`
			Text string   `json:"text"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("decode part: %w", err)
		}
		switch head.Type {
		case PartText:
			parts = append(parts, &TextPart{Text: head.Text})
		case PartReasoning:
			parts = append(parts, &ReasoningPart{Text: head.Text})
		case PartToolInvocation:
			var env partEnvelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return nil, fmt.Errorf("decode tool part: %w", err)
			}
			p := env.ToolInvocationPart
			parts = append(parts, &p)
		default:
			return nil, fmt.Errorf("unknown part type %q", head.Type)
		}
	}
	return parts, nil
}

// MarshalJSON includes the typed parts.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	parts, err := MarshalParts(m.Parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Parts json.RawMessage `json:"parts"`
	}{alias(m), parts})
}

// UnmarshalJSON decodes typed parts.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		Parts json.RawMessage `json:"parts"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	parts, err := UnmarshalParts(aux.Parts)
	if err != nil {
		return err
	}
	m.Parts = parts
	return nil
}
