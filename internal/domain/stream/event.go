// Package stream defines the events exchanged during a streamed chat turn and
// the line-oriented wire format that carries them over a single HTTP body.
package stream

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a member of the closed event union.
type EventType string

const (
	EventStart          EventType = "start"
	EventTextDelta      EventType = "text-delta"
	EventReasoningDelta EventType = "reasoning-delta"
	EventToolCall       EventType = "tool-call"
	EventToolResult     EventType = "tool-result"
	EventData           EventType = "data"
	EventError          EventType = "error"
	EventFinish         EventType = "finish"
)

// Event is one unit of the server to client stream. The set of implementations
// is closed: Start, TextDelta, ReasoningDelta, ToolCall, ToolResult, Data, Error, Finish.
type Event interface {
	Type() EventType
	isEvent()
}

// Start announces the id of the assistant message being streamed.
type Start struct {
	MessageID string `json:"messageId"`
}

// TextDelta is an incremental chunk of assistant text.
type TextDelta struct {
	Text string
}

// ReasoningDelta is an incremental chunk of model reasoning.
type ReasoningDelta struct {
	Text string
}

// ToolCall requests execution of a tool. ToolCallID correlates the later result.
type ToolCall struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

// ToolResult carries the settled outcome of a tool call.
type ToolResult struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName,omitempty"`
	Result     json.RawMessage `json:"result"`
	IsError    bool            `json:"isError,omitempty"`
}

// Data carries custom application payloads tagged by Kind.
type Data struct {
	Kind    DataKind        `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Error terminates the stream.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Finish seals the stream.
type Finish struct {
	FinishReason FinishReason `json:"finishReason"`
	Usage        *Usage       `json:"usage,omitempty"`
}

// Usage reports token consumption for the whole turn.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Add accumulates another usage report.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// FinishReason explains why generation stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool-calls"
	FinishError     FinishReason = "error"
	FinishOther     FinishReason = "other"
)

// Error codes carried by Error events.
const (
	CodeWireCorruption   = "wire_corruption"
	CodeGenerationFailed = "generation_failed"
)

func (Start) Type() EventType          { return EventStart }
func (TextDelta) Type() EventType      { return EventTextDelta }
func (ReasoningDelta) Type() EventType { return EventReasoningDelta }
func (ToolCall) Type() EventType       { return EventToolCall }
func (ToolResult) Type() EventType     { return EventToolResult }
func (Data) Type() EventType           { return EventData }
func (Error) Type() EventType          { return EventError }
func (Finish) Type() EventType         { return EventFinish }

func (Start) isEvent()          {}
func (TextDelta) isEvent()      {}
func (ReasoningDelta) isEvent() {}
func (ToolCall) isEvent()       {}
func (ToolResult) isEvent()     {}
func (Data) isEvent()           {}
func (Error) isEvent()          {}
func (Finish) isEvent()         {}

// DataKind tags the payload of a Data event.
type DataKind string

const (
	DataMetadataUpdate DataKind = "metadata-update"
	DataTextDelta      DataKind = "text-delta"
	DataCodeDelta      DataKind = "code-delta"
	DataReactDelta     DataKind = "react-delta"
	DataSheetDelta     DataKind = "sheet-delta"
	DataID             DataKind = "id"
	DataTitle          DataKind = "title"
	DataKindTag        DataKind = "kind"
	DataClear          DataKind = "clear"
	DataFinish         DataKind = "finish"
)

var knownDataKinds = map[DataKind]struct{}{
	DataMetadataUpdate: {},
	DataTextDelta:      {},
	DataCodeDelta:      {},
	DataReactDelta:     {},
	DataSheetDelta:     {},
	DataID:             {},
	DataTitle:          {},
	DataKindTag:        {},
	DataClear:          {},
	DataFinish:         {},
}

// Valid reports whether k belongs to the registered set of data kinds.
func (k DataKind) Valid() bool {
	_, ok := knownDataKinds[k]
	return ok
}

// NewData builds a Data event with content marshalled to JSON.
func NewData(kind DataKind, content any) (Data, error) {
	if !kind.Valid() {
		return Data{}, fmt.Errorf("%w: data type %q", ErrUnknownEvent, kind)
	}
	if content == nil {
		return Data{Kind: kind}, nil
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return Data{}, fmt.Errorf("marshal %s content: %w", kind, err)
	}
	return Data{Kind: kind, Content: raw}, nil
}
