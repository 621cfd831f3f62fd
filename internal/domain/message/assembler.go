package message

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/domain/stream"
)

var (
	// ErrSealed is returned when an event arrives after the message was finalized.
	ErrSealed = errors.New("message sealed")
	// ErrProtocolViolation marks events that were dropped because they break the protocol.
	ErrProtocolViolation = errors.New("protocol violation")
)

// Diagnostic records an event the assembler refused to apply.
type Diagnostic struct {
	Event  stream.EventType
	Reason string
	At     time.Time
}

// Assembler folds stream events into the parts of a single message.
type Assembler struct {
	mu          sync.RWMutex
	msg         Message
	toolIndex   map[string]int
	diagnostics []Diagnostic
	onUpdate    func(Message)
	log         zerolog.Logger
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithOnUpdate registers a callback invoked with a snapshot after each applied event.
func WithOnUpdate(fn func(Message)) AssemblerOption {
	return func(a *Assembler) { a.onUpdate = fn }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(log zerolog.Logger) AssemblerOption {
	return func(a *Assembler) { a.log = log.With().Str("component", "message-assembler").Logger() }
}

// NewAssembler starts assembling an assistant message with the given id.
func NewAssembler(id, chatID string, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		msg: Message{
			ID:        id,
			ChatID:    chatID,
			Role:      RoleAssistant,
			Status:    StatusStreaming,
			CreatedAt: time.Now().UTC(),
		},
		toolIndex: make(map[string]int),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply folds one event into the message. Protocol violations are recorded as
// diagnostics and return nil; only events after sealing return ErrSealed.
func (a *Assembler) Apply(ev stream.Event) error {
	a.mu.Lock()
	if a.msg.Status != StatusStreaming {
		a.mu.Unlock()
		return ErrSealed
	}

	changed := a.apply(ev)
	var snapshot Message
	if changed && a.onUpdate != nil {
		snapshot = a.msg.Clone()
	}
	a.mu.Unlock()

	if changed && a.onUpdate != nil {
		a.onUpdate(snapshot)
	}
	return nil
}

func (a *Assembler) apply(ev stream.Event) bool {
	switch v := ev.(type) {
	case stream.Start:
		if v.MessageID != "" {
			a.msg.ID = v.MessageID
		}
	case stream.TextDelta:
		if last, ok := a.lastPart().(*TextPart); ok {
			last.Text += v.Text
		} else {
			a.msg.Parts = append(a.msg.Parts, &TextPart{Text: v.Text})
		}
	case stream.ReasoningDelta:
		if last, ok := a.lastPart().(*ReasoningPart); ok {
			last.Text += v.Text
		} else {
			a.msg.Parts = append(a.msg.Parts, &ReasoningPart{Text: v.Text})
		}
	case stream.ToolCall:
		if _, exists := a.toolIndex[v.ToolCallID]; exists {
			a.violation(ev.Type(), fmt.Sprintf("duplicate toolCallId %q", v.ToolCallID))
			return false
		}
		a.toolIndex[v.ToolCallID] = len(a.msg.Parts)
		a.msg.Parts = append(a.msg.Parts, &ToolInvocationPart{
			ToolName:   v.ToolName,
			ToolCallID: v.ToolCallID,
			State:      InvocationCall,
			Args:       v.Args,
		})
	case stream.ToolResult:
		idx, ok := a.toolIndex[v.ToolCallID]
		if !ok {
			a.violation(ev.Type(), fmt.Sprintf("unknown toolCallId %q", v.ToolCallID))
			return false
		}
		part := a.msg.Parts[idx].(*ToolInvocationPart)
		if part.State == InvocationResult {
			a.violation(ev.Type(), fmt.Sprintf("toolCallId %q already has a result", v.ToolCallID))
			return false
		}
		part.State = InvocationResult
		part.Result = v.Result
		part.IsError = v.IsError
	case stream.Data:
		a.msg.Annotations = append(a.msg.Annotations, Annotation{Kind: string(v.Kind), Content: v.Content})
	case stream.Error:
		if v.Code == stream.CodeWireCorruption {
			a.msg.Status = StatusFailed
		} else {
			a.msg.Status = StatusIncomplete
		}
		a.msg.Error = v.Message
	case stream.Finish:
		a.msg.Status = StatusDone
	default:
		a.violation(ev.Type(), "unsupported event")
		return false
	}
	return true
}

func (a *Assembler) lastPart() Part {
	if len(a.msg.Parts) == 0 {
		return nil
	}
	return a.msg.Parts[len(a.msg.Parts)-1]
}

func (a *Assembler) violation(event stream.EventType, reason string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{Event: event, Reason: reason, At: time.Now().UTC()})
	a.log.Warn().
		Str("message_id", a.msg.ID).
		Str("event", string(event)).
		Err(ErrProtocolViolation).
		Msg(reason)
}

// Interrupt marks a still-streaming message as incomplete, keeping its parts.
func (a *Assembler) Interrupt(cause error) {
	a.mu.Lock()
	if a.msg.Status != StatusStreaming {
		a.mu.Unlock()
		return
	}
	a.msg.Status = StatusIncomplete
	if cause != nil {
		a.msg.Error = cause.Error()
	}
	snapshot := a.msg.Clone()
	a.mu.Unlock()

	if a.onUpdate != nil {
		a.onUpdate(snapshot)
	}
}

// EventSource yields stream events; stream.Decoder satisfies it.
type EventSource interface {
	Next() (stream.Event, error)
}

// Consume applies events from src until it is exhausted. A source that ends
// without a finish event leaves the message incomplete.
func (a *Assembler) Consume(ctx context.Context, src EventSource) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			a.Interrupt(err)
			return a.Snapshot(), err
		}
		ev, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.Interrupt(io.ErrUnexpectedEOF)
				return a.Snapshot(), nil
			}
			a.Interrupt(err)
			return a.Snapshot(), err
		}
		if err := a.Apply(ev); err != nil {
			return a.Snapshot(), err
		}
	}
}

// Snapshot returns a deep copy of the current message.
func (a *Assembler) Snapshot() Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.msg.Clone()
}

// Diagnostics returns the protocol violations seen so far.
func (a *Assembler) Diagnostics() []Diagnostic {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Diagnostic(nil), a.diagnostics...)
}
