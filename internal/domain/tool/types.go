package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/domain/stream"
)

// State represents the lifecycle of a tool invocation.
type State string

const (
	StateRequested State = "requested"
	StateExecuting State = "executing"
	StateResult    State = "result"
	StateFailed    State = "failed"
)

var validTransitions = map[State][]State{
	StateRequested: {StateExecuting, StateFailed},
	StateExecuting: {StateResult, StateFailed},
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s State) CanTransitionTo(target State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateResult || s == StateFailed
}

// Call encapsulates one tool call requested by the model.
type Call struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"arguments"`
}

// Invocation tracks the state of a single call.
type Invocation struct {
	Call      Call
	State     State
	StartedAt time.Time
	EndedAt   time.Time
}

// NewInvocation starts tracking call in the requested state.
func NewInvocation(call Call) *Invocation {
	return &Invocation{Call: call, State: StateRequested}
}

// Transition moves the invocation to target, rejecting invalid moves.
func (i *Invocation) Transition(target State) error {
	if !i.State.CanTransitionTo(target) {
		return fmt.Errorf("tool %s (%s): invalid transition %s -> %s", i.Call.Name, i.Call.ID, i.State, target)
	}
	now := time.Now()
	if target == StateExecuting {
		i.StartedAt = now
	}
	if target.IsTerminal() {
		i.EndedAt = now
	}
	i.State = target
	return nil
}

// Settlement is the terminal outcome of a call. Result is the JSON payload
// sent to the client; failures carry {"error": "..."}.
type Settlement struct {
	Call     Call
	State    State
	Result   json.RawMessage
	Err      string
	Duration time.Duration
}

// Failed reports whether the call ended in the failed state.
func (s Settlement) Failed() bool {
	return s.State == StateFailed
}

// Definition describes a tool to the model.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Env is the per-turn context handed to tools.
type Env struct {
	UserID  string
	ChatID  string
	ModelID string
	// AllowedTools restricts which registered tools may run; empty allows all.
	AllowedTools []string
	// Emitter lets tools stream data events into the turn's output.
	Emitter stream.Emitter
	Log     zerolog.Logger
}

// Allows reports whether the tool named name may run in this turn.
func (e Env) Allows(name string) bool {
	if len(e.AllowedTools) == 0 {
		return true
	}
	return slices.Contains(e.AllowedTools, name)
}

// Tool is an executable function exposed to the model.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, env Env, args json.RawMessage) (any, error)
}

func errorPayload(msg string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"error": msg})
	return raw
}

// Func adapts a function to Tool.
type Func struct {
	Def Definition
	Fn  func(ctx context.Context, env Env, args json.RawMessage) (any, error)
}

// Definition implements Tool.
func (f Func) Definition() Definition { return f.Def }

// Execute implements Tool.
func (f Func) Execute(ctx context.Context, env Env, args json.RawMessage) (any, error) {
	return f.Fn(ctx, env, args)
}
