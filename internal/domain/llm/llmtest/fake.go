// Package llmtest provides scripted model backends for tests.
package llmtest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"agentforge/chat-api/internal/domain/llm"
)

// Step is the scripted output of one streaming call.
type Step struct {
	Deltas []llm.Delta
	// Err, when set, is returned by Recv after the deltas are exhausted.
	Err error
}

// Backend replays scripted steps, one per Stream call.
type Backend struct {
	mu           sync.Mutex
	steps        []Step
	requests     []llm.Request
	CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Completion, error)
}

// NewBackend creates a scripted backend.
func NewBackend(steps ...Step) *Backend {
	return &Backend{steps: steps}
}

// Stream returns the next scripted step.
func (b *Backend) Stream(_ context.Context, req llm.Request) (llm.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if len(b.steps) == 0 {
		return nil, fmt.Errorf("llmtest: no scripted step left")
	}
	step := b.steps[0]
	b.steps = b.steps[1:]
	return &sliceStream{step: step}, nil
}

// Complete delegates to CompleteFunc.
func (b *Backend) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	fn := b.CompleteFunc
	b.mu.Unlock()
	if fn == nil {
		return &llm.Completion{Content: "Scripted Title", FinishReason: "stop"}, nil
	}
	return fn(ctx, req)
}

// Requests returns every request received so far.
func (b *Backend) Requests() []llm.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]llm.Request(nil), b.requests...)
}

type sliceStream struct {
	step Step
	pos  int
}

func (s *sliceStream) Recv() (*llm.Delta, error) {
	if s.pos < len(s.step.Deltas) {
		d := s.step.Deltas[s.pos]
		s.pos++
		return &d, nil
	}
	if s.step.Err != nil {
		return nil, s.step.Err
	}
	return nil, io.EOF
}

func (s *sliceStream) Close() error { return nil }

// Resolver serves a fixed set of backends.
type Resolver struct {
	Backends map[string]llm.Backend
	Infos    map[string]llm.ModelInfo
}

// NewResolver registers backend under each model id.
func NewResolver(backend llm.Backend, modelIDs ...string) *Resolver {
	r := &Resolver{Backends: map[string]llm.Backend{}, Infos: map[string]llm.ModelInfo{}}
	for _, id := range modelIDs {
		r.Backends[id] = backend
		r.Infos[id] = llm.ModelInfo{ID: id, Name: id, Provider: "scripted", Tier: "free"}
	}
	return r
}

// Resolve implements llm.Resolver.
func (r *Resolver) Resolve(_ context.Context, modelID string) (llm.Backend, llm.ModelInfo, error) {
	b, ok := r.Backends[modelID]
	if !ok {
		return nil, llm.ModelInfo{}, fmt.Errorf("%w: %s", llm.ErrModelNotFound, modelID)
	}
	return b, r.Infos[modelID], nil
}

// Models implements llm.Resolver.
func (r *Resolver) Models() []llm.ModelInfo {
	out := make([]llm.ModelInfo, 0, len(r.Infos))
	for _, info := range r.Infos {
		out = append(out, info)
	}
	return out
}

// Text builds deltas that stream each chunk as content.
func Text(chunks ...string) []llm.Delta {
	out := make([]llm.Delta, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, llm.Delta{Content: c})
	}
	return out
}

// ToolCalls builds one delta per call, with arguments in a single fragment.
func ToolCalls(calls ...llm.ToolCall) []llm.Delta {
	out := make([]llm.Delta, 0, len(calls))
	for i, c := range calls {
		out = append(out, llm.Delta{ToolCalls: []llm.ToolCallDelta{{Index: i, ID: c.ID, Name: c.Name, Arguments: c.Arguments}}})
	}
	return out
}
