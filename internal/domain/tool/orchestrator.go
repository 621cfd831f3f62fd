package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/stream"
)

// DefaultMaxSteps bounds model round trips per turn.
const DefaultMaxSteps = 5

// maxToolResultChars caps tool output fed back to the model.
const maxToolResultChars = 16000

// Orchestrator runs the generation loop: stream the model, dispatch the
// requested tools concurrently, feed their results back and repeat.
type Orchestrator struct {
	executor *Executor
	maxSteps int
	counter  llm.TokenCounter
	log      zerolog.Logger
}

// NewOrchestrator constructs a generation loop.
func NewOrchestrator(executor *Executor, maxSteps int, counter llm.TokenCounter, log zerolog.Logger) *Orchestrator {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if counter == nil {
		counter = llm.RuneCounter{}
	}
	return &Orchestrator{
		executor: executor,
		maxSteps: maxSteps,
		counter:  counter,
		log:      log.With().Str("component", "tool-orchestrator").Logger(),
	}
}

// Executor returns the underlying executor.
func (o *Orchestrator) Executor() *Executor {
	return o.executor
}

// RunParams contains the data needed to run one turn.
type RunParams struct {
	Backend  llm.Backend
	Model    llm.ModelInfo
	Messages []llm.ChatMessage
	Tools    []Definition
	Env      Env
}

// RunResult summarises a completed turn.
type RunResult struct {
	Messages     []llm.ChatMessage
	Usage        stream.Usage
	FinishReason stream.FinishReason
	Steps        int
	Settlements  []Settlement
}

// Run streams one turn into emit and finishes it with a Finish event.
// Errors from the backend or the emitter end the turn without a Finish event.
func (o *Orchestrator) Run(ctx context.Context, params RunParams, emit stream.Emitter) (*RunResult, error) {
	trimmed := llm.TrimMessagesToFitContext(o.counter, params.Messages, params.Model.ContextLength)
	if trimmed.TrimmedCount > 0 {
		o.log.Debug().Int("trimmed", trimmed.TrimmedCount).Msg("history trimmed to fit context")
	}
	messages := trimmed.Messages

	toolDefs := make([]llm.ToolDefinition, 0, len(params.Tools))
	for _, d := range params.Tools {
		toolDefs = append(toolDefs, llm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}

	result := &RunResult{}
	for step := 0; step < o.maxSteps; step++ {
		req := llm.Request{Model: params.Model.UpstreamModel, Messages: messages, Tools: toolDefs}
		// The last step gets no tools so the model has to answer in text.
		if step == o.maxSteps-1 {
			req.Tools = nil
		}

		out, err := o.streamStep(ctx, params.Backend, req, emit)
		if err != nil {
			return result, err
		}
		result.Steps++
		result.Usage.Add(out.usage)
		messages = append(messages, out.message)

		if len(out.calls) == 0 {
			result.FinishReason = mapFinishReason(out.finishReason)
			result.Messages = messages
			usage := result.Usage
			if err := emit.Emit(ctx, stream.Finish{FinishReason: result.FinishReason, Usage: &usage}); err != nil {
				return result, err
			}
			return result, nil
		}

		for _, call := range out.calls {
			if err := emit.Emit(ctx, stream.ToolCall{ToolCallID: call.ID, ToolName: call.Name, Args: call.Args}); err != nil {
				return result, err
			}
		}

		settled := make(map[string]Settlement, len(out.calls))
		for s := range o.executor.Dispatch(ctx, params.Env, out.calls) {
			settled[s.Call.ID] = s
			result.Settlements = append(result.Settlements, s)
			ev := stream.ToolResult{ToolCallID: s.Call.ID, ToolName: s.Call.Name, Result: s.Result, IsError: s.Failed()}
			if err := emit.Emit(ctx, ev); err != nil {
				return result, err
			}
		}

		for _, call := range out.calls {
			s := settled[call.ID]
			messages = append(messages, llm.ChatMessage{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    llm.TruncateText(string(s.Result), maxToolResultChars),
			})
		}
	}

	// Unreachable when maxSteps > 0: the final step has no tools.
	return result, fmt.Errorf("generation exceeded %d steps", o.maxSteps)
}

type stepOutput struct {
	message      llm.ChatMessage
	calls        []Call
	usage        stream.Usage
	finishReason string
}

func (o *Orchestrator) streamStep(ctx context.Context, backend llm.Backend, req llm.Request, emit stream.Emitter) (*stepOutput, error) {
	s, err := backend.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start model stream: %w", err)
	}
	defer s.Close()

	acc := newStepAccumulator()
	var upstreamUsage *llm.Usage

	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("receive model stream: %w", err)
		}
		if delta == nil {
			continue
		}
		if delta.Reasoning != "" {
			acc.reasoning.WriteString(delta.Reasoning)
			if err := emit.Emit(ctx, stream.ReasoningDelta{Text: delta.Reasoning}); err != nil {
				return nil, err
			}
		}
		if delta.Content != "" {
			acc.content.WriteString(delta.Content)
			if err := emit.Emit(ctx, stream.TextDelta{Text: delta.Content}); err != nil {
				return nil, err
			}
		}
		for _, tc := range delta.ToolCalls {
			acc.addToolCall(tc)
		}
		if delta.FinishReason != "" {
			acc.finishReason = delta.FinishReason
		}
		if delta.Usage != nil {
			upstreamUsage = delta.Usage
		}
	}

	out := &stepOutput{finishReason: acc.finishReason}
	var dropped int
	out.message, out.calls, dropped = acc.build()
	if dropped > 0 {
		o.log.Warn().Int("dropped", dropped).Msg("ignored tool calls without a name")
	}
	if upstreamUsage != nil {
		out.usage = stream.Usage{PromptTokens: upstreamUsage.PromptTokens, CompletionTokens: upstreamUsage.CompletionTokens}
	} else {
		out.usage = stream.Usage{
			PromptTokens:     llm.EstimateMessagesTokenCount(o.counter, req.Messages),
			CompletionTokens: o.counter.Count(acc.content.String()) + o.counter.Count(acc.reasoning.String()),
		}
	}
	return out, nil
}

type stepAccumulator struct {
	content      strings.Builder
	reasoning    strings.Builder
	finishReason string
	toolCalls    map[int]*toolCallAccumulator
}

type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

func newStepAccumulator() *stepAccumulator {
	return &stepAccumulator{toolCalls: make(map[int]*toolCallAccumulator)}
}

func (a *stepAccumulator) addToolCall(d llm.ToolCallDelta) {
	b, ok := a.toolCalls[d.Index]
	if !ok {
		b = &toolCallAccumulator{}
		a.toolCalls[d.Index] = b
	}
	if d.ID != "" {
		b.id = d.ID
	}
	if d.Name != "" {
		b.name = d.Name
	}
	b.args.WriteString(d.Arguments)
}

// build assembles the assistant message and its calls. Calls without a name
// are dropped and counted; duplicate ids get a fresh one.
func (a *stepAccumulator) build() (llm.ChatMessage, []Call, int) {
	msg := llm.ChatMessage{Role: llm.RoleAssistant, Content: a.content.String()}
	if len(a.toolCalls) == 0 {
		return msg, nil, 0
	}

	indexes := make([]int, 0, len(a.toolCalls))
	for idx := range a.toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]Call, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	var dropped int
	for _, idx := range indexes {
		b := a.toolCalls[idx]
		if strings.TrimSpace(b.name) == "" {
			dropped++
			continue
		}
		if _, dup := seen[b.id]; dup || b.id == "" {
			b.id = "call_" + uuid.NewString()
		}
		seen[b.id] = struct{}{}
		args := strings.TrimSpace(b.args.String())
		if args == "" {
			args = "{}"
		}
		callArgs := json.RawMessage(args)
		if !json.Valid(callArgs) {
			// Keep the stream encodable; the tool rejects the string argument.
			callArgs, _ = json.Marshal(args)
		}
		calls = append(calls, Call{ID: b.id, Name: b.name, Args: callArgs})
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{ID: b.id, Name: b.name, Arguments: args})
	}
	return msg, calls, dropped
}

func mapFinishReason(reason string) stream.FinishReason {
	switch reason {
	case "", "stop":
		return stream.FinishStop
	case "length":
		return stream.FinishLength
	case "tool_calls", "function_call":
		return stream.FinishToolCalls
	default:
		return stream.FinishOther
	}
}
