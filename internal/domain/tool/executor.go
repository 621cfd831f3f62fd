package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ExecutorConfig tunes tool execution.
type ExecutorConfig struct {
	// DefaultTimeout applies to tools without an explicit entry in Timeouts.
	DefaultTimeout time.Duration
	Timeouts       map[string]time.Duration
	// MaxConcurrency bounds parallel executions per dispatch; zero means unbounded.
	MaxConcurrency int
	// OnSettled observes every settlement, e.g. for metrics.
	OnSettled func(Settlement)
}

// Executor runs tool calls concurrently and converts every failure into a
// settled outcome.
type Executor struct {
	registry *Registry
	cfg      ExecutorConfig
	log      zerolog.Logger
}

// NewExecutor constructs an executor.
func NewExecutor(registry *Registry, cfg ExecutorConfig, log zerolog.Logger) *Executor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 2 * time.Minute
	}
	return &Executor{
		registry: registry,
		cfg:      cfg,
		log:      log.With().Str("component", "tool-executor").Logger(),
	}
}

// Registry returns the executor's registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Dispatch starts every call and returns settlements in completion order.
// The channel is closed after all calls settle. Calls keep running when ctx
// is cancelled; only their own timeout stops them.
func (e *Executor) Dispatch(ctx context.Context, env Env, calls []Call) <-chan Settlement {
	out := make(chan Settlement, len(calls))
	execCtx := context.WithoutCancel(ctx)

	go func() {
		defer close(out)
		var g errgroup.Group
		if e.cfg.MaxConcurrency > 0 {
			g.SetLimit(e.cfg.MaxConcurrency)
		}
		for _, call := range calls {
			g.Go(func() error {
				s := e.run(execCtx, env, call)
				if e.cfg.OnSettled != nil {
					e.cfg.OnSettled(s)
				}
				out <- s
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

type execResult struct {
	value any
	err   error
}

func (e *Executor) run(ctx context.Context, env Env, call Call) Settlement {
	inv := NewInvocation(call)
	log := e.log.With().Str("tool", call.Name).Str("tool_call_id", call.ID).Logger()

	if !env.Allows(call.Name) {
		return e.fail(inv, fmt.Sprintf("tool %q is not enabled for this agent", call.Name), log)
	}
	t, ok := e.registry.Get(call.Name)
	if !ok {
		return e.fail(inv, fmt.Sprintf("unknown tool %q", call.Name), log)
	}
	if len(call.Args) > 0 && !json.Valid(call.Args) {
		return e.fail(inv, fmt.Sprintf("invalid arguments for tool %q", call.Name), log)
	}
	if err := inv.Transition(StateExecuting); err != nil {
		return e.fail(inv, err.Error(), log)
	}

	timeout := e.timeoutFor(call.Name)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: fmt.Errorf("tool %q panicked: %v", call.Name, r)}
			}
		}()
		args := call.Args
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		v, err := t.Execute(callCtx, env, args)
		done <- execResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return e.fail(inv, res.err.Error(), log)
		}
		payload, err := json.Marshal(res.value)
		if err != nil {
			return e.fail(inv, fmt.Sprintf("encode result: %v", err), log)
		}
		_ = inv.Transition(StateResult)
		log.Debug().Dur("duration", inv.EndedAt.Sub(inv.StartedAt)).Msg("tool completed")
		return Settlement{Call: call, State: StateResult, Result: payload, Duration: inv.EndedAt.Sub(inv.StartedAt)}
	case <-callCtx.Done():
		return e.fail(inv, fmt.Sprintf("tool %q timed out after %s", call.Name, timeout), log)
	}
}

func (e *Executor) fail(inv *Invocation, msg string, log zerolog.Logger) Settlement {
	if err := inv.Transition(StateFailed); err != nil {
		log.Error().Err(err).Msg("tool state")
	}
	log.Warn().Str("error", msg).Msg("tool failed")
	var d time.Duration
	if !inv.StartedAt.IsZero() {
		d = inv.EndedAt.Sub(inv.StartedAt)
	}
	return Settlement{Call: inv.Call, State: StateFailed, Result: errorPayload(msg), Err: msg, Duration: d}
}

func (e *Executor) timeoutFor(name string) time.Duration {
	if d, ok := e.cfg.Timeouts[name]; ok && d > 0 {
		return d
	}
	return e.cfg.DefaultTimeout
}
