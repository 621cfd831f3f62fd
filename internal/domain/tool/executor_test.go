package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/domain/tool"
)

func newFunc(name string, fn func(ctx context.Context, env tool.Env, args json.RawMessage) (any, error)) tool.Tool {
	return tool.Func{
		Def: tool.Definition{Name: name, Description: name, Parameters: json.RawMessage(`{"type":"object"}`)},
		Fn:  fn,
	}
}

func newExecutor(t *testing.T, cfg tool.ExecutorConfig, tools ...tool.Tool) *tool.Executor {
	t.Helper()
	registry, err := tool.NewRegistry(tools...)
	require.NoError(t, err)
	return tool.NewExecutor(registry, cfg, zerolog.Nop())
}

func collect(ch <-chan tool.Settlement) []tool.Settlement {
	var out []tool.Settlement
	for s := range ch {
		out = append(out, s)
	}
	return out
}

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to tool.State
		want     bool
	}{
		{tool.StateRequested, tool.StateExecuting, true},
		{tool.StateRequested, tool.StateFailed, true},
		{tool.StateRequested, tool.StateResult, false},
		{tool.StateExecuting, tool.StateResult, true},
		{tool.StateExecuting, tool.StateFailed, true},
		{tool.StateResult, tool.StateFailed, false},
		{tool.StateFailed, tool.StateResult, false},
		{tool.StateResult, tool.StateResult, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	inv := tool.NewInvocation(tool.Call{ID: "a", Name: "calc"})
	require.NoError(t, inv.Transition(tool.StateExecuting))
	require.NoError(t, inv.Transition(tool.StateResult))
	assert.Error(t, inv.Transition(tool.StateFailed))
	assert.True(t, inv.State.IsTerminal())
}

func TestExecutor_RunsCallsConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	barrier := func(ctx context.Context, _ tool.Env, _ json.RawMessage) (any, error) {
		started.Done()
		// Each call waits for the other to start; serial execution would time out.
		waitCh := make(chan struct{})
		go func() { started.Wait(); close(waitCh) }()
		select {
		case <-waitCh:
			return map[string]bool{"ok": true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	exec := newExecutor(t, tool.ExecutorConfig{DefaultTimeout: 2 * time.Second},
		newFunc("left", barrier), newFunc("right", barrier))

	settlements := collect(exec.Dispatch(context.Background(), tool.Env{}, []tool.Call{
		{ID: "1", Name: "left"},
		{ID: "2", Name: "right"},
	}))

	require.Len(t, settlements, 2)
	for _, s := range settlements {
		assert.Equal(t, tool.StateResult, s.State, s.Err)
		assert.JSONEq(t, `{"ok":true}`, string(s.Result))
	}
}

func TestExecutor_FailuresBecomeOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		tool      tool.Tool
		call      tool.Call
		env       tool.Env
		cfg       tool.ExecutorConfig
		wantError string
	}{
		{
			name: "returned error",
			tool: newFunc("boom", func(context.Context, tool.Env, json.RawMessage) (any, error) {
				return nil, errors.New("sandbox exploded")
			}),
			call:      tool.Call{ID: "a", Name: "boom"},
			wantError: "sandbox exploded",
		},
		{
			name: "panic",
			tool: newFunc("panicky", func(context.Context, tool.Env, json.RawMessage) (any, error) {
				panic("nil map")
			}),
			call:      tool.Call{ID: "a", Name: "panicky"},
			wantError: `tool "panicky" panicked: nil map`,
		},
		{
			name: "per tool timeout",
			tool: newFunc("slow", func(ctx context.Context, _ tool.Env, _ json.RawMessage) (any, error) {
				time.Sleep(time.Second)
				return "late", nil
			}),
			call:      tool.Call{ID: "a", Name: "slow"},
			cfg:       tool.ExecutorConfig{DefaultTimeout: time.Minute, Timeouts: map[string]time.Duration{"slow": 20 * time.Millisecond}},
			wantError: `tool "slow" timed out after 20ms`,
		},
		{
			name:      "unknown tool",
			tool:      newFunc("known", func(context.Context, tool.Env, json.RawMessage) (any, error) { return nil, nil }),
			call:      tool.Call{ID: "a", Name: "missing"},
			wantError: `unknown tool "missing"`,
		},
		{
			name: "not enabled for agent",
			tool: newFunc("execute_code", func(context.Context, tool.Env, json.RawMessage) (any, error) {
				return "ran", nil
			}),
			call:      tool.Call{ID: "a", Name: "execute_code", Args: json.RawMessage(`{"code":"print(1)"}`)},
			env:       tool.Env{AllowedTools: []string{"calculator"}},
			wantError: `tool "execute_code" is not enabled for this agent`,
		},
		{
			name:      "invalid arguments",
			tool:      newFunc("known", func(context.Context, tool.Env, json.RawMessage) (any, error) { return nil, nil }),
			call:      tool.Call{ID: "a", Name: "known", Args: json.RawMessage(`{not json`)},
			wantError: `invalid arguments for tool "known"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newExecutor(t, tt.cfg, tt.tool)
			settlements := collect(exec.Dispatch(context.Background(), tt.env, []tool.Call{tt.call}))

			require.Len(t, settlements, 1)
			s := settlements[0]
			assert.True(t, s.Failed())
			assert.Equal(t, tt.wantError, s.Err)

			var payload map[string]string
			require.NoError(t, json.Unmarshal(s.Result, &payload))
			assert.Equal(t, tt.wantError, payload["error"])
		})
	}
}

func TestExecutor_SurvivesRequestCancellation(t *testing.T) {
	release := make(chan struct{})
	exec := newExecutor(t, tool.ExecutorConfig{DefaultTimeout: time.Second},
		newFunc("waits", func(ctx context.Context, _ tool.Env, _ json.RawMessage) (any, error) {
			select {
			case <-release:
				return "finished", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))

	ctx, cancel := context.WithCancel(context.Background())
	ch := exec.Dispatch(ctx, tool.Env{}, []tool.Call{{ID: "a", Name: "waits"}})
	cancel()
	close(release)

	settlements := collect(ch)
	require.Len(t, settlements, 1)
	assert.Equal(t, tool.StateResult, settlements[0].State)
	assert.JSONEq(t, `"finished"`, string(settlements[0].Result))
}

func TestExecutor_OnSettledHook(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	exec := newExecutor(t, tool.ExecutorConfig{OnSettled: func(s tool.Settlement) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Call.ID)
	}}, newFunc("echo", func(_ context.Context, _ tool.Env, args json.RawMessage) (any, error) {
		return args, nil
	}))

	collect(exec.Dispatch(context.Background(), tool.Env{}, []tool.Call{
		{ID: "a", Name: "echo", Args: json.RawMessage(`{"x":1}`)},
		{ID: "b", Name: "echo"},
	}))

	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestEnv_Allows(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		tool    string
		want    bool
	}{
		{name: "no list allows all", tool: "execute_code", want: true},
		{name: "listed", allowed: []string{"calculator", "read_webpage"}, tool: "calculator", want: true},
		{name: "not listed", allowed: []string{"calculator"}, tool: "execute_code", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tool.Env{AllowedTools: tt.allowed}.Allows(tt.tool))
		})
	}
}

func TestRegistry_Definitions(t *testing.T) {
	noop := func(context.Context, tool.Env, json.RawMessage) (any, error) { return nil, nil }
	registry, err := tool.NewRegistry(newFunc("b", noop), newFunc("a", noop), newFunc("c", noop))
	require.NoError(t, err)

	names := func(defs []tool.Definition) []string {
		out := make([]string, 0, len(defs))
		for _, d := range defs {
			out = append(out, d.Name)
		}
		return out
	}

	assert.Equal(t, []string{"a", "b", "c"}, names(registry.Definitions(nil)))
	assert.Equal(t, []string{"a", "c"}, names(registry.Definitions([]string{"c", "a", "zzz"})))
	assert.Error(t, registry.Register(newFunc("a", noop)))
}
