package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/domain/agent"
	"agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/llm/llmtest"
	"agentforge/chat-api/internal/domain/message"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/internal/domain/tool"
	"agentforge/chat-api/internal/utils/platformerrors"
)

type fakeRepo struct {
	mu           sync.Mutex
	chats        map[string]*chat.Chat
	msgs         map[string][]message.Message
	titleUpdates int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{chats: map[string]*chat.Chat{}, msgs: map[string][]message.Message{}}
}

func (r *fakeRepo) GetChat(_ context.Context, id string) (*chat.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[id]
	if !ok {
		return nil, chat.ErrChatNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) CreateChat(_ context.Context, c *chat.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[c.ID]; ok {
		return chat.ErrChatExists
	}
	cp := *c
	r.chats[c.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateChatTitle(_ context.Context, id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[id]
	if !ok {
		return chat.ErrChatNotFound
	}
	c.Title = title
	r.titleUpdates++
	return nil
}

func (r *fakeRepo) UpdateChatVisibility(_ context.Context, id string, v chat.Visibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[id]
	if !ok {
		return chat.ErrChatNotFound
	}
	c.Visibility = v
	return nil
}

func (r *fakeRepo) ListChatsByUser(_ context.Context, userID string, limit int) ([]*chat.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*chat.Chat
	for _, c := range r.chats {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) GetMessagesByChat(_ context.Context, chatID string) ([]message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message.Message(nil), r.msgs[chatID]...), nil
}

func (r *fakeRepo) SaveMessages(_ context.Context, chatID string, msgs []message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[chatID] = append(r.msgs[chatID], msgs...)
	return nil
}

func (r *fakeRepo) title(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.chats[id]; ok {
		return c.Title
	}
	return ""
}

type fakeLedger struct {
	mu          sync.Mutex
	ReserveFunc func(ctx context.Context, userID string, min decimal.Decimal) error
	charged     []decimal.Decimal
}

func (l *fakeLedger) Reserve(ctx context.Context, userID string, min decimal.Decimal) error {
	if l.ReserveFunc != nil {
		return l.ReserveFunc(ctx, userID, min)
	}
	return nil
}

func (l *fakeLedger) Charge(_ context.Context, _ string, amount decimal.Decimal, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.charged = append(l.charged, amount)
	return nil
}

type generatorFunc func(ctx context.Context, firstMessage, modelID string) (string, error)

func (f generatorFunc) GenerateTitle(ctx context.Context, firstMessage, modelID string) (string, error) {
	return f(ctx, firstMessage, modelID)
}

// goScheduler runs each title task on its own goroutine.
type goScheduler struct {
	svc  *chat.TitleService
	done chan error
}

func (s *goScheduler) SubmitTitle(ctx context.Context, task chat.TitleTask) error {
	go func() { s.done <- s.svc.Handle(ctx, task) }()
	return nil
}

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []chat.TitleTask
}

func (s *recordingScheduler) SubmitTitle(_ context.Context, task chat.TitleTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

func userMessage(text string) message.Message {
	return message.Message{Role: message.RoleUser, Parts: []message.Part{&message.TextPart{Text: text}}}
}

func newTurns(t *testing.T, repo chat.Repository, resolver llm.Resolver, sched chat.TitleScheduler, ledger chat.CreditLedger) *chat.TurnOrchestrator {
	t.Helper()
	registry, err := tool.NewRegistry()
	require.NoError(t, err)
	gen := tool.NewOrchestrator(tool.NewExecutor(registry, tool.ExecutorConfig{}, zerolog.Nop()), 3, nil, zerolog.Nop())
	return chat.NewTurnOrchestrator(repo, nil, resolver, gen, ledger, nil, sched, chat.TurnConfig{DefaultModel: "m1"}, zerolog.Nop())
}

var alice = &auth.Session{UserID: "alice", Tier: auth.TierFree}

func TestPrepare_RejectsBeforeGeneration(t *testing.T) {
	tests := []struct {
		name     string
		session  *auth.Session
		setup    func(repo *fakeRepo, resolver *llmtest.Resolver, ledger *fakeLedger)
		req      chat.TurnRequest
		wantType platformerrors.ErrorType
	}{
		{
			name:     "unauthenticated",
			session:  nil,
			req:      chat.TurnRequest{ChatID: "c1", ModelID: "m1", Messages: []message.Message{userMessage("hi")}},
			wantType: platformerrors.ErrorTypeUnauthorized,
		},
		{
			name:    "chat owned by someone else",
			session: alice,
			setup: func(repo *fakeRepo, _ *llmtest.Resolver, _ *fakeLedger) {
				repo.chats["c1"] = &chat.Chat{ID: "c1", UserID: "bob", Title: "Bob's", Visibility: chat.VisibilityPublic}
			},
			req:      chat.TurnRequest{ChatID: "c1", ModelID: "m1", Messages: []message.Message{userMessage("hi")}},
			wantType: platformerrors.ErrorTypeForbidden,
		},
		{
			name:     "unknown model",
			session:  alice,
			req:      chat.TurnRequest{ChatID: "c1", ModelID: "nope", Messages: []message.Message{userMessage("hi")}},
			wantType: platformerrors.ErrorTypeNotFound,
		},
		{
			name:    "model above entitlement",
			session: alice,
			setup: func(_ *fakeRepo, resolver *llmtest.Resolver, _ *fakeLedger) {
				resolver.Infos["m1"] = llm.ModelInfo{ID: "m1", Tier: auth.TierPro}
			},
			req:      chat.TurnRequest{ChatID: "c1", ModelID: "m1", Messages: []message.Message{userMessage("hi")}},
			wantType: platformerrors.ErrorTypeForbidden,
		},
		{
			name:    "insufficient credits",
			session: alice,
			setup: func(_ *fakeRepo, _ *llmtest.Resolver, ledger *fakeLedger) {
				ledger.ReserveFunc = func(ctx context.Context, _ string, _ decimal.Decimal) error {
					return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypePaymentRequired, "insufficient credits", nil, "")
				}
			},
			req:      chat.TurnRequest{ChatID: "c1", ModelID: "m1", Messages: []message.Message{userMessage("hi")}},
			wantType: platformerrors.ErrorTypePaymentRequired,
		},
		{
			name:     "last message not from user",
			session:  alice,
			req:      chat.TurnRequest{ChatID: "c1", ModelID: "m1", Messages: []message.Message{{Role: message.RoleAssistant, Parts: []message.Part{&message.TextPart{Text: "x"}}}}},
			wantType: platformerrors.ErrorTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			backend := llmtest.NewBackend(llmtest.Step{Deltas: llmtest.Text("unused")})
			resolver := llmtest.NewResolver(backend, "m1")
			ledger := &fakeLedger{}
			sched := &recordingScheduler{}
			if tt.setup != nil {
				tt.setup(repo, resolver, ledger)
			}

			turns := newTurns(t, repo, resolver, sched, ledger)
			turn, err := turns.Prepare(context.Background(), tt.session, tt.req)

			require.Error(t, err)
			assert.Nil(t, turn)
			assert.True(t, platformerrors.IsErrorType(err, tt.wantType), "got %v", err)
			assert.Empty(t, backend.Requests())
			sched.mu.Lock()
			assert.Empty(t, sched.tasks)
			sched.mu.Unlock()
		})
	}
}

func TestTurn_NewChatStreamsBeforeTitle(t *testing.T) {
	repo := newFakeRepo()
	backend := llmtest.NewBackend(llmtest.Step{Deltas: llmtest.Text("Hello", " there")})
	resolver := llmtest.NewResolver(backend, "m1")

	gate := make(chan struct{})
	titles := chat.NewTitleService(repo, generatorFunc(func(ctx context.Context, _, _ string) (string, error) {
		select {
		case <-gate:
			return "Greeting", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}), zerolog.Nop())
	sched := &goScheduler{svc: titles, done: make(chan error, 1)}
	ledger := &fakeLedger{}
	turns := newTurns(t, repo, resolver, sched, ledger)

	turn, err := turns.Prepare(context.Background(), alice, chat.TurnRequest{
		ChatID:   "c1",
		ModelID:  "m1",
		Messages: []message.Message{userMessage("hi")},
	})
	require.NoError(t, err)
	assert.True(t, turn.NewChat())

	var (
		once             sync.Once
		titleAtFirstText string
	)
	rec := &stream.Recorder{}
	emit := stream.EmitterFunc(func(ctx context.Context, ev stream.Event) error {
		if _, ok := ev.(stream.TextDelta); ok {
			once.Do(func() {
				titleAtFirstText = repo.title("c1")
				close(gate)
			})
		}
		return rec.Emit(ctx, ev)
	})
	require.NoError(t, turn.Stream(context.Background(), emit))

	select {
	case err := <-sched.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("title task did not finish")
	}

	assert.NotEqual(t, "Greeting", titleAtFirstText)
	assert.Equal(t, "Greeting", repo.title("c1"))

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, stream.Start{MessageID: turn.MessageID()}, events[0])
	assert.IsType(t, stream.Finish{}, events[len(events)-1])

	saved, err := repo.GetMessagesByChat(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "hi", saved[0].Text())
	assert.Equal(t, "Hello there", saved[1].Text())
	assert.Equal(t, message.StatusDone, saved[1].Status)
	assert.Len(t, ledger.charged, 1)
}

func TestTurn_BackendFailureLeavesIncompleteMessage(t *testing.T) {
	repo := newFakeRepo()
	repo.chats["c1"] = &chat.Chat{ID: "c1", UserID: "alice", Title: "Existing", Visibility: chat.VisibilityPrivate}
	backend := llmtest.NewBackend(llmtest.Step{Deltas: llmtest.Text("one ", "two ", "three "), Err: errors.New("connection reset")})
	sched := &recordingScheduler{}
	turns := newTurns(t, repo, llmtest.NewResolver(backend, "m1"), sched, nil)

	turn, err := turns.Prepare(context.Background(), alice, chat.TurnRequest{ChatID: "c1", ModelID: "m1", Messages: []message.Message{userMessage("count")}})
	require.NoError(t, err)
	assert.False(t, turn.NewChat())

	rec := &stream.Recorder{}
	require.Error(t, turn.Stream(context.Background(), rec))

	events := rec.Events()
	last, ok := events[len(events)-1].(stream.Error)
	require.True(t, ok)
	assert.Equal(t, stream.CodeGenerationFailed, last.Code)
	assert.NotContains(t, last.Message, "connection reset")

	saved, err := repo.GetMessagesByChat(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "one two three ", saved[1].Text())
	assert.Equal(t, message.StatusIncomplete, saved[1].Status)
	assert.Empty(t, sched.tasks)
}

func TestTurn_ClosedClientStillPersists(t *testing.T) {
	repo := newFakeRepo()
	backend := llmtest.NewBackend(llmtest.Step{Deltas: llmtest.Text("a", "b", "c", "d", "e")})
	turns := newTurns(t, repo, llmtest.NewResolver(backend, "m1"), nil, nil)

	turn, err := turns.Prepare(context.Background(), alice, chat.TurnRequest{ChatID: "c9", ModelID: "m1", Messages: []message.Message{userMessage("letters")}})
	require.NoError(t, err)

	sent := 0
	emit := stream.EmitterFunc(func(_ context.Context, ev stream.Event) error {
		if _, ok := ev.(stream.TextDelta); ok {
			if sent == 3 {
				return stream.ErrClosed
			}
			sent++
		}
		return nil
	})
	err = turn.Stream(context.Background(), emit)
	require.ErrorIs(t, err, stream.ErrClosed)

	saved, err := repo.GetMessagesByChat(context.Background(), "c9")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, message.StatusIncomplete, saved[1].Status)
	assert.Equal(t, chat.PlaceholderTitle, repo.title("c9"))
}

func TestTurn_HistoryIncludesSettledToolCalls(t *testing.T) {
	repo := newFakeRepo()
	backend := llmtest.NewBackend(llmtest.Step{Deltas: llmtest.Text("ok")})
	turns := newTurns(t, repo, llmtest.NewResolver(backend, "m1"), nil, nil)

	previous := message.Message{Role: message.RoleAssistant, Parts: []message.Part{
		&message.TextPart{Text: "Let me check."},
		&message.ToolInvocationPart{ToolName: "calculator", ToolCallID: "t1", State: message.InvocationResult, Args: []byte(`{"expression":"1+1"}`), Result: []byte(`{"result":2}`)},
		&message.ToolInvocationPart{ToolName: "calculator", ToolCallID: "t2", State: message.InvocationCall},
		&message.TextPart{Text: "It is 2."},
	}}

	turn, err := turns.Prepare(context.Background(), alice, chat.TurnRequest{
		ChatID:       "c2",
		ModelID:      "m1",
		SystemPrompt: "Be brief.",
		Messages:     []message.Message{userMessage("1+1?"), previous, userMessage("thanks")},
	})
	require.NoError(t, err)
	require.NoError(t, turn.Stream(context.Background(), &stream.Recorder{}))

	msgs := backend.Requests()[0].Messages
	roles := make([]string, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleTool, llm.RoleAssistant, llm.RoleUser}, roles)
	assert.Equal(t, "Be brief.", msgs[0].Content)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "t1", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, "t1", msgs[3].ToolCallID)
	assert.Equal(t, `{"result":2}`, msgs[3].Content)
	assert.Equal(t, "It is 2.", msgs[4].Content)
}

type agentLookupFunc func(ctx context.Context, userID, id string) (*agent.Agent, error)

func (f agentLookupFunc) GetUsableAgent(ctx context.Context, userID, id string) (*agent.Agent, error) {
	return f(ctx, userID, id)
}

func TestTurn_AgentToolAllowlistEnforcedAtRunTime(t *testing.T) {
	var mu sync.Mutex
	runs := map[string]int{}
	registry, err := tool.NewRegistry(
		tool.Func{Def: tool.Definition{Name: "calculator"}, Fn: func(context.Context, tool.Env, json.RawMessage) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			runs["calculator"]++
			return 2, nil
		}},
		tool.Func{Def: tool.Definition{Name: "execute_code"}, Fn: func(context.Context, tool.Env, json.RawMessage) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			runs["execute_code"]++
			return "ran", nil
		}},
	)
	require.NoError(t, err)
	gen := tool.NewOrchestrator(tool.NewExecutor(registry, tool.ExecutorConfig{}, zerolog.Nop()), 3, nil, zerolog.Nop())

	agents := agentLookupFunc(func(_ context.Context, _, id string) (*agent.Agent, error) {
		return &agent.Agent{ID: id, UserID: "alice", Name: "Maths", Tools: []string{"calculator"}}, nil
	})
	backend := llmtest.NewBackend(
		llmtest.Step{Deltas: llmtest.ToolCalls(llm.ToolCall{ID: "x1", Name: "execute_code", Arguments: `{"code":"print(1)"}`})},
		llmtest.Step{Deltas: llmtest.Text("I cannot run code here.")},
	)
	turns := chat.NewTurnOrchestrator(newFakeRepo(), agents, llmtest.NewResolver(backend, "m1"), gen, nil, nil, nil, chat.TurnConfig{DefaultModel: "m1"}, zerolog.Nop())

	agentID := "a1"
	turn, err := turns.Prepare(context.Background(), alice, chat.TurnRequest{
		ChatID:   "c3",
		ModelID:  "m1",
		AgentID:  &agentID,
		Messages: []message.Message{userMessage("run print(1)")},
	})
	require.NoError(t, err)

	rec := &stream.Recorder{}
	require.NoError(t, turn.Stream(context.Background(), rec))

	offered := backend.Requests()[0].Tools
	require.Len(t, offered, 1)
	assert.Equal(t, "calculator", offered[0].Name)
	assert.Zero(t, runs["execute_code"])

	var result *stream.ToolResult
	for _, ev := range rec.Events() {
		if r, ok := ev.(stream.ToolResult); ok {
			result = &r
		}
	}
	require.NotNil(t, result)
	assert.Equal(t, "execute_code", result.ToolName)
	assert.True(t, result.IsError)
	assert.JSONEq(t, `{"error":"tool \"execute_code\" is not enabled for this agent"}`, string(result.Result))
}

func TestTitleService_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	calls := 0
	svc := chat.NewTitleService(repo, generatorFunc(func(context.Context, string, string) (string, error) {
		calls++
		return "Weather in Oslo", nil
	}), zerolog.Nop())

	task := chat.TitleTask{ChatID: "c1", UserID: "alice", FirstMessage: "what's the weather in oslo", ModelID: "m1"}
	require.NoError(t, svc.Handle(context.Background(), task))
	require.NoError(t, svc.Handle(context.Background(), task))

	assert.Equal(t, "Weather in Oslo", repo.title("c1"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, repo.titleUpdates)

	require.NoError(t, repo.UpdateChatTitle(context.Background(), "c1", "Renamed by hand"))
	require.NoError(t, svc.Handle(context.Background(), task))
	assert.Equal(t, "Renamed by hand", repo.title("c1"))
}

func TestTitleService_Failures(t *testing.T) {
	t.Run("model unavailable falls back to truncation", func(t *testing.T) {
		repo := newFakeRepo()
		svc := chat.NewTitleService(repo, generatorFunc(func(context.Context, string, string) (string, error) {
			return "", llm.ErrModelNotFound
		}), zerolog.Nop())

		require.NoError(t, svc.Handle(context.Background(), chat.TitleTask{ChatID: "c1", UserID: "alice", FirstMessage: "plan a trip"}))
		assert.Equal(t, "plan a trip", repo.title("c1"))
	})

	t.Run("other errors keep the placeholder", func(t *testing.T) {
		repo := newFakeRepo()
		svc := chat.NewTitleService(repo, generatorFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("upstream 503")
		}), zerolog.Nop())

		err := svc.Handle(context.Background(), chat.TitleTask{ChatID: "c1", UserID: "alice", FirstMessage: "hi"})
		require.Error(t, err)
		assert.Equal(t, chat.PlaceholderTitle, repo.title("c1"))
	})
}

func TestLLMTitleGenerator(t *testing.T) {
	backend := llmtest.NewBackend()
	backend.CompleteFunc = func(context.Context, llm.Request) (*llm.Completion, error) {
		return &llm.Completion{Content: "\"Trip to Paris\"\nSecond line"}, nil
	}
	gen := chat.NewLLMTitleGenerator(llmtest.NewResolver(backend, "title-model"), "title-model")

	title, err := gen.GenerateTitle(context.Background(), "help me plan a trip to paris", "m1")
	require.NoError(t, err)
	assert.Equal(t, "Trip to Paris", title)

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, llm.RoleSystem, reqs[0].Messages[0].Role)
}

func TestTitleHelpers(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"sanitize trims quotes", chat.SanitizeTitle, `  'Hello'  `, "Hello"},
		{"sanitize strips prefix", chat.SanitizeTitle, "Title: Budget review", "Budget review"},
		{"fallback short", chat.FallbackTitle, "  short   message ", "short message"},
		{"fallback empty", chat.FallbackTitle, "   ", chat.PlaceholderTitle},
		{
			"fallback cuts on word boundary",
			chat.FallbackTitle,
			"please summarize the quarterly revenue report for the northern region offices",
			"please summarize the quarterly revenue report for the",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}

func TestService_Visibility(t *testing.T) {
	repo := newFakeRepo()
	repo.chats["c1"] = &chat.Chat{ID: "c1", UserID: "alice", Title: "Mine", Visibility: chat.VisibilityPrivate}
	svc := chat.NewService(repo)
	ctx := context.Background()

	_, _, err := svc.GetChatWithMessages(ctx, "bob", "c1")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	_, err = svc.UpdateVisibility(ctx, "bob", "c1", chat.VisibilityPublic)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	updated, err := svc.UpdateVisibility(ctx, "alice", "c1", chat.VisibilityLink)
	require.NoError(t, err)
	assert.Equal(t, chat.VisibilityLink, updated.Visibility)

	c, _, err := svc.GetChatWithMessages(ctx, "bob", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Mine", c.Title)

	_, _, err = svc.GetChatWithMessages(ctx, "alice", "missing")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}
