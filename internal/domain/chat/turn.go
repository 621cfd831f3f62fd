package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agentforge/chat-api/internal/domain/agent"
	"agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/message"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/internal/domain/tool"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// DefaultSystemPrompt is used when neither the agent nor the request sets one.
const DefaultSystemPrompt = "You are a friendly assistant. Keep your responses concise and helpful."

const generationFailedMessage = "generation failed, please retry"

// AgentLookup resolves agents usable by a user.
type AgentLookup interface {
	GetUsableAgent(ctx context.Context, userID, id string) (*agent.Agent, error)
}

// CreditLedger checks and debits user credits.
type CreditLedger interface {
	Reserve(ctx context.Context, userID string, min decimal.Decimal) error
	Charge(ctx context.Context, userID string, amount decimal.Decimal, reference string) error
}

// ModelPreferences returns the model a user selected.
type ModelPreferences interface {
	PreferredModel(ctx context.Context, userID string) string
}

// TurnSummary describes a finished turn.
type TurnSummary struct {
	ChatID   string
	ModelID  string
	Status   message.Status
	Usage    stream.Usage
	Steps    int
	Duration time.Duration
}

// TurnConfig tunes the orchestrator.
type TurnConfig struct {
	DefaultModel        string
	DefaultSystemPrompt string
	// MinCredits is the balance required to start a turn.
	MinCredits     decimal.Decimal
	OnTurnComplete func(TurnSummary)
}

// TurnRequest is one user turn.
type TurnRequest struct {
	ChatID       string
	ModelID      string
	Messages     []message.Message
	SystemPrompt string
	AgentID      *string
	Visibility   Visibility
}

// TurnOrchestrator validates turns before streaming and runs them.
type TurnOrchestrator struct {
	repo      Repository
	agents    AgentLookup
	resolver  llm.Resolver
	generator *tool.Orchestrator
	ledger    CreditLedger
	prefs     ModelPreferences
	titles    TitleScheduler
	cfg       TurnConfig
	log       zerolog.Logger
}

// NewTurnOrchestrator creates a turn orchestrator. agents, ledger and prefs are optional.
func NewTurnOrchestrator(
	repo Repository,
	agents AgentLookup,
	resolver llm.Resolver,
	generator *tool.Orchestrator,
	ledger CreditLedger,
	prefs ModelPreferences,
	titles TitleScheduler,
	cfg TurnConfig,
	log zerolog.Logger,
) *TurnOrchestrator {
	if cfg.DefaultSystemPrompt == "" {
		cfg.DefaultSystemPrompt = DefaultSystemPrompt
	}
	return &TurnOrchestrator{
		repo:      repo,
		agents:    agents,
		resolver:  resolver,
		generator: generator,
		ledger:    ledger,
		prefs:     prefs,
		titles:    titles,
		cfg:       cfg,
		log:       log.With().Str("component", "turn-orchestrator").Logger(),
	}
}

// Prepare runs every terminal check of a turn. It returns a platform error
// when the turn must be rejected; nothing has been streamed at that point.
// A new chat gets its title task scheduled without waiting on it.
func (o *TurnOrchestrator) Prepare(ctx context.Context, session *auth.Session, req TurnRequest) (*Turn, error) {
	if session == nil || session.UserID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnauthorized, "authentication required", nil, "0d6f2b8e-5a1c-4e97-b3d4-8c7a6e5f2014")
	}

	userMessage, err := validateTurnRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	existing, err := o.repo.GetChat(ctx, req.ChatID)
	newChat := false
	switch {
	case err == nil:
		if existing.UserID != session.UserID {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "chat belongs to another user", nil, "9e2a4c6b-7d1f-4a38-85e0-b6c3d9f1a275")
		}
	case errors.Is(err, ErrChatNotFound):
		newChat = true
	default:
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load chat")
	}

	agentID := normalizeID(req.AgentID)
	if existing != nil {
		agentID = normalizeID(existing.AgentID)
	}
	var ag *agent.Agent
	if agentID != nil && o.agents != nil {
		ag, err = o.agents.GetUsableAgent(ctx, session.UserID, *agentID)
		if err != nil {
			return nil, err
		}
	}

	modelID := o.pickModel(ctx, session, req, ag)
	backend, info, err := o.resolver.Resolve(ctx, modelID)
	if err != nil {
		if errors.Is(err, llm.ErrModelNotFound) {
			return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "model not found", err, "4b7c1e93-2f6a-4d05-9a8e-3c1b7f4d6e28", map[string]any{"model": modelID})
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve model")
	}
	if !session.Allows(info.Tier) {
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "model requires a higher tier", nil, "6a3e8d2c-1b5f-4c79-a0d4-e7f2b9c5a813", map[string]any{"model": modelID})
	}

	if o.ledger != nil {
		if err := o.ledger.Reserve(ctx, session.UserID, o.cfg.MinCredits); err != nil {
			return nil, err
		}
	}

	visibility := req.Visibility
	if existing != nil {
		visibility = existing.Visibility
	}
	var allowedTools []string
	if ag != nil {
		allowedTools = ag.Tools
	}
	turn := &Turn{
		o:           o,
		session:     session,
		chat:        Chat{ID: req.ChatID, UserID: session.UserID, AgentID: agentID, Visibility: visibility},
		newChat:     newChat,
		backend:     backend,
		model:       info,
		history:     toModelHistory(o.systemPrompt(req, ag), req.Messages),
		tools:       o.toolDefinitions(allowedTools),
		allowed:     allowedTools,
		userMessage: userMessage,
		messageID:   uuid.NewString(),
	}

	if newChat {
		o.scheduleTitle(ctx, TitleTask{
			ChatID:       req.ChatID,
			UserID:       session.UserID,
			AgentID:      agentID,
			Visibility:   visibility,
			FirstMessage: userMessage.Text(),
			ModelID:      info.ID,
		})
	}
	return turn, nil
}

func validateTurnRequest(ctx context.Context, req TurnRequest) (message.Message, error) {
	invalid := func(msg string) error {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, msg, nil, "2c8f5a1d-6e4b-4f37-9d02-a5b8c1e7f364")
	}
	if strings.TrimSpace(req.ChatID) == "" {
		return message.Message{}, invalid("chat id is required")
	}
	if req.Visibility != "" && !req.Visibility.Valid() {
		return message.Message{}, invalid("invalid visibility")
	}
	if len(req.Messages) == 0 {
		return message.Message{}, invalid("messages must not be empty")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != message.RoleUser {
		return message.Message{}, invalid("last message must be a user message")
	}
	if strings.TrimSpace(last.Text()) == "" && len(last.Attachments) == 0 {
		return message.Message{}, invalid("last message is empty")
	}

	userMessage := last.Clone()
	if userMessage.ID == "" {
		userMessage.ID = uuid.NewString()
	}
	userMessage.ChatID = req.ChatID
	userMessage.Status = message.StatusDone
	if userMessage.CreatedAt.IsZero() {
		userMessage.CreatedAt = time.Now().UTC()
	}
	return userMessage, nil
}

func normalizeID(id *string) *string {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil
	}
	v := strings.TrimSpace(*id)
	return &v
}

func (o *TurnOrchestrator) pickModel(ctx context.Context, session *auth.Session, req TurnRequest, ag *agent.Agent) string {
	switch {
	case req.ModelID != "":
		return req.ModelID
	case ag != nil && ag.ModelID != "":
		return ag.ModelID
	case o.prefs != nil:
		return o.prefs.PreferredModel(ctx, session.UserID)
	default:
		return o.cfg.DefaultModel
	}
}

func (o *TurnOrchestrator) systemPrompt(req TurnRequest, ag *agent.Agent) string {
	var parts []string
	if ag != nil && strings.TrimSpace(ag.SystemPrompt) != "" {
		parts = append(parts, strings.TrimSpace(ag.SystemPrompt))
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		parts = append(parts, strings.TrimSpace(req.SystemPrompt))
	}
	if len(parts) == 0 {
		return o.cfg.DefaultSystemPrompt
	}
	return strings.Join(parts, "\n\n")
}

func (o *TurnOrchestrator) toolDefinitions(allow []string) []tool.Definition {
	return o.generator.Executor().Registry().Definitions(allow)
}

// scheduleTitle submits the task from a detached goroutine so neither the
// submission nor the request's cancellation affects the response path.
func (o *TurnOrchestrator) scheduleTitle(ctx context.Context, task TitleTask) {
	if o.titles == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := o.titles.SubmitTitle(detached, task); err != nil {
			o.log.Error().Err(err).Str("chat_id", task.ChatID).Msg("failed to schedule title task")
		}
	}()
}

// Turn is a validated turn ready to stream.
type Turn struct {
	o           *TurnOrchestrator
	session     *auth.Session
	chat        Chat
	newChat     bool
	backend     llm.Backend
	model       llm.ModelInfo
	history     []llm.ChatMessage
	tools       []tool.Definition
	allowed     []string
	userMessage message.Message
	messageID   string
}

// ChatID returns the id of the turn's chat.
func (t *Turn) ChatID() string { return t.chat.ID }

// MessageID returns the id of the assistant message being generated.
func (t *Turn) MessageID() string { return t.messageID }

// Model returns the resolved model.
func (t *Turn) Model() llm.ModelInfo { return t.model }

// NewChat reports whether the chat did not exist when the turn was prepared.
func (t *Turn) NewChat() bool { return t.newChat }

// Stream runs the generation loop into emit. Every event is also folded into
// a server-side message which is persisted when the loop ends, even if the
// client went away. Backend failures end the stream with an error event.
func (t *Turn) Stream(ctx context.Context, emit stream.Emitter) error {
	started := time.Now()
	log := t.o.log.With().
		Str("chat_id", t.chat.ID).
		Str("message_id", t.messageID).
		Str("model", t.model.ID).
		Logger()

	asm := message.NewAssembler(t.messageID, t.chat.ID, message.WithLogger(log))
	tee := stream.EmitterFunc(func(ctx context.Context, ev stream.Event) error {
		_ = asm.Apply(ev)
		return emit.Emit(ctx, ev)
	})

	var res *tool.RunResult
	err := tee.Emit(ctx, stream.Start{MessageID: t.messageID})
	if err == nil {
		res, err = t.o.generator.Run(ctx, tool.RunParams{
			Backend:  t.backend,
			Model:    t.model,
			Messages: t.history,
			Tools:    t.tools,
			Env: tool.Env{
				UserID:       t.session.UserID,
				ChatID:       t.chat.ID,
				ModelID:      t.model.ID,
				AllowedTools: t.allowed,
				Emitter:      tee,
				Log:          log,
			},
		}, tee)
	}
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, stream.ErrClosed) {
			log.Error().Err(err).Msg("generation failed")
			_ = tee.Emit(ctx, stream.Error{Message: generationFailedMessage, Code: stream.CodeGenerationFailed})
		} else {
			log.Info().Err(err).Msg("turn interrupted")
		}
		asm.Interrupt(err)
	}

	persistCtx := context.WithoutCancel(ctx)
	assistant := asm.Snapshot()
	t.persist(persistCtx, assistant, log)

	summary := TurnSummary{ChatID: t.chat.ID, ModelID: t.model.ID, Status: assistant.Status, Duration: time.Since(started)}
	if res != nil {
		summary.Usage = res.Usage
		summary.Steps = res.Steps
		t.charge(persistCtx, res.Usage, log)
	}
	if t.o.cfg.OnTurnComplete != nil {
		t.o.cfg.OnTurnComplete(summary)
	}
	return err
}

func (t *Turn) persist(ctx context.Context, assistant message.Message, log zerolog.Logger) {
	if _, err := ensureChat(ctx, t.o.repo, t.chat); err != nil {
		log.Error().Err(err).Msg("failed to ensure chat before saving messages")
		return
	}
	msgs := []message.Message{t.userMessage}
	if len(assistant.Parts) > 0 || assistant.Status == message.StatusDone {
		msgs = append(msgs, assistant)
	}
	if err := t.o.repo.SaveMessages(ctx, t.chat.ID, msgs); err != nil {
		log.Error().Err(err).Msg("failed to save messages")
	}
}

func (t *Turn) charge(ctx context.Context, usage stream.Usage, log zerolog.Logger) {
	if t.o.ledger == nil {
		return
	}
	cost := t.model.Cost(llm.Usage{PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens})
	if err := t.o.ledger.Charge(ctx, t.session.UserID, cost, t.messageID); err != nil {
		log.Error().Err(err).Str("cost", cost.String()).Msg("failed to charge usage")
	}
}
