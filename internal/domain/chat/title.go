package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/domain/llm"
)

const (
	maxTitleRunes    = 80
	fallbackMaxRunes = 60
)

const titleInstructions = `You generate a short title for a conversation based on the user's first message.
Keep it under 80 characters. Summarize the message. Do not use quotes or colons. Reply with the title only.`

// TitleTask asks for the placeholder of a new chat to be replaced by a generated title.
type TitleTask struct {
	ChatID       string     `json:"chatId"`
	UserID       string     `json:"userId"`
	AgentID      *string    `json:"agentId,omitempty"`
	Visibility   Visibility `json:"visibility,omitempty"`
	FirstMessage string     `json:"firstMessage"`
	ModelID      string     `json:"modelId"`
}

// TitleScheduler hands title tasks to background processing.
type TitleScheduler interface {
	SubmitTitle(ctx context.Context, task TitleTask) error
}

// TitleGenerator produces a chat title from the first user message.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, firstMessage, modelID string) (string, error)
}

// LLMTitleGenerator asks a model for a title.
type LLMTitleGenerator struct {
	resolver   llm.Resolver
	titleModel string
}

// NewLLMTitleGenerator uses titleModel when set, otherwise the chat's model.
func NewLLMTitleGenerator(resolver llm.Resolver, titleModel string) *LLMTitleGenerator {
	return &LLMTitleGenerator{resolver: resolver, titleModel: titleModel}
}

// GenerateTitle implements TitleGenerator.
func (g *LLMTitleGenerator) GenerateTitle(ctx context.Context, firstMessage, modelID string) (string, error) {
	if g.titleModel != "" {
		modelID = g.titleModel
	}
	backend, info, err := g.resolver.Resolve(ctx, modelID)
	if err != nil {
		return "", err
	}

	temperature := float32(0.3)
	completion, err := backend.Complete(ctx, llm.Request{
		Model: info.UpstreamModel,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: titleInstructions},
			{Role: llm.RoleUser, Content: llm.TruncateText(firstMessage, 4000)},
		},
		Temperature: &temperature,
		MaxTokens:   32,
	})
	if err != nil {
		return "", fmt.Errorf("complete title: %w", err)
	}

	title := SanitizeTitle(completion.Content)
	if title == "" {
		return "", errors.New("model returned an empty title")
	}
	return title, nil
}

// SanitizeTitle keeps the first line of s without surrounding quotes, capped at 80 runes.
func SanitizeTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'` ")
	s = strings.TrimPrefix(s, "Title:")
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxTitleRunes {
		s = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	return s
}

// FallbackTitle truncates text to 60 runes on a word boundary.
func FallbackTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return PlaceholderTitle
	}
	r := []rune(text)
	if len(r) <= fallbackMaxRunes {
		return text
	}
	cut := fallbackMaxRunes
	for i := fallbackMaxRunes; i > 0; i-- {
		if unicode.IsSpace(r[i]) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(r[:cut]))
}

// TitleService replaces placeholder titles. Handle is safe to run more than once.
type TitleService struct {
	repo      Repository
	generator TitleGenerator
	log       zerolog.Logger
}

// NewTitleService creates a title service.
func NewTitleService(repo Repository, generator TitleGenerator, log zerolog.Logger) *TitleService {
	return &TitleService{
		repo:      repo,
		generator: generator,
		log:       log.With().Str("component", "title-service").Logger(),
	}
}

// Handle ensures the chat exists and titles it if it still has the placeholder.
func (s *TitleService) Handle(ctx context.Context, task TitleTask) error {
	c, err := ensureChat(ctx, s.repo, Chat{
		ID:         task.ChatID,
		UserID:     task.UserID,
		AgentID:    task.AgentID,
		Visibility: task.Visibility,
	})
	if err != nil {
		return fmt.Errorf("ensure chat %s: %w", task.ChatID, err)
	}
	if c.Title != PlaceholderTitle {
		return nil
	}

	title, err := s.generator.GenerateTitle(ctx, task.FirstMessage, task.ModelID)
	if err != nil {
		if !errors.Is(err, llm.ErrModelNotFound) {
			return fmt.Errorf("generate title for chat %s: %w", task.ChatID, err)
		}
		s.log.Warn().Err(err).Str("chat_id", task.ChatID).Msg("title model unavailable, using fallback title")
		title = FallbackTitle(task.FirstMessage)
	}
	if title == PlaceholderTitle {
		return nil
	}

	if err := s.repo.UpdateChatTitle(ctx, task.ChatID, title); err != nil {
		return fmt.Errorf("update title of chat %s: %w", task.ChatID, err)
	}
	s.log.Debug().Str("chat_id", task.ChatID).Str("title", title).Msg("chat titled")
	return nil
}
