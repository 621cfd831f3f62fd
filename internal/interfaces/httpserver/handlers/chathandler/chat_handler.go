package chathandler

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/internal/infrastructure/metrics"
	"agentforge/chat-api/internal/interfaces/httpserver/requests"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

const defaultListLimit = 50

type ChatHandler struct {
	turns        *chat.TurnOrchestrator
	chats        *chat.Service
	streamBuffer int
	log          zerolog.Logger
}

func NewChatHandler(turns *chat.TurnOrchestrator, chats *chat.Service, streamBuffer int, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		turns:        turns,
		chats:        chats,
		streamBuffer: streamBuffer,
		log:          log.With().Str("component", "chat-handler").Logger(),
	}
}

// PrepareTurn validates a chat request. Errors returned here are sent as JSON
// because nothing has been streamed yet.
func (h *ChatHandler) PrepareTurn(ctx context.Context, session *auth.Session, req requests.ChatRequest) (*chat.Turn, error) {
	return h.turns.Prepare(ctx, session, req.ToTurnRequest())
}

// StreamTurn runs the turn and writes its events to w in order. The turn
// keeps producing into a pipe while the encoder drains it; a write failure
// closes the pipe so the turn stops at its next emit.
func (h *ChatHandler) StreamTurn(ctx context.Context, turn *chat.Turn, w io.Writer) error {
	log := h.log.With().Str("chat_id", turn.ChatID()).Str("message_id", turn.MessageID()).Logger()
	pipe := stream.NewPipe(h.streamBuffer)
	counted := stream.EmitterFunc(func(ctx context.Context, ev stream.Event) error {
		if err := pipe.Emit(ctx, ev); err != nil {
			return err
		}
		metrics.StreamEventsTotal.WithLabelValues(string(ev.Type())).Inc()
		return nil
	})

	done := make(chan error, 1)
	go func() {
		defer pipe.CloseSend()
		done <- turn.Stream(ctx, counted)
	}()

	drainErr := pipe.Drain(ctx, stream.NewEncoder(w))
	turnErr := <-done
	if drainErr != nil {
		log.Info().Err(drainErr).Msg("client stopped reading the stream")
		return drainErr
	}
	if turnErr != nil && !errors.Is(turnErr, stream.ErrClosed) {
		log.Warn().Err(turnErr).Msg("turn ended with an error")
	}
	return nil
}

func (h *ChatHandler) ListChats(ctx context.Context, userID string, query requests.ListQuery) (responses.ListResponse[*chat.Chat], error) {
	chats, err := h.chats.ListChats(ctx, userID, query.LimitOr(defaultListLimit))
	if err != nil {
		return responses.ListResponse[*chat.Chat]{}, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list chats")
	}
	return responses.NewList(chats), nil
}

func (h *ChatHandler) GetChat(ctx context.Context, userID, chatID string) (*responses.ChatResponse, error) {
	if chatID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, "chat id is required", nil, "e4b17c9a-2d5f-4a83-b6e0-7f9c1d3a5b28")
	}
	c, msgs, err := h.chats.GetChatWithMessages(ctx, userID, chatID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get chat")
	}
	return &responses.ChatResponse{Chat: c, Messages: msgs}, nil
}

func (h *ChatHandler) UpdateVisibility(ctx context.Context, userID, chatID string, req requests.UpdateVisibilityRequest) (*chat.Chat, error) {
	if !req.Visibility.Valid() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, "invalid visibility", nil, "a9c3e6f1-5b2d-4e74-8d19-c0f2b7a4e653")
	}
	c, err := h.chats.UpdateVisibility(ctx, userID, chatID, req.Visibility)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to update visibility")
	}
	return c, nil
}
