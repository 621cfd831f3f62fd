package modelhandler

import (
	"context"

	"agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/domain/billing"
	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/preference"
	"agentforge/chat-api/internal/interfaces/httpserver/requests"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

const creditEntriesLimit = 20

type ModelHandler struct {
	resolver    llm.Resolver
	preferences *preference.Service
	ledger      *billing.Ledger
}

func NewModelHandler(resolver llm.Resolver, preferences *preference.Service, ledger *billing.Ledger) *ModelHandler {
	return &ModelHandler{resolver: resolver, preferences: preferences, ledger: ledger}
}

// ListModels returns the catalog. Upstream names and credentials never leave
// the server.
func (h *ModelHandler) ListModels() responses.ListResponse[llm.ModelInfo] {
	return responses.NewList(h.resolver.Models())
}

// SelectModel confirms an optimistic model switch made by the client.
func (h *ModelHandler) SelectModel(ctx context.Context, session *auth.Session, req requests.SelectModelRequest) (*llm.ModelInfo, error) {
	info, err := h.preferences.SelectModel(ctx, session, req.Model)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to select model")
	}
	return &info, nil
}

func (h *ModelHandler) Credits(ctx context.Context, userID string) (*responses.CreditsResponse, error) {
	balance, err := h.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get balance")
	}
	entries, err := h.ledger.Entries(ctx, userID, creditEntriesLimit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list ledger entries")
	}
	if entries == nil {
		entries = []billing.Entry{}
	}
	return &responses.CreditsResponse{UserID: userID, Balance: balance, Entries: entries}, nil
}
