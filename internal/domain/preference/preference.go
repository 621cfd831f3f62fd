// Package preference stores per-user settings such as the selected chat model.
package preference

import (
	"context"
	"errors"

	"agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// ErrNotSet is returned when the user never selected a model.
var ErrNotSet = errors.New("preference not set")

// Repository persists model selections.
type Repository interface {
	GetModel(ctx context.Context, userID string) (string, error)
	SetModel(ctx context.Context, userID, modelID string) error
}

// Service validates and stores model selections.
type Service struct {
	repo         Repository
	resolver     llm.Resolver
	defaultModel string
}

// NewService creates a preference service.
func NewService(repo Repository, resolver llm.Resolver, defaultModel string) *Service {
	return &Service{repo: repo, resolver: resolver, defaultModel: defaultModel}
}

// SelectModel confirms the caller's model choice. Unknown or unentitled
// models are rejected so the client can roll back.
func (s *Service) SelectModel(ctx context.Context, session *auth.Session, modelID string) (llm.ModelInfo, error) {
	_, info, err := s.resolver.Resolve(ctx, modelID)
	if err != nil {
		if errors.Is(err, llm.ErrModelNotFound) {
			return llm.ModelInfo{}, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "model not found", err, "e0b3f6a1-92c4-4d5e-8f70-1a2b3c4d5e6f")
		}
		return llm.ModelInfo{}, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve model")
	}
	if !session.Allows(info.Tier) {
		return llm.ModelInfo{}, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "model requires a higher tier", nil, "7c1d2e3f-4a5b-4c6d-9e8f-0a1b2c3d4e5f")
	}
	if err := s.repo.SetModel(ctx, session.UserID, modelID); err != nil {
		return llm.ModelInfo{}, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to save model preference")
	}
	return info, nil
}

// PreferredModel returns the user's selected model or the default.
func (s *Service) PreferredModel(ctx context.Context, userID string) string {
	modelID, err := s.repo.GetModel(ctx, userID)
	if err != nil || modelID == "" {
		return s.defaultModel
	}
	return modelID
}
