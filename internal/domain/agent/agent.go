// Package agent models user-defined assistants: a system prompt, a default
// model and a tool allowlist.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentforge/chat-api/internal/utils/platformerrors"
)

// ErrNotFound is returned by repositories for unknown agent ids.
var ErrNotFound = errors.New("agent not found")

// Visibility controls who may use an agent.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityLink    Visibility = "link"
)

// Agent is a configured assistant.
type Agent struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	SystemPrompt string     `json:"systemPrompt,omitempty"`
	ModelID      string     `json:"modelId,omitempty"`
	Visibility   Visibility `json:"visibility"`
	// Tools is the allowlist of tool names; empty enables every tool.
	Tools     []string  `json:"tools,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UsableBy reports whether userID may chat with the agent.
func (a *Agent) UsableBy(userID string) bool {
	return a.UserID == userID || a.Visibility == VisibilityPublic || a.Visibility == VisibilityLink
}

// Repository persists agents.
type Repository interface {
	Get(ctx context.Context, id string) (*Agent, error)
	Create(ctx context.Context, a *Agent) error
	// ListVisible returns public agents plus those owned by userID.
	ListVisible(ctx context.Context, userID string) ([]*Agent, error)
}

// Service exposes agent operations to handlers and the turn orchestrator.
type Service struct {
	repo Repository
}

// NewService creates an agent service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetAgent returns the agent or a NotFound platform error.
func (s *Service) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "agent not found", err, "3f0c7a52-1d4e-4b8a-9e61-2c5d8f7a0b14")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load agent")
	}
	return a, nil
}

// GetUsableAgent returns the agent if userID may use it.
func (s *Service) GetUsableAgent(ctx context.Context, userID, id string) (*Agent, error) {
	a, err := s.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.UsableBy(userID) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "agent is private", nil, "8a41e0d3-6c2b-47f5-b9d8-0e3a5c7f1b26")
	}
	return a, nil
}

// CreateAgentInput holds the fields accepted on creation.
type CreateAgentInput struct {
	Name         string
	Description  string
	SystemPrompt string
	ModelID      string
	Visibility   Visibility
	Tools        []string
}

// CreateAgent stores a new agent owned by userID.
func (s *Service) CreateAgent(ctx context.Context, userID string, in CreateAgentInput) (*Agent, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "name is required", nil, "c5e2b7a9-4f13-4d06-8b7e-91a3d2f6c058")
	}
	visibility := in.Visibility
	switch visibility {
	case VisibilityPublic, VisibilityPrivate, VisibilityLink:
	default:
		visibility = VisibilityPrivate
	}

	a := &Agent{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		Description:  in.Description,
		SystemPrompt: in.SystemPrompt,
		ModelID:      in.ModelID,
		Visibility:   visibility,
		Tools:        in.Tools,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create agent")
	}
	return a, nil
}

// ListAgents returns the agents visible to userID.
func (s *Service) ListAgents(ctx context.Context, userID string) ([]*Agent, error) {
	agents, err := s.repo.ListVisible(ctx, userID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list agents")
	}
	return agents, nil
}
