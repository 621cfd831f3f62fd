package agenthandler

import (
	"context"

	"agentforge/chat-api/internal/domain/agent"
	"agentforge/chat-api/internal/interfaces/httpserver/requests"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

type AgentHandler struct {
	agents *agent.Service
}

func NewAgentHandler(agents *agent.Service) *AgentHandler {
	return &AgentHandler{agents: agents}
}

func (h *AgentHandler) ListAgents(ctx context.Context, userID string) (responses.ListResponse[*agent.Agent], error) {
	agents, err := h.agents.ListAgents(ctx, userID)
	if err != nil {
		return responses.ListResponse[*agent.Agent]{}, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list agents")
	}
	return responses.NewList(agents), nil
}

func (h *AgentHandler) GetAgent(ctx context.Context, userID, agentID string) (*agent.Agent, error) {
	a, err := h.agents.GetUsableAgent(ctx, userID, agentID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get agent")
	}
	return a, nil
}

func (h *AgentHandler) CreateAgent(ctx context.Context, userID string, req requests.CreateAgentRequest) (*agent.Agent, error) {
	a, err := h.agents.CreateAgent(ctx, userID, req.ToInput())
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to create agent")
	}
	return a, nil
}
