package requests

import "agentforge/chat-api/internal/domain/agent"

// CreateAgentRequest creates an agent owned by the caller.
type CreateAgentRequest struct {
	Name         string           `json:"name" binding:"required"`
	Description  string           `json:"description"`
	SystemPrompt string           `json:"systemPrompt"`
	ModelID      string           `json:"modelId"`
	Visibility   agent.Visibility `json:"visibility" binding:"omitempty,oneof=public private link"`
	Tools        []string         `json:"tools"`
}

// ToInput maps the body to the domain input.
func (r CreateAgentRequest) ToInput() agent.CreateAgentInput {
	return agent.CreateAgentInput{
		Name:         r.Name,
		Description:  r.Description,
		SystemPrompt: r.SystemPrompt,
		ModelID:      r.ModelID,
		Visibility:   r.Visibility,
		Tools:        r.Tools,
	}
}
