package memory

import (
	"context"
	"sort"
	"sync"

	"agentforge/chat-api/internal/domain/agent"
)

// AgentRepository implements agent.Repository in memory.
type AgentRepository struct {
	mu     sync.RWMutex
	agents map[string]agent.Agent
}

var _ agent.Repository = (*AgentRepository)(nil)

// NewAgentRepository creates a repository seeded with agents.
func NewAgentRepository(seed ...agent.Agent) *AgentRepository {
	r := &AgentRepository{agents: make(map[string]agent.Agent)}
	for _, a := range seed {
		r.agents[a.ID] = a
	}
	return r
}

func (r *AgentRepository) Get(_ context.Context, id string) (*agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, agent.ErrNotFound
	}
	return &a, nil
}

func (r *AgentRepository) Create(_ context.Context, a *agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = *a
	return nil
}

func (r *AgentRepository) ListVisible(_ context.Context, userID string) ([]*agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*agent.Agent
	for _, a := range r.agents {
		if a.Visibility == agent.VisibilityPublic || a.UserID == userID {
			cp := a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
