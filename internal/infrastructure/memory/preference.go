package memory

import (
	"context"
	"sync"

	"agentforge/chat-api/internal/domain/preference"
)

// PreferenceRepository implements preference.Repository in memory.
type PreferenceRepository struct {
	mu     sync.RWMutex
	models map[string]string
}

var _ preference.Repository = (*PreferenceRepository)(nil)

// NewPreferenceRepository creates an empty repository.
func NewPreferenceRepository() *PreferenceRepository {
	return &PreferenceRepository{models: make(map[string]string)}
}

func (r *PreferenceRepository) GetModel(_ context.Context, userID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[userID]
	if !ok {
		return "", preference.ErrNotSet
	}
	return m, nil
}

func (r *PreferenceRepository) SetModel(_ context.Context, userID, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[userID] = modelID
	return nil
}
