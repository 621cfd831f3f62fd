package memory

import (
	"context"
	"sort"
	"sync"

	"agentforge/chat-api/internal/domain/document"
)

// DocumentRepository implements document.Repository in memory.
type DocumentRepository struct {
	mu       sync.RWMutex
	versions map[string][]document.Document
}

var _ document.Repository = (*DocumentRepository)(nil)

// NewDocumentRepository creates an empty repository.
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{versions: make(map[string][]document.Document)}
}

func (r *DocumentRepository) SaveVersion(_ context.Context, doc *document.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs := r.versions[doc.ID]
	for _, v := range vs {
		if v.VersionIndex == doc.VersionIndex {
			return document.ErrVersionConflict
		}
	}
	vs = append(vs, *doc)
	sort.Slice(vs, func(i, j int) bool { return vs[i].VersionIndex < vs[j].VersionIndex })
	r.versions[doc.ID] = vs
	return nil
}

func (r *DocumentRepository) Latest(_ context.Context, id string) (*document.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs := r.versions[id]
	if len(vs) == 0 {
		return nil, document.ErrNotFound
	}
	d := vs[len(vs)-1]
	return &d, nil
}

func (r *DocumentRepository) Version(_ context.Context, id string, version int) (*document.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions[id] {
		if v.VersionIndex == version {
			d := v
			return &d, nil
		}
	}
	return nil, document.ErrNotFound
}

func (r *DocumentRepository) Versions(_ context.Context, id string) ([]*document.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs := r.versions[id]
	out := make([]*document.Document, len(vs))
	for i := range vs {
		d := vs[i]
		out[i] = &d
	}
	return out, nil
}
