package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"agentforge/chat-api/internal/domain/llm"
)

// BackendFactory builds the backend of one catalog entry.
type BackendFactory func(entry ModelEntry) (llm.Backend, error)

// CatalogResolver implements llm.Resolver over a static catalog, caching
// constructed backends per model id.
type CatalogResolver struct {
	entries map[string]ModelEntry
	infos   []llm.ModelInfo
	byID    map[string]llm.ModelInfo
	cache   *lru.Cache
	factory BackendFactory
	log     zerolog.Logger
}

var _ llm.Resolver = (*CatalogResolver)(nil)

// NewCatalogResolver indexes entries; a nil factory builds OpenAI backends.
func NewCatalogResolver(entries []ModelEntry, factory BackendFactory, cacheSize int, log zerolog.Logger) (*CatalogResolver, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create backend cache: %w", err)
	}
	r := &CatalogResolver{
		entries: make(map[string]ModelEntry, len(entries)),
		byID:    make(map[string]llm.ModelInfo, len(entries)),
		cache:   cache,
		factory: factory,
		log:     log.With().Str("component", "model-resolver").Logger(),
	}
	if r.factory == nil {
		r.factory = NewOpenAIFactory(NewTokenCounter(), 0)
	}
	for _, e := range entries {
		info, err := e.info()
		if err != nil {
			return nil, err
		}
		r.entries[e.ID] = e
		r.byID[e.ID] = info
		r.infos = append(r.infos, info)
	}
	return r, nil
}

// Resolve implements llm.Resolver.
func (r *CatalogResolver) Resolve(_ context.Context, modelID string) (llm.Backend, llm.ModelInfo, error) {
	entry, ok := r.entries[modelID]
	if !ok {
		return nil, llm.ModelInfo{}, fmt.Errorf("%w: %s", llm.ErrModelNotFound, modelID)
	}
	info := r.byID[modelID]
	if cached, ok := r.cache.Get(modelID); ok {
		return cached.(llm.Backend), info, nil
	}
	backend, err := r.factory(entry)
	if err != nil {
		return nil, llm.ModelInfo{}, fmt.Errorf("build backend for %s: %w", modelID, err)
	}
	r.cache.Add(modelID, backend)
	r.log.Debug().Str("model_id", modelID).Str("provider", entry.Provider).Msg("backend created")
	return backend, info, nil
}

// Models implements llm.Resolver.
func (r *CatalogResolver) Models() []llm.ModelInfo {
	return append([]llm.ModelInfo(nil), r.infos...)
}

// NewOpenAIFactory builds OpenAI-compatible backends reading the API key
// from each entry's apiKeyEnv.
func NewOpenAIFactory(counter llm.TokenCounter, timeout time.Duration) BackendFactory {
	return func(entry ModelEntry) (llm.Backend, error) {
		return NewOpenAIBackend(NewClient(entry.BaseURL, os.Getenv(entry.APIKeyEnv), timeout), entry.UpstreamModel, counter), nil
	}
}

// NewClient creates an OpenAI-compatible API client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return openai.NewClientWithConfig(cfg)
}
