package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/domain/llm"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// GenerateParams describes a create (empty DocumentID) or update request.
type GenerateParams struct {
	DocumentID  string
	UserID      string
	ChatID      *string
	ModelID     string
	Kind        Kind
	Title       string
	Description string
}

// Service generates, versions and diffs documents.
type Service struct {
	repo     Repository
	resolver llm.Resolver
	handlers map[Kind]handler
	log      zerolog.Logger
}

// NewService creates a document service with handlers for every kind.
func NewService(repo Repository, resolver llm.Resolver, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		handlers: map[Kind]handler{
			KindText:  textHandler{},
			KindCode:  codeHandler{},
			KindReact: reactHandler{},
			KindSheet: sheetHandler{},
		},
		log: log.With().Str("component", "document-service").Logger(),
	}
}

// Generate streams a new version of a document into emit as data events and
// saves it. Create mode starts at version 1; update mode re-sends the whole
// previous content to the model and stores its full replacement.
func (s *Service) Generate(ctx context.Context, params GenerateParams, emit stream.Emitter) (*Document, error) {
	doc, prior, err := s.prepare(ctx, params)
	if err != nil {
		return nil, err
	}
	h, ok := s.handlers[doc.Kind]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, fmt.Sprintf("unsupported document kind %q", doc.Kind), nil, "1e4a7d0c-3b6f-4925-8c8e-b2f5a9d3c017")
	}

	backend, info, err := s.resolver.Resolve(ctx, params.ModelID)
	if err != nil {
		if errors.Is(err, llm.ErrModelNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "model not found", err, "5d8b1e4f-7a2c-4063-9f1b-c6e9a2d5f148")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve model")
	}

	send := func(kind stream.DataKind, content any) error {
		ev, err := stream.NewData(kind, content)
		if err != nil {
			return err
		}
		return emit.Emit(ctx, ev)
	}
	for _, d := range []struct {
		kind    stream.DataKind
		content any
	}{
		{stream.DataKindTag, string(doc.Kind)},
		{stream.DataID, doc.ID},
		{stream.DataTitle, doc.Title},
		{stream.DataClear, nil},
	} {
		if err := send(d.kind, d.content); err != nil {
			return nil, err
		}
	}

	var messages []llm.ChatMessage
	if prior == nil {
		messages = []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: h.createPrompt()},
			{Role: llm.RoleUser, Content: doc.Title},
		}
	} else {
		messages = []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: updatePrompt(prior.Content, doc.Kind)},
			{Role: llm.RoleUser, Content: params.Description},
		}
	}

	content, metadata, err := h.generate(ctx, generation{
		backend: backend,
		model:   info,
		request: llm.Request{Model: info.UpstreamModel, Messages: messages},
		send:    send,
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s document: %w", doc.Kind, err)
	}
	doc.Content = content
	if len(metadata) > 0 {
		doc.Metadata = metadata
	}

	if err := s.repo.SaveVersion(ctx, doc); err != nil {
		return nil, saveError(ctx, err)
	}
	if err := send(stream.DataFinish, nil); err != nil {
		return doc, err
	}

	s.log.Debug().
		Str("document_id", doc.ID).
		Str("kind", string(doc.Kind)).
		Int("version", doc.VersionIndex).
		Msg("document generated")
	return doc, nil
}

func (s *Service) prepare(ctx context.Context, params GenerateParams) (*Document, *Document, error) {
	now := time.Now().UTC()
	if params.DocumentID == "" {
		if !params.Kind.Valid() {
			return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, fmt.Sprintf("unsupported document kind %q", params.Kind), nil, "1e4a7d0c-3b6f-4925-8c8e-b2f5a9d3c017")
		}
		title := strings.TrimSpace(params.Title)
		if title == "" {
			return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "title is required", nil, "8f2c5a9e-1d4b-4c70-b3e6-d9a2f5c8b061")
		}
		return &Document{
			ID:           uuid.NewString(),
			UserID:       params.UserID,
			ChatID:       params.ChatID,
			Kind:         params.Kind,
			Title:        title,
			VersionIndex: 1,
			CreatedAt:    now,
		}, nil, nil
	}

	prior, err := s.GetLatest(ctx, params.UserID, params.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	next := *prior
	next.Content = ""
	next.Metadata = copyMetadata(prior.Metadata)
	next.VersionIndex = prior.VersionIndex + 1
	next.CreatedAt = now
	return &next, prior, nil
}

// GetLatest returns the newest version of a document owned by userID.
func (s *Service) GetLatest(ctx context.Context, userID, id string) (*Document, error) {
	doc, err := s.repo.Latest(ctx, id)
	if err != nil {
		return nil, s.loadError(ctx, err)
	}
	if doc.UserID != userID {
		return nil, forbidden(ctx)
	}
	return doc, nil
}

// ListVersions returns every version of a document owned by userID, oldest first.
func (s *Service) ListVersions(ctx context.Context, userID, id string) ([]*Document, error) {
	versions, err := s.repo.Versions(ctx, id)
	if err != nil {
		return nil, s.loadError(ctx, err)
	}
	if len(versions) == 0 {
		return nil, s.loadError(ctx, ErrNotFound)
	}
	if versions[0].UserID != userID {
		return nil, forbidden(ctx)
	}
	return versions, nil
}

// SaveVersion stores a manual edit as a new version.
func (s *Service) SaveVersion(ctx context.Context, userID, id, content string) (*Document, error) {
	prior, err := s.GetLatest(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	next := *prior
	next.Content = content
	next.Metadata = copyMetadata(prior.Metadata)
	next.VersionIndex = prior.VersionIndex + 1
	next.CreatedAt = time.Now().UTC()
	if err := s.repo.SaveVersion(ctx, &next); err != nil {
		return nil, saveError(ctx, err)
	}
	return &next, nil
}

func (s *Service) loadError(ctx context.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "document not found", err, "7a0d3f6c-9b2e-4581-b4d7-f0c3a6e9b182")
	}
	return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load document")
}

func saveError(ctx context.Context, err error) error {
	if errors.Is(err, ErrVersionConflict) {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "document was modified concurrently", err, "c3f6a9d2-5e8b-4174-a0c3-e6b9d2f5a870")
	}
	return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to save document")
}

func forbidden(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "document belongs to another user", nil, "e4b7c0f3-2a5d-4896-c1e4-a7d0b3f6c293")
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
