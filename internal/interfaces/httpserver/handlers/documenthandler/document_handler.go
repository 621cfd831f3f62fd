package documenthandler

import (
	"context"
	"strings"

	"agentforge/chat-api/internal/domain/document"
	"agentforge/chat-api/internal/interfaces/httpserver/requests"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

type DocumentHandler struct {
	documents *document.Service
}

func NewDocumentHandler(documents *document.Service) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

func (h *DocumentHandler) GetDocument(ctx context.Context, userID, documentID string) (*document.Document, error) {
	if err := requireID(ctx, documentID); err != nil {
		return nil, err
	}
	doc, err := h.documents.GetLatest(ctx, userID, documentID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get document")
	}
	return doc, nil
}

func (h *DocumentHandler) ListVersions(ctx context.Context, userID, documentID string) (responses.ListResponse[*document.Document], error) {
	if err := requireID(ctx, documentID); err != nil {
		return responses.ListResponse[*document.Document]{}, err
	}
	versions, err := h.documents.ListVersions(ctx, userID, documentID)
	if err != nil {
		return responses.ListResponse[*document.Document]{}, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list document versions")
	}
	return responses.NewList(versions), nil
}

func (h *DocumentHandler) Diff(ctx context.Context, userID, documentID string, query requests.DiffQuery) (*document.Diff, error) {
	if err := requireID(ctx, documentID); err != nil {
		return nil, err
	}
	diff, err := h.documents.Diff(ctx, userID, documentID, query.Version)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to diff document")
	}
	return diff, nil
}

func (h *DocumentHandler) SaveVersion(ctx context.Context, userID, documentID string, req requests.SaveDocumentVersionRequest) (*document.Document, error) {
	if err := requireID(ctx, documentID); err != nil {
		return nil, err
	}
	doc, err := h.documents.SaveVersion(ctx, userID, documentID, req.Content)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to save document version")
	}
	return doc, nil
}

func requireID(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, "document id is required", nil, "d2f8a5c1-7e3b-4d96-a0c4-b5e9f1d7c382")
	}
	return nil
}
