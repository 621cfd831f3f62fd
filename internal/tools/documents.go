package tools

import (
	"context"
	"encoding/json"
	"strings"

	"agentforge/chat-api/internal/domain/document"
	"agentforge/chat-api/internal/domain/tool"
)

// CreateDocumentArgs are the arguments of create_document.
type CreateDocumentArgs struct {
	Title string        `json:"title" jsonschema:"description=Title of the document" validate:"notblank"`
	Kind  document.Kind `json:"kind" jsonschema:"enum=text,enum=code,enum=react,enum=sheet"`
}

// UpdateDocumentArgs are the arguments of update_document.
type UpdateDocumentArgs struct {
	ID          string `json:"id" jsonschema:"description=Id of the document to update" validate:"notblank"`
	Description string `json:"description" jsonschema:"description=The changes to make"`
}

// DocumentResult is returned to the model. The content itself goes to the
// user through the stream.
type DocumentResult struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Kind    document.Kind `json:"kind"`
	Version int           `json:"version"`
	Message string        `json:"message"`
}

// CreateDocument writes a new document into the conversation.
type CreateDocument struct {
	docs DocumentGenerator
}

// NewCreateDocument returns the create_document tool.
func NewCreateDocument(docs DocumentGenerator) CreateDocument {
	return CreateDocument{docs: docs}
}

// Definition implements tool.Tool.
func (CreateDocument) Definition() tool.Definition {
	return tool.Definition{
		Name:        "create_document",
		Description: "Create a document for writing or content creation. The content is generated from the conversation and shown to the user.",
		Parameters:  tool.SchemaFor(CreateDocumentArgs{}),
	}
}

// Execute implements tool.Tool.
func (c CreateDocument) Execute(ctx context.Context, env tool.Env, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[CreateDocumentArgs](raw)
	if err != nil {
		return nil, err
	}
	doc, err := c.docs.Generate(ctx, document.GenerateParams{
		UserID:  env.UserID,
		ChatID:  chatRef(env.ChatID),
		ModelID: env.ModelID,
		Kind:    args.Kind,
		Title:   strings.TrimSpace(args.Title),
	}, env.Emitter)
	if err != nil {
		return nil, err
	}
	return result(doc, "A document was created and is now visible to the user."), nil
}

// UpdateDocument writes a new version of an existing document.
type UpdateDocument struct {
	docs DocumentGenerator
}

// NewUpdateDocument returns the update_document tool.
func NewUpdateDocument(docs DocumentGenerator) UpdateDocument {
	return UpdateDocument{docs: docs}
}

// Definition implements tool.Tool.
func (UpdateDocument) Definition() tool.Definition {
	return tool.Definition{
		Name:        "update_document",
		Description: "Update an existing document with the given description of changes.",
		Parameters:  tool.SchemaFor(UpdateDocumentArgs{}),
	}
}

// Execute implements tool.Tool.
func (u UpdateDocument) Execute(ctx context.Context, env tool.Env, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[UpdateDocumentArgs](raw)
	if err != nil {
		return nil, err
	}
	doc, err := u.docs.Generate(ctx, document.GenerateParams{
		DocumentID:  strings.TrimSpace(args.ID),
		UserID:      env.UserID,
		ChatID:      chatRef(env.ChatID),
		ModelID:     env.ModelID,
		Description: args.Description,
	}, env.Emitter)
	if err != nil {
		return nil, err
	}
	return result(doc, "The document has been updated successfully."), nil
}

func result(doc *document.Document, msg string) DocumentResult {
	return DocumentResult{ID: doc.ID, Title: doc.Title, Kind: doc.Kind, Version: doc.VersionIndex, Message: msg}
}

func chatRef(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
