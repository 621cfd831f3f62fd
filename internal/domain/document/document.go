// Package document generates versioned artifacts (text, code, react
// components and sheets) streamed to the client as data events.
package document

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by repositories for unknown documents or versions.
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned when a version index is already taken.
	ErrVersionConflict = errors.New("document version conflict")
)

// Kind selects the generation handler of a document.
type Kind string

const (
	KindText  Kind = "text"
	KindCode  Kind = "code"
	KindReact Kind = "react"
	KindSheet Kind = "sheet"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindText, KindCode, KindReact, KindSheet}

// Valid reports whether k is supported.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Document is one version of a document. Versions of the same document
// share ID and have increasing VersionIndex starting at 1.
type Document struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	ChatID       *string           `json:"chatId,omitempty"`
	Kind         Kind              `json:"kind"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	VersionIndex int               `json:"versionIndex"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Repository stores document versions.
type Repository interface {
	// SaveVersion appends doc; an existing (ID, VersionIndex) returns ErrVersionConflict.
	SaveVersion(ctx context.Context, doc *Document) error
	Latest(ctx context.Context, id string) (*Document, error)
	Version(ctx context.Context, id string, version int) (*Document, error)
	Versions(ctx context.Context, id string) ([]*Document, error)
}
