package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"agentforge/chat-api/internal/utils/platformerrors"
)

// DiffOp is one line level edit between two versions.
type DiffOp struct {
	Op       string   `json:"op"`
	From     []string `json:"from,omitempty"`
	To       []string `json:"to,omitempty"`
	FromLine int      `json:"fromLine"`
	ToLine   int      `json:"toLine"`
}

// Diff compares two adjacent whole versions of a document.
type Diff struct {
	DocumentID  string   `json:"documentId"`
	FromVersion int      `json:"fromVersion"`
	ToVersion   int      `json:"toVersion"`
	Previous    string   `json:"previous"`
	Current     string   `json:"current"`
	Ops         []DiffOp `json:"ops"`
	Unified     string   `json:"unified"`
}

var opNames = map[byte]string{
	'e': "equal",
	'r': "replace",
	'd': "delete",
	'i': "insert",
}

// Diff loads version-1 and version of a document and compares them locally.
func (s *Service) Diff(ctx context.Context, userID, id string, version int) (*Diff, error) {
	if version < 2 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "version must be at least 2", nil, "b6e9c2f5-8d1a-4f37-a2b5-c8e1d4a7f396")
	}
	current, err := s.repo.Version(ctx, id, version)
	if err != nil {
		return nil, s.loadError(ctx, err)
	}
	if current.UserID != userID {
		return nil, forbidden(ctx)
	}
	previous, err := s.repo.Version(ctx, id, version-1)
	if err != nil {
		return nil, s.loadError(ctx, err)
	}
	return Compare(previous, current)
}

// Compare builds the line ops and unified diff between two versions.
func Compare(previous, current *Document) (*Diff, error) {
	a := splitLines(previous.Content)
	b := splitLines(current.Content)

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: fmt.Sprintf("%s@v%d", previous.Title, previous.VersionIndex),
		ToFile:   fmt.Sprintf("%s@v%d", current.Title, current.VersionIndex),
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("unified diff: %w", err)
	}

	matcher := difflib.NewMatcher(a, b)
	var ops []DiffOp
	for _, oc := range matcher.GetOpCodes() {
		op := DiffOp{Op: opNames[oc.Tag], FromLine: oc.I1 + 1, ToLine: oc.J1 + 1}
		if oc.Tag != 'i' {
			op.From = a[oc.I1:oc.I2]
		}
		if oc.Tag != 'd' {
			op.To = b[oc.J1:oc.J2]
		}
		ops = append(ops, op)
	}

	return &Diff{
		DocumentID:  current.ID,
		FromVersion: previous.VersionIndex,
		ToVersion:   current.VersionIndex,
		Previous:    previous.Content,
		Current:     current.Content,
		Ops:         ops,
		Unified:     unified,
	}, nil
}

// splitLines splits s after each newline, terminating the last line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}
