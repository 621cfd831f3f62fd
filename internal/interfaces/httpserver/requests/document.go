package requests

// SaveDocumentVersionRequest stores a user edited version.
type SaveDocumentVersionRequest struct {
	Content string `json:"content"`
}
