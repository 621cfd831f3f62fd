package requests

// SelectModelRequest sets the caller's preferred model.
type SelectModelRequest struct {
	Model string `json:"model" binding:"required"`
}
