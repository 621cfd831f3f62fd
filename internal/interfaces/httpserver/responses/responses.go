// Package responses writes JSON bodies and errors for the HTTP API.
package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentforge/chat-api/internal/utils/platformerrors"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse = platformerrors.HTTPErrorResponse

// ListResponse wraps collections.
type ListResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

// NewList builds a list response; nil slices serialize as [].
func NewList[T any](data []T) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{Object: "list", Data: data}
}

// HandleError maps a platform error to its status. Other errors become a 500
// carrying message.
func HandleError(reqCtx *gin.Context, err error, message string) {
	var domainErr *platformerrors.PlatformError
	if errors.As(err, &domainErr) {
		if domainErr.RequestID == "" {
			domainErr.RequestID = requestID(reqCtx)
		}
		_ = reqCtx.Error(domainErr)
		reqCtx.AbortWithStatusJSON(platformerrors.ErrorTypeToHTTPStatus(domainErr.Type), ErrorResponse{
			Error: &platformerrors.HTTPErrorDetail{
				Message:   domainErr.Message,
				Type:      platformerrors.TypeString(domainErr.Type),
				Code:      domainErr.UUID,
				RequestID: domainErr.RequestID,
			},
		})
		return
	}

	if err != nil {
		_ = reqCtx.Error(err)
	}
	reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error: &platformerrors.HTTPErrorDetail{
			Message:   message,
			Type:      "internal_error",
			RequestID: requestID(reqCtx),
		},
	})
}

// HandleNewError writes an error that did not come from a lower layer.
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string, uuid string) {
	HandleError(reqCtx, platformerrors.NewError(reqCtx.Request.Context(), platformerrors.LayerHandler, errorType, message, nil, uuid), message)
}

func requestID(reqCtx *gin.Context) string {
	return platformerrors.RequestIDFromContext(reqCtx.Request.Context())
}
