package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agentforge/chat-api/internal/interfaces/httpserver/handlers/documenthandler"
	"agentforge/chat-api/internal/interfaces/httpserver/middlewares"
	"agentforge/chat-api/internal/interfaces/httpserver/requests"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

type DocumentRoute struct {
	handler *documenthandler.DocumentHandler
}

func NewDocumentRoute(handler *documenthandler.DocumentHandler) *DocumentRoute {
	return &DocumentRoute{handler: handler}
}

func (documentRoute *DocumentRoute) RegisterRouter(router gin.IRouter) {
	documents := router.Group("/documents", middlewares.RequireSession())
	documents.GET("/:document_id", documentRoute.GetDocument)
	documents.GET("/:document_id/versions", documentRoute.ListVersions)
	documents.POST("/:document_id/versions", documentRoute.SaveVersion)
	documents.GET("/:document_id/diff", documentRoute.Diff)
}

func (documentRoute *DocumentRoute) GetDocument(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	result, err := documentRoute.handler.GetDocument(reqCtx.Request.Context(), session.UserID, reqCtx.Param("document_id"))
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to get document")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}

func (documentRoute *DocumentRoute) ListVersions(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	result, err := documentRoute.handler.ListVersions(reqCtx.Request.Context(), session.UserID, reqCtx.Param("document_id"))
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to list document versions")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}

func (documentRoute *DocumentRoute) SaveVersion(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	var request requests.SaveDocumentVersionRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), "f3a7c1e9-6d2b-4b58-8c04-e1b9d5a3f726")
		return
	}
	result, err := documentRoute.handler.SaveVersion(reqCtx.Request.Context(), session.UserID, reqCtx.Param("document_id"), request)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to save document version")
		return
	}
	reqCtx.JSON(http.StatusCreated, result)
}

func (documentRoute *DocumentRoute) Diff(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	var query requests.DiffQuery
	if err := reqCtx.ShouldBindQuery(&query); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "version must be an integer of at least 2", "8e5b2d7a-3c9f-4a61-b4e8-d0a6c3f9b512")
		return
	}
	result, err := documentRoute.handler.Diff(reqCtx.Request.Context(), session.UserID, reqCtx.Param("document_id"), query)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to diff document")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}
