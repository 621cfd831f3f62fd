package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agentforge/chat-api/internal/interfaces/httpserver/handlers/modelhandler"
	"agentforge/chat-api/internal/interfaces/httpserver/middlewares"
	"agentforge/chat-api/internal/interfaces/httpserver/requests"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

type ModelRoute struct {
	handler *modelhandler.ModelHandler
}

func NewModelRoute(handler *modelhandler.ModelHandler) *ModelRoute {
	return &ModelRoute{handler: handler}
}

func (modelRoute *ModelRoute) RegisterRouter(router gin.IRouter) {
	router.GET("/models", modelRoute.ListModels)

	me := router.Group("/me", middlewares.RequireSession())
	me.PUT("/model", modelRoute.SelectModel)
	me.GET("/credits", modelRoute.GetCredits)
}

func (modelRoute *ModelRoute) ListModels(reqCtx *gin.Context) {
	reqCtx.JSON(http.StatusOK, modelRoute.handler.ListModels())
}

func (modelRoute *ModelRoute) SelectModel(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	var request requests.SelectModelRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), "b1e6d3a8-5f2c-4e94-9a07-c4d8f1b5e362")
		return
	}
	result, err := modelRoute.handler.SelectModel(reqCtx.Request.Context(), session, request)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to select model")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}

func (modelRoute *ModelRoute) GetCredits(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	result, err := modelRoute.handler.Credits(reqCtx.Request.Context(), session.UserID)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to get credits")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}
