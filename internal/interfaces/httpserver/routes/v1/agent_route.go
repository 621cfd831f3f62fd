package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agentforge/chat-api/internal/interfaces/httpserver/handlers/agenthandler"
	"agentforge/chat-api/internal/interfaces/httpserver/middlewares"
	"agentforge/chat-api/internal/interfaces/httpserver/requests"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

type AgentRoute struct {
	handler *agenthandler.AgentHandler
}

func NewAgentRoute(handler *agenthandler.AgentHandler) *AgentRoute {
	return &AgentRoute{handler: handler}
}

func (agentRoute *AgentRoute) RegisterRouter(router gin.IRouter) {
	agents := router.Group("/agents", middlewares.RequireSession())
	agents.GET("", agentRoute.ListAgents)
	agents.POST("", agentRoute.CreateAgent)
	agents.GET("/:agent_id", agentRoute.GetAgent)
}

func (agentRoute *AgentRoute) ListAgents(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	result, err := agentRoute.handler.ListAgents(reqCtx.Request.Context(), session.UserID)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to list agents")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}

func (agentRoute *AgentRoute) GetAgent(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	result, err := agentRoute.handler.GetAgent(reqCtx.Request.Context(), session.UserID, reqCtx.Param("agent_id"))
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to get agent")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}

func (agentRoute *AgentRoute) CreateAgent(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	var request requests.CreateAgentRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), "4a8d1f6c-9e3b-4c72-a5f1-b7e2d0c8a493")
		return
	}
	result, err := agentRoute.handler.CreateAgent(reqCtx.Request.Context(), session.UserID, request)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to create agent")
		return
	}
	reqCtx.JSON(http.StatusCreated, result)
}
