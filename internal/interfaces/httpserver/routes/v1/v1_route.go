package v1

import (
	"github.com/gin-gonic/gin"
)

type V1Route struct {
	chat      *ChatRoute
	documents *DocumentRoute
	agents    *AgentRoute
	models    *ModelRoute
}

func NewV1Route(chat *ChatRoute, documents *DocumentRoute, agents *AgentRoute, models *ModelRoute) *V1Route {
	return &V1Route{chat: chat, documents: documents, agents: agents, models: models}
}

func (v1Route *V1Route) RegisterRouter(router gin.IRouter) {
	v1Router := router.Group("/v1")
	v1Route.chat.RegisterRouter(v1Router)
	v1Route.documents.RegisterRouter(v1Router)
	v1Route.agents.RegisterRouter(v1Router)
	v1Route.models.RegisterRouter(v1Router)
}
