package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agentforge/chat-api/internal/interfaces/httpserver/handlers/chathandler"
	"agentforge/chat-api/internal/interfaces/httpserver/middlewares"
	"agentforge/chat-api/internal/interfaces/httpserver/requests"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// ChatIDHeader carries the chat id of a streamed turn.
const ChatIDHeader = "X-Chat-Id"

type ChatRoute struct {
	handler *chathandler.ChatHandler
}

func NewChatRoute(handler *chathandler.ChatHandler) *ChatRoute {
	return &ChatRoute{handler: handler}
}

func (chatRoute *ChatRoute) RegisterRouter(router gin.IRouter) {
	router.POST("/chat", middlewares.RequireSession(), chatRoute.PostChat)

	chats := router.Group("/chats")
	chats.GET("", middlewares.RequireSession(), chatRoute.ListChats)
	chats.GET("/:chat_id", chatRoute.GetChat)
	chats.PATCH("/:chat_id/visibility", middlewares.RequireSession(), chatRoute.UpdateVisibility)
}

// PostChat streams one turn. Rejections before the first event are JSON
// errors; once streaming starts failures arrive as error events.
func (chatRoute *ChatRoute) PostChat(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)

	var request requests.ChatRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), "7b2e9d4f-1c6a-4f83-a5d0-e8c3b1f6a294")
		return
	}

	turn, err := chatRoute.handler.PrepareTurn(reqCtx.Request.Context(), session, request)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to start turn")
		return
	}

	middlewares.PrepareStream(reqCtx)
	reqCtx.Header(ChatIDHeader, turn.ChatID())
	reqCtx.Status(http.StatusOK)
	reqCtx.Writer.WriteHeaderNow()
	_ = chatRoute.handler.StreamTurn(reqCtx.Request.Context(), turn, reqCtx.Writer)
}

func (chatRoute *ChatRoute) ListChats(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	var query requests.ListQuery
	if err := reqCtx.ShouldBindQuery(&query); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid query: "+err.Error(), "3d9a6c2e-8f4b-4e17-b2c5-a7f0d4e8b931")
		return
	}
	result, err := chatRoute.handler.ListChats(reqCtx.Request.Context(), session.UserID, query)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to list chats")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}

// GetChat allows anonymous callers; public and link chats are readable by anyone.
func (chatRoute *ChatRoute) GetChat(reqCtx *gin.Context) {
	userID := ""
	if session, ok := middlewares.SessionFromContext(reqCtx); ok {
		userID = session.UserID
	}
	result, err := chatRoute.handler.GetChat(reqCtx.Request.Context(), userID, reqCtx.Param("chat_id"))
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to get chat")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}

func (chatRoute *ChatRoute) UpdateVisibility(reqCtx *gin.Context) {
	session, _ := middlewares.SessionFromContext(reqCtx)
	var request requests.UpdateVisibilityRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), "c6f1a8e3-4b7d-4d20-9e5a-b3c8f2d6a147")
		return
	}
	result, err := chatRoute.handler.UpdateVisibility(reqCtx.Request.Context(), session.UserID, reqCtx.Param("chat_id"), request)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to update visibility")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}
