package router

import (
	"github.com/gin-gonic/gin"

	"huddle.app/relay/internal/http/handler"
)

func ConversationRouter(router *gin.RouterGroup, handler *handler.MessageHandler) {
	router.POST("/:id/messages", handler.Send)
	router.GET("/:id/messages", handler.History)
}

// MessageRouter mixes participant and operator routes, so guards are per route.
func MessageRouter(router *gin.RouterGroup, messages *handler.MessageHandler, interactions *handler.InteractionHandler, requireUser, requireAdmin gin.HandlerFunc) {
	router.GET("/:id", requireUser, messages.Get)
	router.POST("/:id/redispatch", requireAdmin, messages.Redispatch)
	router.GET("/:id/interactions", requireAdmin, interactions.ListForMessage)
}

func InteractionRouter(router *gin.RouterGroup, handler *handler.InteractionHandler) {
	router.GET("/:id", handler.Get)
}
