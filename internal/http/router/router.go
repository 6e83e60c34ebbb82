package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"huddle.app/relay/internal/http/handler"
	"huddle.app/relay/internal/http/middleware"
	"huddle.app/relay/internal/metrics"
	"huddle.app/relay/internal/realtime"
	"huddle.app/relay/internal/service"
)

type RouterConfig struct {
	TraceHeaderName string
	AdminAPIKey     string
	Realtime        handler.RealtimeConfig
	Registry        *realtime.Registry
	Metrics         *metrics.Metrics
	// Gatherer backs /metrics; nil skips the route.
	Gatherer prometheus.Gatherer
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	messageHandler := handler.NewMessageHandler(services.Messages(), cfg.TraceHeaderName)
	interactionHandler := handler.NewInteractionHandler(services.Interactions())
	realtimeHandler := handler.NewRealtimeHandler(cfg.Registry, services.Messages(), cfg.Metrics, cfg.Realtime)

	requireUser := middleware.RequireUser()
	requireAdmin := middleware.RequireAdminKey(cfg.AdminAPIKey)

	router.GET("/ws", requireUser, realtimeHandler.Connect)

	v1 := router.Group("/api/v1")
	{
		ConversationRouter(v1.Group("/conversations", requireUser), messageHandler)
		MessageRouter(v1.Group("/messages"), messageHandler, interactionHandler, requireUser, requireAdmin)
		InteractionRouter(v1.Group("/interactions", requireAdmin), interactionHandler)

		v1.GET("/realtime/stats", realtimeHandler.Stats)
	}
}
