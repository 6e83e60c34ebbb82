package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"huddle.app/relay/common/id"
	"huddle.app/relay/common/logger"
	"huddle.app/relay/common/otel"
	"huddle.app/relay/core/config"
	"huddle.app/relay/core/db"
	"huddle.app/relay/internal/fanout"
	"huddle.app/relay/internal/http/handler"
	"huddle.app/relay/internal/http/middleware"
	httprouter "huddle.app/relay/internal/http/router"
	"huddle.app/relay/internal/metrics"
	"huddle.app/relay/internal/queue"
	"huddle.app/relay/internal/realtime"
	"huddle.app/relay/internal/routing"
	"huddle.app/relay/internal/service"
	"huddle.app/relay/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "relay starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	router, err := routing.New(routing.Config{
		RequesterRoles: cfg.Routing.RequesterRoles,
		ProviderRoles:  cfg.Routing.ProviderRoles,
	}, slog.Default())
	if err != nil {
		slog.ErrorContext(ctx, "invalid routing config", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(database.Queries())
	registry := realtime.NewRegistry(m, slog.Default())

	publisher := fanout.NewPublisher(stores.Members(), registry, m, fanout.PublisherConfig{
		WriteTimeout: cfg.Realtime.WriteTimeout,
	}, slog.Default())

	services := service.NewServices(service.ServicesConfig{
		Stores:    stores,
		TxRunner:  service.NewTxRunner(database),
		Router:    router,
		Producer:  queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default()),
		Announcer: fanout.NewLocalAnnouncer(publisher, slog.Default()),
		Metrics:   m,
		Logger:    slog.Default(),
	})

	// AI replies are announced by the worker over pub/sub.
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	subscriber := fanout.NewSubscriber(redisClient, cfg.Pipeline.FanoutChannel, publisher, slog.Default())
	go func() {
		if err := subscriber.Run(runCtx); err != nil {
			slog.ErrorContext(ctx, "fanout subscriber stopped", "error", err)
		}
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := setupRouter(cfg, services, httprouter.RouterConfig{
		TraceHeaderName: cfg.Pipeline.TraceHeaderName,
		AdminAPIKey:     cfg.AdminAPIKey,
		Realtime: handler.RealtimeConfig{
			SendBuffer:     cfg.Realtime.SendBuffer,
			WriteTimeout:   cfg.Realtime.WriteTimeout,
			InboundRPS:     cfg.Realtime.InboundRPS,
			InboundBurst:   cfg.Realtime.InboundBurst,
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
		},
		Registry: registry,
		Metrics:  m,
		Gatherer: promRegistry,
	})
	// WriteTimeout stays unset: it would cut long-lived websocket connections.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stopRun()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	registry.CloseAll()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services, routerCfg httprouter.RouterConfig) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, routerCfg)

	return router
}

const banner = `
 +-------------------------------+
 |   huddle relay  ::  server    |
 +-------------------------------+
`
