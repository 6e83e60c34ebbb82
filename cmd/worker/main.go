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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"huddle.app/relay/common/id"
	"huddle.app/relay/common/llm"
	"huddle.app/relay/common/logger"
	"huddle.app/relay/common/otel"
	"huddle.app/relay/core/config"
	"huddle.app/relay/core/db"
	"huddle.app/relay/core/db/sqlc"
	"huddle.app/relay/internal/assistant"
	"huddle.app/relay/internal/fanout"
	"huddle.app/relay/internal/metrics"
	"huddle.app/relay/internal/queue"
	"huddle.app/relay/internal/store"
	"huddle.app/relay/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	}

	slog.InfoContext(ctx, "relay worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer,
		"concurrency", cfg.Dispatch.Concurrency,
		"ai_provider", cfg.AI.LLM.Provider)

	// Initialize snowflake ID generator (use different node ID than server)
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
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

	llmClient, err := llm.New(cfg.AI.LLM)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "llm client ready", "model", llmClient.Model())

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer,
		DLQStream: cfg.Pipeline.RedisDLQStream,
		BatchSize: int64(cfg.Dispatch.Concurrency),
		Block:     5 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	var metricsServer *http.Server
	if cfg.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.InfoContext(ctx, "metrics listener starting", "port", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.ErrorContext(ctx, "metrics listener error", "error", err)
			}
		}()
	}

	stores := store.NewStores(database.Queries())

	replier := assistant.NewReplier(llmClient, assistant.Config{
		SystemPrompt:    cfg.AI.SystemPrompt,
		MaxTokens:       cfg.AI.MaxTokens,
		AssistantUserID: cfg.Dispatch.AssistantUserID,
	})

	dispatcher := worker.NewDispatcher(
		stores,
		&workerTxRunnerAdapter{db: database},
		replier,
		fanout.NewRedisAnnouncer(redisClient, cfg.Pipeline.FanoutChannel, slog.Default()),
		m,
		worker.DispatcherConfig{
			Timeout:         cfg.Dispatch.Timeout,
			ContextMessages: cfg.Dispatch.ContextMessages,
			AssistantUserID: cfg.Dispatch.AssistantUserID,
			Model:           llmClient.Model(),
		},
	)

	pool := worker.NewPool(consumer, dispatcher, worker.PoolConfig{
		Concurrency: cfg.Dispatch.Concurrency,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:   cfg.Dispatch.ReclaimMinIdle,
		Interval:  cfg.Dispatch.ReclaimInterval,
		BatchSize: 10,
	}, consumer, stores.InteractionRecords())

	go func() {
		if err := pool.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "dispatch pool exited", "error", err)
		}
	}()
	go reclaimer.Run(ctx)

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	// In-flight AI calls may take up to the dispatch timeout; anything still
	// running when this expires is failed later by the reclaimer.
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reclaimer.Stop()

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded, abandoning in-flight dispatches")
	case <-stopped:
	}

	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

// workerTxRunnerAdapter bridges db.DB to worker.TxRunner.
type workerTxRunnerAdapter struct {
	db *db.DB
}

func (a *workerTxRunnerAdapter) WithTx(ctx context.Context, fn func(stores worker.StoreProvider) error) error {
	return a.db.WithTx(ctx, func(q *sqlc.Queries) error {
		stores := store.NewStores(q)
		return fn(stores)
	})
}

const banner = `
 +-------------------------------+
 |   huddle relay  ::  worker    |
 +-------------------------------+
`
