package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"huddle.app/relay/common/logger"
	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/queue"
	"huddle.app/relay/internal/store"
)

type RedisReclaimerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// RedisReclaimer handles jobs a worker read but never acked, which means the
// worker died mid-dispatch. Re-running them could produce a second AI reply,
// so their records are failed instead and left for an explicit redispatch.
type RedisReclaimer struct {
	client   *redis.Client
	cfg      RedisReclaimerConfig
	consumer Consumer
	records  store.InteractionRecordStore

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

func NewRedisReclaimer(client *redis.Client, cfg RedisReclaimerConfig, consumer Consumer, records store.InteractionRecordStore) *RedisReclaimer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &RedisReclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		records:   records,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is done.
func (r *RedisReclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle,
		"stream", r.cfg.Stream,
		"group", r.cfg.Group)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			if err := r.reclaimOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
			}
		}
	}
}

func (r *RedisReclaimer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.stoppedCh
}

func (r *RedisReclaimer) reclaimOnce(ctx context.Context) error {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.cfg.Stream,
		Group:  r.cfg.Group,
		Idle:   r.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  r.cfg.BatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("xpending: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "found stale dispatch jobs", "count", len(pending))

	for _, p := range pending {
		if err := r.reclaimEntry(ctx, p); err != nil {
			slog.ErrorContext(ctx, "failed to reclaim dispatch job",
				"error", err,
				"stream_message_id", p.ID,
				"original_consumer", p.Consumer,
				"idle_time", p.Idle)
		}
	}

	return nil
}

func (r *RedisReclaimer) reclaimEntry(ctx context.Context, pending redis.XPendingExt) error {
	entryID := pending.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		StreamMessageID: &entryID,
	})

	messages, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.cfg.Stream,
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.MinIdle,
		Messages: []string{pending.ID},
	}).Result()
	if err != nil {
		return fmt.Errorf("xclaim: %w", err)
	}

	if len(messages) == 0 {
		slog.DebugContext(ctx, "dispatch job already claimed by another worker")
		return nil
	}

	delivery, err := queue.ParseDelivery(messages[0])
	if err != nil {
		return r.consumer.SendDLQ(ctx, queue.Delivery{ID: messages[0].ID, Raw: messages[0]}, err.Error())
	}

	return r.abandon(ctx, delivery, pending.Consumer, pending.Idle)
}

// abandon fails the record if it is still pending and acks the job.
func (r *RedisReclaimer) abandon(ctx context.Context, d queue.Delivery, owner string, idle time.Duration) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RecordID:  &d.Job.RecordID,
		MessageID: &d.Job.Message.ID,
	})

	detail := fmt.Sprintf("dispatch abandoned: consumer %q held the job for %s without finishing", owner, idle.Round(time.Second))
	_, err := r.records.Complete(ctx, d.Job.RecordID, model.InteractionOutcome{
		Status:     model.InteractionStatusFailed,
		DurationMs: idle.Milliseconds(),
		Error:      &detail,
	})
	switch {
	case err == nil:
		slog.WarnContext(ctx, "abandoned dispatch marked failed", "original_consumer", owner, "idle_time", idle)
	case errors.Is(err, store.ErrNotPending):
		// the worker finished but died before acking
		slog.InfoContext(ctx, "stale dispatch job already settled")
	case errors.Is(err, store.ErrNotFound):
		return r.consumer.SendDLQ(ctx, d, ErrRecordMissing.Error())
	default:
		return fmt.Errorf("failing abandoned record: %w", err)
	}

	return r.consumer.Ack(ctx, d)
}
