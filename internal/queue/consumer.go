package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"huddle.app/relay/common/logger"
)

type ConsumerConfig struct {
	Stream    string        // Redis stream name
	Group     string        // Redis consumer group name
	Consumer  string        // Redis consumer name
	DLQStream string        // dead letter stream for jobs that cannot be dispatched
	BatchSize int64         // upper bound on entries per XREADGROUP
	Block     time.Duration // how long XREADGROUP blocks waiting for entries
}

// Delivery is one stream entry handed to this consumer.
type Delivery struct {
	ID  string // stream entry ID
	Job DispatchJob
	Raw redis.XMessage
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}

	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.ensureGroup(ctx); err != nil {
		return nil, err
	}

	return consumer, nil
}

func (c *RedisConsumer) Config() ConsumerConfig {
	return c.cfg
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// "0" so a recreated group still sees entries already in the stream.
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// Read returns up to count entries never delivered to any consumer; count <= 0
// means BatchSize. Entries left pending by a crashed consumer are the
// reclaimer's business.
func (c *RedisConsumer) Read(ctx context.Context, count int64) ([]Delivery, error) {
	if count <= 0 || count > c.cfg.BatchSize {
		count = c.cfg.BatchSize
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.queue.consumer",
	})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    count,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var deliveries []Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			delivery, parseErr := ParseDelivery(msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "unparseable dispatch job, moving to DLQ",
					"error", parseErr,
					"stream_message_id", msg.ID,
					"stream", c.cfg.Stream)
				if dlqErr := c.SendDLQ(ctx, Delivery{ID: msg.ID, Raw: msg}, parseErr.Error()); dlqErr != nil {
					slog.ErrorContext(ctx, "failed to dead-letter unparseable job", "error", dlqErr)
				}
				continue
			}
			deliveries = append(deliveries, delivery)
		}
	}

	if len(deliveries) > 0 {
		slog.DebugContext(ctx, "read dispatch jobs from stream",
			"count", len(deliveries),
			"stream", c.cfg.Stream,
			"consumer", c.cfg.Consumer)
	}

	return deliveries, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, d Delivery) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, d.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// SendDLQ copies the raw entry to the DLQ stream with the failure reason, then acks it.
func (c *RedisConsumer) SendDLQ(ctx context.Context, d Delivery, reason string) error {
	values := make(map[string]any, len(d.Raw.Values)+2)
	for k, v := range d.Raw.Values {
		values[k] = v
	}
	values["error"] = reason
	values["source_id"] = d.ID

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	if err := c.Ack(ctx, d); err != nil {
		return fmt.Errorf("acking dead-lettered job: %w", err)
	}

	slog.ErrorContext(ctx, "dispatch job sent to DLQ",
		"stream_message_id", d.ID,
		"reason", reason,
		"dlq_stream", c.cfg.DLQStream)
	return nil
}

func ParseDelivery(msg redis.XMessage) (Delivery, error) {
	job, err := ParseJob(msg.Values)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{ID: msg.ID, Job: job, Raw: msg}, nil
}
