package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, job DispatchJob) error
}

type redisProducer struct {
	client redis.Cmdable
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client redis.Cmdable, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, job DispatchJob) error {
	streamID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: job.values(),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue dispatch job: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued dispatch job",
		"record_id", job.RecordID,
		"message_id", job.Message.ID,
		"conversation_id", job.Message.ConversationID,
		"attempt", job.Attempt,
		"stream_message_id", streamID)
	return nil
}
