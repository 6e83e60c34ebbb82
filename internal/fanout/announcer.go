package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"huddle.app/relay/internal/model"
)

const announceTimeout = 30 * time.Second

// MessagePublisher is the part of Publisher the announcers need.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg model.Message) (DeliveryReport, error)
}

// LocalAnnouncer publishes on a goroutine so the caller never waits for delivery.
// Used by the process that owns the connections.
type LocalAnnouncer struct {
	publisher MessagePublisher
	logger    *slog.Logger
}

func NewLocalAnnouncer(publisher MessagePublisher, logger *slog.Logger) *LocalAnnouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalAnnouncer{publisher: publisher, logger: logger}
}

func (a *LocalAnnouncer) Announce(ctx context.Context, msg model.Message) {
	// Detached: the request that produced msg may finish before delivery does.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), announceTimeout)
	go func() {
		defer cancel()
		if _, err := a.publisher.PublishMessage(ctx, msg); err != nil {
			a.logger.WarnContext(ctx, "fanout failed",
				"conversation_id", msg.ConversationID,
				"message_id", msg.ID,
				"error", err)
		}
	}()
}

// RedisAnnouncer hands messages to the server process over a pub/sub channel.
// Used by the worker, which holds no connections.
type RedisAnnouncer struct {
	client  redis.Cmdable
	channel string
	logger  *slog.Logger
}

func NewRedisAnnouncer(client redis.Cmdable, channel string, logger *slog.Logger) *RedisAnnouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisAnnouncer{client: client, channel: channel, logger: logger}
}

func (a *RedisAnnouncer) Announce(ctx context.Context, msg model.Message) {
	if err := a.publish(ctx, msg); err != nil {
		a.logger.WarnContext(ctx, "announcing message failed, recipients will catch up via history",
			"conversation_id", msg.ConversationID,
			"message_id", msg.ID,
			"error", err)
	}
}

func (a *RedisAnnouncer) publish(ctx context.Context, msg model.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := a.client.Publish(ctx, a.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", a.channel, err)
	}
	return nil
}

// Subscriber relays messages announced on the pub/sub channel to the local
// Publisher. Pub/sub is at-most-once: a message published while no server
// is subscribed is only reachable through history.
type Subscriber struct {
	client    *redis.Client
	channel   string
	publisher MessagePublisher
	logger    *slog.Logger
}

func NewSubscriber(client *redis.Client, channel string, publisher MessagePublisher, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:    client,
		channel:   channel,
		publisher: publisher,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled or the subscription breaks.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.channel, err)
	}
	s.logger.Info("fanout subscriber started", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("fanout subscriber stopping")
			return nil
		case m, ok := <-ch:
			if !ok {
				return errors.New("fanout subscription closed")
			}
			s.Handle(ctx, []byte(m.Payload))
		}
	}
}

// Handle decodes one announced message and publishes it.
func (s *Subscriber) Handle(ctx context.Context, payload []byte) {
	var msg model.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.ErrorContext(ctx, "dropping malformed fanout payload", "error", err)
		return
	}

	report, err := s.publisher.PublishMessage(ctx, msg)
	if err != nil {
		s.logger.WarnContext(ctx, "fanout failed",
			"conversation_id", msg.ConversationID,
			"message_id", msg.ID,
			"error", err)
		return
	}
	s.logger.DebugContext(ctx, "relayed announced message",
		"message_id", msg.ID,
		"delivered", len(report.Delivered),
		"unreachable", len(report.Unreachable))
}
