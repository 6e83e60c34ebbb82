// Package fanout pushes stored messages to every live connection of a
// conversation's participants.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"huddle.app/relay/common/logger"
	"huddle.app/relay/internal/metrics"
	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/realtime"
	"huddle.app/relay/internal/store"
)

const defaultWriteTimeout = 5 * time.Second

// DeliveryReport lists participants by outcome. A user counts as delivered
// when at least one of their handles accepted the event.
type DeliveryReport struct {
	Delivered   []string
	Unreachable []string
}

type PublisherConfig struct {
	WriteTimeout time.Duration
}

type Publisher struct {
	members  store.MemberStore
	registry *realtime.Registry
	metrics  *metrics.Metrics
	cfg      PublisherConfig
	logger   *slog.Logger
}

func NewPublisher(members store.MemberStore, registry *realtime.Registry, m *metrics.Metrics, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		members:  members,
		registry: registry,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
}

// Publish writes event to every live handle of the conversation's members in
// parallel. A handle whose write fails or times out is evicted; the other
// recipients are unaffected. Offline members are reported unreachable and
// catch up through history.
func (p *Publisher) Publish(ctx context.Context, conversationID int64, event realtime.Event) (DeliveryReport, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(conversationID),
		Component:      "relay.fanout.publisher",
	})

	members, err := p.members.ListByConversation(ctx, conversationID)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("listing conversation members: %w", err)
	}

	participants := make([]string, 0, len(members))
	for _, m := range members {
		participants = append(participants, m.UserID)
	}

	payload := realtime.Encode(event)
	handles := p.registry.HandlesFor(participants)

	var (
		mu        sync.Mutex
		delivered = make(map[string]bool, len(participants))
		wg        sync.WaitGroup
		failures  int
	)

	for _, h := range handles {
		wg.Add(1)
		go func(h realtime.Handle) {
			defer wg.Done()

			writeCtx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
			err := h.Send(writeCtx, payload)
			cancel()

			if err != nil {
				p.logger.DebugContext(ctx, "fanout write failed, evicting handle",
					"user_id", h.UserID(),
					"connection_id", h.ID(),
					"error", err)
				p.registry.Unregister(h.UserID(), h)

				mu.Lock()
				failures++
				mu.Unlock()
				return
			}

			mu.Lock()
			delivered[h.UserID()] = true
			mu.Unlock()
		}(h)
	}
	wg.Wait()

	report := DeliveryReport{}
	for _, userID := range participants {
		if delivered[userID] {
			report.Delivered = append(report.Delivered, userID)
		} else {
			report.Unreachable = append(report.Unreachable, userID)
		}
	}
	sort.Strings(report.Delivered)
	sort.Strings(report.Unreachable)

	p.metrics.FanoutDelivered(len(report.Delivered))
	p.metrics.FanoutUnreachable(len(report.Unreachable))

	if failures > 0 {
		p.logger.WarnContext(ctx, "fanout evicted dead handles",
			"event_type", event.Type,
			"evicted", failures)
	}
	p.logger.DebugContext(ctx, "fanout complete",
		"event_type", event.Type,
		"delivered", len(report.Delivered),
		"unreachable", len(report.Unreachable))

	return report, nil
}

// PublishMessage is Publish for a stored message.
func (p *Publisher) PublishMessage(ctx context.Context, msg model.Message) (DeliveryReport, error) {
	return p.Publish(ctx, msg.ConversationID, realtime.NewMessageEvent(msg))
}
