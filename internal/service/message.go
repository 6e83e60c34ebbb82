package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"huddle.app/relay/common/id"
	"huddle.app/relay/common/logger"
	"huddle.app/relay/internal/metrics"
	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/queue"
	"huddle.app/relay/internal/routing"
	"huddle.app/relay/internal/store"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Ingress channels, used as a metrics label.
const (
	ChannelHTTP      = "http"
	ChannelWebsocket = "websocket"
)

type SendParams struct {
	ConversationID int64
	SenderID       string
	Body           string
	Channel        string
	TraceID        string
}

type SendResult struct {
	Message  *model.Message
	Decision routing.Decision
	// Record is nil unless the message was routed to the assistant.
	Record *model.InteractionRecord
	// Enqueued is false when the dispatch job could not be queued; the
	// record is then already failed and can be re-dispatched.
	Enqueued bool
}

type HistoryParams struct {
	ConversationID int64
	UserID         string
	BeforeID       *int64
	Limit          int
}

type MessageService interface {
	Send(ctx context.Context, params SendParams) (*SendResult, error)
	// History returns messages older than BeforeID, newest first.
	History(ctx context.Context, params HistoryParams) ([]model.Message, error)
	Get(ctx context.Context, userID string, messageID int64) (*model.Message, error)
	// Redispatch creates a new attempt for a message whose latest dispatch failed.
	Redispatch(ctx context.Context, messageID int64, traceID string) (*model.InteractionRecord, error)
}

// Announcer hands a stored message to fanout without waiting for delivery.
type Announcer interface {
	Announce(ctx context.Context, msg model.Message)
}

// Router is the routing decision the ingress path needs.
type Router interface {
	Route(msg model.Message, role model.ConversationRole) routing.Decision
}

type MessageServiceDeps struct {
	Conversations store.ConversationStore
	Members       store.MemberStore
	Messages      store.MessageStore
	Records       store.InteractionRecordStore
	TxRunner      TxRunner
	Router        Router
	Producer      queue.Producer
	Announcer     Announcer
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

type messageService struct {
	conversations store.ConversationStore
	members       store.MemberStore
	messages      store.MessageStore
	records       store.InteractionRecordStore
	txRunner      TxRunner
	router        Router
	producer      queue.Producer
	announcer     Announcer
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func NewMessageService(deps MessageServiceDeps) MessageService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &messageService{
		conversations: deps.Conversations,
		members:       deps.Members,
		messages:      deps.Messages,
		records:       deps.Records,
		txRunner:      deps.TxRunner,
		router:        deps.Router,
		producer:      deps.Producer,
		announcer:     deps.Announcer,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
	}
}

// ValidateBody trims body and enforces the non-empty and length rules.
func ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: body is empty", ErrInvalidMessage)
	}
	if n := model.BodyLen(body); n > model.MaxMessageBodyLen {
		return "", fmt.Errorf("%w: body has %d characters, limit is %d", ErrInvalidMessage, n, model.MaxMessageBodyLen)
	}
	return body, nil
}

func (s *messageService) Send(ctx context.Context, params SendParams) (*SendResult, error) {
	if params.ConversationID == 0 || params.SenderID == "" {
		return nil, fmt.Errorf("%w: conversation_id and sender_id are required", ErrInvalidMessage)
	}
	body, err := ValidateBody(params.Body)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(params.ConversationID),
		UserID:         logger.Ptr(params.SenderID),
		Component:      "relay.service.message",
	})

	member, err := s.requireMember(ctx, params.ConversationID, params.SenderID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             id.New(),
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Kind:           model.MessageKindText,
		Body:           body,
	}

	decision := s.router.Route(*msg, member.Role)
	s.metrics.RoutingDecision(decision.Reason)

	var record *model.InteractionRecord
	if err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		var err error
		msg, err = sp.Messages().Create(ctx, msg)
		if err != nil {
			return fmt.Errorf("creating message: %w", err)
		}

		if !decision.RequiresAIDispatch {
			return nil
		}

		record, err = sp.InteractionRecords().Create(ctx, &model.InteractionRecord{
			ID:             id.New(),
			ConversationID: msg.ConversationID,
			UserMessageID:  msg.ID,
			Status:         model.InteractionStatusPending,
			Attempt:        1,
		})
		if err != nil {
			return fmt.Errorf("creating interaction record: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.metrics.MessageIngested(params.Channel)
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(msg.ID)})

	// Persisted first, offered to fanout second, and only then can a reply exist.
	s.announcer.Announce(ctx, *msg)

	result := &SendResult{Message: msg, Decision: decision, Record: record}
	if record == nil {
		s.logger.InfoContext(ctx, "message stored", "reason", decision.Reason)
		return result, nil
	}

	record, enqueued := s.enqueue(ctx, *msg, record, params.TraceID)
	result.Record = record
	result.Enqueued = enqueued

	s.logger.InfoContext(ctx, "message stored and routed to assistant",
		"record_id", record.ID,
		"enqueued", enqueued)

	return result, nil
}

// enqueue queues the dispatch job. When the queue is unavailable the record
// is failed right away so it never sits pending with no job behind it.
func (s *messageService) enqueue(ctx context.Context, msg model.Message, record *model.InteractionRecord, traceID string) (*model.InteractionRecord, bool) {
	err := s.producer.Enqueue(ctx, queue.DispatchJob{
		RecordID: record.ID,
		Message:  msg,
		Attempt:  record.Attempt,
		TraceID:  traceID,
	})
	if err == nil {
		return record, true
	}

	s.logger.ErrorContext(ctx, "failed to enqueue dispatch job, failing record",
		"record_id", record.ID,
		"error", err)

	detail := fmt.Sprintf("enqueue failed: %v", err)
	failed, completeErr := s.records.Complete(context.WithoutCancel(ctx), record.ID, model.InteractionOutcome{
		Status: model.InteractionStatusFailed,
		Error:  store.TruncateError(&detail),
	})
	if completeErr != nil {
		s.logger.ErrorContext(ctx, "failed to mark record failed after enqueue error",
			"record_id", record.ID,
			"error", completeErr)
		return record, false
	}
	return failed, false
}

func (s *messageService) History(ctx context.Context, params HistoryParams) ([]model.Message, error) {
	limit := params.Limit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidMessage, MaxHistoryLimit)
	}

	if _, err := s.requireMember(ctx, params.ConversationID, params.UserID); err != nil {
		return nil, err
	}

	beforeID := int64(math.MaxInt64)
	if params.BeforeID != nil {
		beforeID = *params.BeforeID
	}

	messages, err := s.messages.ListBefore(ctx, params.ConversationID, beforeID, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return messages, nil
}

func (s *messageService) Get(ctx context.Context, userID string, messageID int64) (*model.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("fetching message: %w", err)
	}

	if _, err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *messageService) Redispatch(ctx context.Context, messageID int64, traceID string) (*model.InteractionRecord, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("fetching message: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(msg.ConversationID),
		MessageID:      logger.Ptr(msg.ID),
		Component:      "relay.service.message",
	})

	latest, err := s.records.GetLatestForMessage(ctx, msg.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: message was never routed to the assistant", ErrDispatchConflict)
		}
		return nil, fmt.Errorf("fetching latest interaction record: %w", err)
	}
	if latest.Status != model.InteractionStatusFailed {
		s.logger.WarnContext(ctx, "re-dispatch refused",
			"record_id", latest.ID,
			"status", latest.Status)
		return nil, fmt.Errorf("%w: latest attempt %d is %s", ErrDispatchConflict, latest.Attempt, latest.Status)
	}

	var record *model.InteractionRecord
	if err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		var err error
		record, err = sp.InteractionRecords().Create(ctx, &model.InteractionRecord{
			ID:             id.New(),
			ConversationID: msg.ConversationID,
			UserMessageID:  msg.ID,
			Status:         model.InteractionStatusPending,
			Attempt:        latest.Attempt + 1,
		})
		return err
	}); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: attempt %d already exists", ErrDispatchConflict, latest.Attempt+1)
		}
		return nil, fmt.Errorf("creating interaction record: %w", err)
	}

	record, enqueued := s.enqueue(ctx, *msg, record, traceID)
	if !enqueued {
		return record, fmt.Errorf("enqueueing re-dispatch for record %d failed", record.ID)
	}

	s.logger.InfoContext(ctx, "message re-dispatched",
		"record_id", record.ID,
		"attempt", record.Attempt,
		"previous_record_id", latest.ID)

	return record, nil
}

func (s *messageService) requireMember(ctx context.Context, conversationID int64, userID string) (*model.Member, error) {
	if _, err := s.conversations.GetByID(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}

	member, err := s.members.Get(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("fetching membership: %w", err)
	}
	return member, nil
}
