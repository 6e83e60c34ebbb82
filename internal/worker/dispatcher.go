package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"huddle.app/relay/common/id"
	"huddle.app/relay/common/llm"
	"huddle.app/relay/common/logger"
	"huddle.app/relay/internal/assistant"
	"huddle.app/relay/internal/metrics"
	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/queue"
	"huddle.app/relay/internal/store"
)

var (
	// ErrRecordMissing means a job points at a record that does not exist or
	// belongs to another message. It is a producer bug; the job is dead-lettered.
	ErrRecordMissing = errors.New("interaction record missing")

	// ErrDuplicateDispatch means the record was already terminal. The job is
	// acknowledged without calling the AI.
	ErrDuplicateDispatch = errors.New("duplicate dispatch")
)

// terminalWriteTimeout bounds the status write that follows the AI call. It
// runs detached from the job context so shutdown cannot strand a pending record.
const terminalWriteTimeout = 10 * time.Second

type DispatcherConfig struct {
	Timeout         time.Duration
	ContextMessages int
	AssistantUserID string
	Model           string // recorded on failures, when the provider never answered
}

type Dispatcher struct {
	stores    StoreProvider
	txRunner  TxRunner
	replier   assistant.Replier
	announcer Announcer
	metrics   *metrics.Metrics
	cfg       DispatcherConfig
}

func NewDispatcher(stores StoreProvider, txRunner TxRunner, replier assistant.Replier, announcer Announcer, m *metrics.Metrics, cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.ContextMessages < 0 {
		cfg.ContextMessages = 0
	}
	return &Dispatcher{
		stores:    stores,
		txRunner:  txRunner,
		replier:   replier,
		announcer: announcer,
		metrics:   m,
		cfg:       cfg,
	}
}

// Dispatch runs one AI exchange for a pending record. AI failures are
// recorded on the record and are not returned; the returned error only
// describes what should happen to the job itself.
func (d *Dispatcher) Dispatch(ctx context.Context, job queue.DispatchJob) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &job.Message.ConversationID,
		MessageID:      &job.Message.ID,
		RecordID:       &job.RecordID,
		Component:      "relay.worker.dispatcher",
	})

	span := logger.StartSpanFromTraceID(ctx, job.TraceID, "dispatch.process")
	defer span.End()
	ctx = span.Context()
	span.SetAttributes(
		attribute.Int64("relay.record_id", job.RecordID),
		attribute.Int64("relay.message_id", job.Message.ID),
		attribute.Int("relay.attempt", job.Attempt),
	)

	rec, err := d.stores.InteractionRecords().GetByID(ctx, job.RecordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.ErrorContext(ctx, "dispatch job references a missing interaction record")
			return fmt.Errorf("%w: record %d", ErrRecordMissing, job.RecordID)
		}
		span.Fail(err)
		return fmt.Errorf("loading interaction record: %w", err)
	}

	if rec.UserMessageID != job.Message.ID {
		slog.ErrorContext(ctx, "dispatch job does not match its interaction record",
			"record_user_message_id", rec.UserMessageID)
		return fmt.Errorf("%w: record %d belongs to message %d", ErrRecordMissing, rec.ID, rec.UserMessageID)
	}

	if rec.Status.IsTerminal() {
		slog.WarnContext(ctx, "interaction record already terminal, skipping AI call",
			"status", rec.Status,
			"attempt", rec.Attempt)
		return fmt.Errorf("%w: record %d is %s", ErrDuplicateDispatch, rec.ID, rec.Status)
	}

	history := d.loadHistory(ctx, job.Message)

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	done := d.metrics.DispatchStarted()
	start := time.Now()
	reply, callErr := d.replier.GenerateReply(callCtx, history, job.Message)
	elapsed := time.Since(start)
	done()
	cancel()

	if callErr != nil {
		span.Fail(callErr)
		return d.fail(ctx, rec, elapsed, classifyCallError(callErr), callErr)
	}

	return d.succeed(ctx, rec, job.Message, reply, elapsed)
}

// loadHistory returns up to ContextMessages messages before msg, oldest
// first. History is best effort: on error the AI sees only the prompt.
func (d *Dispatcher) loadHistory(ctx context.Context, msg model.Message) []model.Message {
	if d.cfg.ContextMessages == 0 {
		return nil
	}

	history, err := d.stores.Messages().ListBefore(ctx, msg.ConversationID, msg.ID, int32(d.cfg.ContextMessages))
	if err != nil {
		slog.WarnContext(ctx, "loading conversation history failed, dispatching without context", "error", err)
		return nil
	}

	slices.Reverse(history)
	return history
}

func (d *Dispatcher) succeed(ctx context.Context, rec *model.InteractionRecord, prompt model.Message, reply assistant.Reply, elapsed time.Duration) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	replyTo := prompt.ID
	modelName := reply.Model
	if modelName == "" {
		modelName = d.cfg.Model
	}

	var stored *model.Message
	err := d.txRunner.WithTx(writeCtx, func(sp StoreProvider) error {
		var err error
		stored, err = sp.Messages().Create(writeCtx, &model.Message{
			ID:             id.New(),
			ConversationID: prompt.ConversationID,
			SenderID:       d.cfg.AssistantUserID,
			Kind:           model.MessageKindAIReply,
			Body:           reply.Body,
			ReplyToID:      &replyTo,
		})
		if err != nil {
			return fmt.Errorf("creating ai reply: %w", err)
		}

		// A rejected conditional update rolls the reply back with it.
		_, err = sp.InteractionRecords().Complete(writeCtx, rec.ID, model.InteractionOutcome{
			Status:      model.InteractionStatusSucceeded,
			AIMessageID: &stored.ID,
			Model:       &modelName,
			DurationMs:  elapsed.Milliseconds(),
		})
		if err != nil {
			return fmt.Errorf("completing interaction record: %w", err)
		}
		return nil
	})

	switch {
	case errors.Is(err, store.ErrNotPending):
		slog.WarnContext(ctx, "interaction record completed concurrently, ai reply discarded")
		return fmt.Errorf("%w: record %d", ErrDuplicateDispatch, rec.ID)
	case err != nil:
		slog.ErrorContext(ctx, "persisting ai reply failed", "error", err)
		return d.fail(ctx, rec, elapsed, errorKindPersist, fmt.Errorf("persisting reply: %w", err))
	}

	d.metrics.DispatchFinished(string(model.InteractionStatusSucceeded), "", elapsed)
	slog.InfoContext(ctx, "ai reply stored",
		"ai_message_id", stored.ID,
		"duration_ms", elapsed.Milliseconds(),
		"model", modelName)

	d.announcer.Announce(ctx, *stored)
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, rec *model.InteractionRecord, elapsed time.Duration, kind string, cause error) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	detail := failureDetail(kind, cause, d.cfg.Timeout)

	var modelName *string
	if d.cfg.Model != "" {
		modelName = &d.cfg.Model
	}

	_, err := d.stores.InteractionRecords().Complete(writeCtx, rec.ID, model.InteractionOutcome{
		Status:     model.InteractionStatusFailed,
		Model:      modelName,
		DurationMs: elapsed.Milliseconds(),
		Error:      &detail,
	})
	if errors.Is(err, store.ErrNotPending) {
		slog.WarnContext(ctx, "interaction record completed concurrently, failure not recorded", "cause", cause)
		return fmt.Errorf("%w: record %d", ErrDuplicateDispatch, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("recording dispatch failure: %w", err)
	}

	d.metrics.DispatchFinished(string(model.InteractionStatusFailed), kind, elapsed)
	slog.WarnContext(ctx, "ai dispatch failed",
		"error_kind", kind,
		"error", cause,
		"duration_ms", elapsed.Milliseconds())
	return nil
}

const (
	errorKindEmptyReply = "empty_reply"
	errorKindPersist    = "persist"
)

func classifyCallError(err error) string {
	if errors.Is(err, assistant.ErrEmptyReply) {
		return errorKindEmptyReply
	}
	return llm.Classify(err)
}

func failureDetail(kind string, cause error, timeout time.Duration) string {
	if kind == llm.ErrorKindTimeout {
		return fmt.Sprintf("ai call timed out after %s: %v", timeout, cause)
	}
	return kind + ": " + cause.Error()
}
