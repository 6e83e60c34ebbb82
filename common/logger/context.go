package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are attached to every record logged with a context that carries them.
type LogFields struct {
	ConversationID  *int64  // conversation the work belongs to
	MessageID       *int64  // originating user message
	RecordID        *int64  // interaction record being dispatched
	UserID          *string // caller or connection owner
	ConnectionID    *string // websocket handle
	StreamMessageID *string // Redis stream entry ID
	Component       string  // e.g. "relay.worker.dispatcher"
}

// WithLogFields merges fields into ctx; newer non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields returns the fields carried by ctx, or the zero value.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ConversationID != nil {
		result.ConversationID = next.ConversationID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.RecordID != nil {
		result.RecordID = next.RecordID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.ConnectionID != nil {
		result.ConnectionID = next.ConnectionID
	}
	if next.StreamMessageID != nil {
		result.StreamMessageID = next.StreamMessageID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr returns a pointer to v, handy for inline LogFields literals.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate cuts s to maxLen bytes and appends "..." when it did.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
