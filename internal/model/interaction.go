package model

import "time"

type InteractionStatus string

const (
	InteractionStatusPending   InteractionStatus = "pending"
	InteractionStatusSucceeded InteractionStatus = "succeeded"
	InteractionStatusFailed    InteractionStatus = "failed"
)

// Column widths, counted in characters.
const (
	MaxInteractionErrorLen = 500
	MaxInteractionModelLen = 128
)

func (s InteractionStatus) IsTerminal() bool {
	return s == InteractionStatusSucceeded || s == InteractionStatusFailed
}

// InteractionRecord tracks one AI dispatch attempt for a user message.
// It is created pending and completed exactly once.
type InteractionRecord struct {
	ID             int64             `json:"id"`
	ConversationID int64             `json:"conversation_id"`
	UserMessageID  int64             `json:"user_message_id"`
	AIMessageID    *int64            `json:"ai_message_id,omitempty"`
	Status         InteractionStatus `json:"status"`
	Attempt        int               `json:"attempt"`
	Model          *string           `json:"model,omitempty"`
	DurationMs     *int64            `json:"duration_ms,omitempty"`
	Error          *string           `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// InteractionOutcome is the terminal write for a record.
type InteractionOutcome struct {
	Status      InteractionStatus
	AIMessageID *int64
	Model       *string
	DurationMs  int64
	Error       *string
}
