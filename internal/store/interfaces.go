package store

import (
	"context"
	"errors"

	"huddle.app/relay/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrNotPending is returned by a terminal write against a record that is
// already succeeded or failed. The stored outcome is left untouched.
var ErrNotPending = errors.New("interaction record is not pending")

// ErrAlreadyExists is returned when an insert hits a unique constraint.
var ErrAlreadyExists = errors.New("already exists")

// MessageStore defines the contract for message data access
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	// ListBefore returns up to limit messages older than beforeID, newest first.
	ListBefore(ctx context.Context, conversationID, beforeID int64, limit int32) ([]model.Message, error)
}

// InteractionRecordStore defines the contract for AI dispatch records
type InteractionRecordStore interface {
	Create(ctx context.Context, rec *model.InteractionRecord) (*model.InteractionRecord, error)
	GetByID(ctx context.Context, id int64) (*model.InteractionRecord, error)
	GetLatestForMessage(ctx context.Context, userMessageID int64) (*model.InteractionRecord, error)
	ListForMessage(ctx context.Context, userMessageID int64) ([]model.InteractionRecord, error)
	// Complete moves a pending record to a terminal status. ErrNotPending if
	// it was already terminal, ErrNotFound if it does not exist.
	Complete(ctx context.Context, id int64, outcome model.InteractionOutcome) (*model.InteractionRecord, error)
}

// ConversationStore defines the contract for conversation data access
type ConversationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
}

// MemberStore defines the contract for conversation membership lookups
type MemberStore interface {
	Get(ctx context.Context, conversationID int64, userID string) (*model.Member, error)
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Member, error)
}
