package service

import "errors"

var (
	// ErrInvalidMessage covers body and request validation failures.
	ErrInvalidMessage       = errors.New("invalid message")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrInteractionNotFound  = errors.New("interaction record not found")
	// ErrNotMember is returned when the caller does not belong to the conversation.
	ErrNotMember = errors.New("not a member of this conversation")
	// ErrDispatchConflict is returned when a message already has a live or
	// successful dispatch, or was never eligible for one.
	ErrDispatchConflict = errors.New("dispatch conflict")
)
