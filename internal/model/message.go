package model

import (
	"time"
	"unicode/utf8"
)

type MessageKind string

const (
	MessageKindText    MessageKind = "text"
	MessageKindAIReply MessageKind = "ai_reply"
)

// MaxMessageBodyLen is counted in characters, not bytes.
const MaxMessageBodyLen = 5000

// Message is immutable once stored.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Kind           MessageKind `json:"kind"`
	Body           string      `json:"body"`
	ReplyToID      *int64      `json:"reply_to_id,omitempty"` // set on ai_reply: the user message it answers
	CreatedAt      time.Time   `json:"created_at"`
}

func (m Message) IsAIReply() bool {
	return m.Kind == MessageKindAIReply
}

func BodyLen(body string) int {
	return utf8.RuneCountInString(body)
}
