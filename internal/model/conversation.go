package model

import (
	"strings"
	"time"
)

type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationRole is a participant's tag within one conversation. It is
// unrelated to any account-level role and only drives AI routing.
type ConversationRole string

const (
	RolePatient     ConversationRole = "patient"
	RoleDoctor      ConversationRole = "doctor"
	RoleAIAssistant ConversationRole = "ai_assistant"
)

// Normalize lowercases and trims the role so "Patient " matches "patient".
func (r ConversationRole) Normalize() ConversationRole {
	return ConversationRole(strings.ToLower(strings.TrimSpace(string(r))))
}

type Member struct {
	ConversationID int64            `json:"conversation_id"`
	UserID         string           `json:"user_id"`
	Role           ConversationRole `json:"role"`
	JoinedAt       time.Time        `json:"joined_at"`
}
