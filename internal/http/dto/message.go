package dto

import (
	"time"

	"huddle.app/relay/common/id"
	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/realtime"
)

type SendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

type SendMessageResponse struct {
	Message            realtime.WireMessage `json:"message"`
	RequiresAIDispatch bool                 `json:"requires_ai_dispatch"`
	RoutingReason      string               `json:"routing_reason"`
	Interaction        *InteractionResponse `json:"interaction,omitempty"`
	Enqueued           bool                 `json:"enqueued"`
}

type HistoryRequest struct {
	Before string `form:"before"`
	Limit  int    `form:"limit"`
}

type HistoryResponse struct {
	Messages []realtime.WireMessage `json:"messages"`
	// NextBefore is the cursor for the next (older) page, empty on the last page.
	NextBefore string `json:"next_before,omitempty"`
}

func ToHistoryResponse(messages []model.Message, limit int) HistoryResponse {
	resp := HistoryResponse{Messages: make([]realtime.WireMessage, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, realtime.ToWireMessage(m))
	}
	if len(messages) > 0 && len(messages) == limit {
		resp.NextBefore = id.Format(messages[len(messages)-1].ID)
	}
	return resp
}

type InteractionResponse struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	UserMessageID  string     `json:"user_message_id"`
	AIMessageID    *string    `json:"ai_message_id,omitempty"`
	Status         string     `json:"status"`
	Attempt        int        `json:"attempt"`
	Model          *string    `json:"model,omitempty"`
	DurationMs     *int64     `json:"duration_ms,omitempty"`
	Error          *string    `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func ToInteractionResponse(rec *model.InteractionRecord) *InteractionResponse {
	if rec == nil {
		return nil
	}
	resp := &InteractionResponse{
		ID:             id.Format(rec.ID),
		ConversationID: id.Format(rec.ConversationID),
		UserMessageID:  id.Format(rec.UserMessageID),
		Status:         string(rec.Status),
		Attempt:        rec.Attempt,
		Model:          rec.Model,
		DurationMs:     rec.DurationMs,
		Error:          rec.Error,
		CreatedAt:      rec.CreatedAt,
		CompletedAt:    rec.CompletedAt,
	}
	if rec.AIMessageID != nil {
		aiID := id.Format(*rec.AIMessageID)
		resp.AIMessageID = &aiID
	}
	return resp
}

type InteractionListResponse struct {
	Interactions []InteractionResponse `json:"interactions"`
}

func ToInteractionListResponse(records []model.InteractionRecord) InteractionListResponse {
	resp := InteractionListResponse{Interactions: make([]InteractionResponse, 0, len(records))}
	for i := range records {
		resp.Interactions = append(resp.Interactions, *ToInteractionResponse(&records[i]))
	}
	return resp
}

type RealtimeStatsResponse struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
}
