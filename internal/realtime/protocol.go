package realtime

import (
	"encoding/json"
	"time"

	"huddle.app/relay/common/id"
	"huddle.app/relay/internal/model"
)

// Server-pushed event types.
const (
	EventMessageNew     = "message.new"
	EventMessageAIReply = "message.ai_reply"
)

// Frame types exchanged on the socket.
const (
	FrameWelcome     = "welcome"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameSendMessage = "send_message"
	FrameMessageSent = "message_sent"
	FrameError       = "error"
)

// Error codes carried by error frames.
const (
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeSendFailed         = "SEND_MESSAGE_FAILED"
)

// WireMessage is a message as clients see it. IDs are strings because
// snowflakes do not fit in a JavaScript number.
type WireMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Kind           string    `json:"kind"`
	Body           string    `json:"body"`
	ReplyToID      *string   `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func ToWireMessage(m model.Message) WireMessage {
	w := WireMessage{
		ID:             id.Format(m.ID),
		ConversationID: id.Format(m.ConversationID),
		SenderID:       m.SenderID,
		Kind:           string(m.Kind),
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
	if m.ReplyToID != nil {
		replyTo := id.Format(*m.ReplyToID)
		w.ReplyToID = &replyTo
	}
	return w
}

// Event is pushed to every participant of a conversation.
type Event struct {
	Type    string      `json:"type"`
	Message WireMessage `json:"message"`
}

// NewMessageEvent picks the event type from the message kind.
func NewMessageEvent(m model.Message) Event {
	eventType := EventMessageNew
	if m.IsAIReply() {
		eventType = EventMessageAIReply
	}
	return Event{Type: eventType, Message: ToWireMessage(m)}
}

// InboundFrame is anything a client may send. Only Type is always present.
type InboundFrame struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Body           string `json:"body,omitempty"`
}

type WelcomeFrame struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	ServerTime   time.Time `json:"server_time"`
}

type PongFrame struct {
	Type       string    `json:"type"`
	ServerTime time.Time `json:"server_time"`
}

type MessageSentFrame struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Message   WireMessage `json:"message"`
}

type ErrorFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func NewErrorFrame(requestID, code, message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, RequestID: requestID, Code: code, Message: message}
}

// Encode marshals a frame. The frame types above cannot fail to marshal.
func Encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error","code":"INTERNAL","message":"encoding failed"}`)
	}
	return data
}
