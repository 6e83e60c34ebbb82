package queue

import (
	"fmt"
	"strconv"
	"time"

	"huddle.app/relay/internal/model"
)

// DispatchJob asks the worker to produce an AI reply for one user message.
// The message travels by value so the worker never shares state with the
// request that created it.
type DispatchJob struct {
	RecordID int64
	Message  model.Message
	Attempt  int
	TraceID  string
}

func (j DispatchJob) values() map[string]any {
	attempt := j.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	values := map[string]any{
		"record_id":       j.RecordID,
		"message_id":      j.Message.ID,
		"conversation_id": j.Message.ConversationID,
		"sender_id":       j.Message.SenderID,
		"kind":            string(j.Message.Kind),
		"body":            j.Message.Body,
		"created_at":      j.Message.CreatedAt.UTC().Format(time.RFC3339Nano),
		"attempt":         attempt,
	}
	if j.TraceID != "" {
		values["trace_id"] = j.TraceID
	}
	return values
}

// ParseJob decodes the stream entry fields written by the producer.
func ParseJob(values map[string]any) (DispatchJob, error) {
	recordID, err := parseInt64(values, "record_id")
	if err != nil {
		return DispatchJob{}, err
	}
	messageID, err := parseInt64(values, "message_id")
	if err != nil {
		return DispatchJob{}, err
	}
	conversationID, err := parseInt64(values, "conversation_id")
	if err != nil {
		return DispatchJob{}, err
	}
	senderID, err := parseString(values, "sender_id")
	if err != nil {
		return DispatchJob{}, err
	}
	body, err := parseString(values, "body")
	if err != nil {
		return DispatchJob{}, err
	}

	kind := model.MessageKind(parseOptionalString(values, "kind"))
	if kind == "" {
		kind = model.MessageKindText
	}

	var createdAt time.Time
	if raw := parseOptionalString(values, "created_at"); raw != "" {
		createdAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return DispatchJob{}, fmt.Errorf("parsing created_at: %w", err)
		}
	}

	attempt, err := parseOptionalInt(values, "attempt")
	if err != nil {
		return DispatchJob{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return DispatchJob{
		RecordID: recordID,
		Message: model.Message{
			ID:             messageID,
			ConversationID: conversationID,
			SenderID:       senderID,
			Kind:           kind,
			Body:           body,
			CreatedAt:      createdAt,
		},
		Attempt: attempt,
		TraceID: parseOptionalString(values, "trace_id"),
	}, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
