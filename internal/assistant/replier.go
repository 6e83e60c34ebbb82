// Package assistant turns conversation history into a single AI reply.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"huddle.app/relay/common/llm"
	"huddle.app/relay/internal/model"
)

// ErrEmptyReply is returned when the provider answers with no text.
var ErrEmptyReply = errors.New("assistant returned an empty reply")

// Replier is the AI dependency of the dispatch worker. It may be slow and it
// may fail; callers bound it with their own deadline.
type Replier interface {
	GenerateReply(ctx context.Context, history []model.Message, prompt model.Message) (Reply, error)
}

type Reply struct {
	Body  string
	Model string
}

type Config struct {
	SystemPrompt    string
	MaxTokens       int
	AssistantUserID string // sender ID of earlier AI replies in history
}

type llmReplier struct {
	client llm.Client
	cfg    Config
}

func NewReplier(client llm.Client, cfg Config) Replier {
	return &llmReplier{client: client, cfg: cfg}
}

func (r *llmReplier) GenerateReply(ctx context.Context, history []model.Message, prompt model.Message) (Reply, error) {
	resp, err := r.client.Chat(ctx, llm.Request{
		Messages:  BuildMessages(r.cfg, history, prompt),
		MaxTokens: r.cfg.MaxTokens,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("generating reply: %w", err)
	}

	body := strings.TrimSpace(resp.Content)
	if body == "" {
		return Reply{}, ErrEmptyReply
	}
	if runes := []rune(body); len(runes) > model.MaxMessageBodyLen {
		body = string(runes[:model.MaxMessageBodyLen])
	}

	return Reply{Body: body, Model: r.client.Model()}, nil
}

// BuildMessages lays out the chat: system prompt, history oldest first, then
// the message being answered. AI replies become assistant turns; everything
// else is a named user turn.
func BuildMessages(cfg Config, history []model.Message, prompt model.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if cfg.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: cfg.SystemPrompt})
	}

	for _, m := range history {
		if m.ID == prompt.ID {
			continue
		}
		msgs = append(msgs, toLLMMessage(cfg, m))
	}

	return append(msgs, toLLMMessage(cfg, prompt))
}

func toLLMMessage(cfg Config, m model.Message) llm.Message {
	if m.IsAIReply() || (cfg.AssistantUserID != "" && m.SenderID == cfg.AssistantUserID) {
		return llm.Message{Role: llm.RoleAssistant, Content: m.Body}
	}
	return llm.Message{
		Role:    llm.RoleUser,
		Name:    llm.SanitizeName(m.SenderID),
		Content: m.Body,
	}
}
