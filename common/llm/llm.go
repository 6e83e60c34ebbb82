package llm

import (
	"context"
	"fmt"
	"regexp"
)

var nameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Config struct {
	Provider string // "openai" or "anthropic"
	APIKey   string
	BaseURL  string // optional, for proxies and compatible gateways
	Model    string
}

// Client is a plain chat-completion client. No tools, no structured output.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
	Model() string
}

type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature *float64 // nil = model default
}

type Message struct {
	Role    string
	Name    string // user messages only; see SanitizeName
	Content string
}

type Response struct {
	Content          string
	FinishReason     string // "stop", "length", or the provider's raw value
	PromptTokens     int
	CompletionTokens int
}

// New picks the provider implementation from cfg.Provider. OpenAI is the default.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	switch cfg.Provider {
	case "", ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// SanitizeName converts a user ID into a valid OpenAI name parameter.
// The name must match ^[a-zA-Z0-9_-]{1,64}$.
func SanitizeName(userID string) string {
	sanitized := nameInvalidChars.ReplaceAllString(userID, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}

func Temp(t float64) *float64 {
	return &t
}
