package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// Error kinds reported by Classify. They end up as metric labels, so keep the set small.
const (
	ErrorKindTimeout     = "timeout"
	ErrorKindCanceled    = "canceled"
	ErrorKindRateLimited = "rate_limited"
	ErrorKindServer      = "provider_server"
	ErrorKindClient      = "provider_client"
	ErrorKindNetwork     = "network"
)

// Classify buckets a Chat error. It never says whether to retry; callers decide.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCanceled
	}

	status := 0
	var openaiErr *openai.Error
	var anthropicErr *anthropic.Error
	switch {
	case errors.As(err, &openaiErr):
		status = openaiErr.StatusCode
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
	}

	switch {
	case status == 0:
		return ErrorKindNetwork
	case status == 429:
		return ErrorKindRateLimited
	case status >= 500:
		return ErrorKindServer
	default:
		return ErrorKindClient
	}
}
