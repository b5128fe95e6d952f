package model

import (
	"context"

	ctxpkg "github.com/stupiduntilnot/querygate/internal/context"
)

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the chat model abstraction the SQL synthesizer talks to.
type Provider interface {
	ChatCompletion(ctx context.Context, messages []ctxpkg.Message) (CompletionResponse, error)
}
