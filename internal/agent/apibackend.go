package agent

import (
	"context"
	"strings"
	"time"

	"github.com/0xtechdean/ai-team-orchestrator/internal/api"
)

// Completer is the part of api.Client the API backend needs.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts api.CompleteOptions) (*api.Completion, error)
}

var _ Completer = (*api.Client)(nil)

// APIBackend answers prompts through the Anthropic Messages API.
type APIBackend struct {
	client Completer
	system string
}

var _ Backend = (*APIBackend)(nil)

// NewAPIBackend wraps a completion client. system is sent as the system
// prompt on every call when non-empty.
func NewAPIBackend(client Completer, system string) *APIBackend {
	return &APIBackend{client: client, system: system}
}

// Name implements Backend.
func (b *APIBackend) Name() string { return "api" }

// Invoke implements Backend. The API has no explicit error envelope, so
// Structured is always false.
func (b *APIBackend) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	start := time.Now()
	out, err := b.client.Complete(ctx, prompt, api.CompleteOptions{
		Model:     opts.Model,
		System:    b.system,
		MaxTokens: int64(opts.MaxOutputTokens),
	})
	if err != nil {
		return nil, timeoutErr(ctx, err)
	}
	return &Response{Text: out.Text, Duration: time.Since(start)}, nil
}
