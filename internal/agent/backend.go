// Package agent adapts external language-model execution backends: one-shot
// invocations through the claude CLI or the Anthropic API, and persistent
// interactive sessions used by the worker pool.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// DefaultTimeout bounds a single backend invocation.
const DefaultTimeout = 10 * time.Minute

var (
	// ErrEmptyPrompt is returned when Invoke is called with no prompt.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrInvokeTimeout is returned when an invocation exceeds its timeout.
	ErrInvokeTimeout = errors.New("backend invocation timed out")
)

// InvokeOptions tunes one backend invocation.
type InvokeOptions struct {
	// Model overrides the backend's default model.
	Model           string
	MaxOutputTokens int
	// Timeout defaults to DefaultTimeout when zero.
	Timeout time.Duration
	// WorkDir is the working directory for process-based backends.
	WorkDir string
}

func (o InvokeOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Response is the result of one invocation.
type Response struct {
	// Text is the model's final text output.
	Text string
	// IsError is set when the backend reported an explicit error flag.
	IsError bool
	// Structured is true when Text came from a structured envelope, so
	// IsError is authoritative.
	Structured bool
	Duration   time.Duration
	// Raw holds the envelope when one was parsed.
	Raw json.RawMessage
}

// Backend runs a single prompt to completion.
type Backend interface {
	Name() string
	Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*Response, error)
}

// withTimeout derives the invocation context.
func withTimeout(ctx context.Context, opts InvokeOptions) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opts.timeout())
}

// timeoutErr maps a deadline expiry onto ErrInvokeTimeout.
func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrInvokeTimeout
	}
	return err
}
