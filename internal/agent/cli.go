package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CLIBackend runs `claude -p <prompt> --output-format json` once per invocation.
type CLIBackend struct {
	// Path is the claude binary; defaults to "claude".
	Path string
	// Model is used when InvokeOptions.Model is empty.
	Model string
	// ExtraArgs are inserted before the prompt.
	ExtraArgs []string
}

var _ Backend = (*CLIBackend)(nil)

// NewCLIBackend creates a CLI backend for the given binary and default model.
func NewCLIBackend(path, model string) *CLIBackend {
	if path == "" {
		path = "claude"
	}
	return &CLIBackend{Path: path, Model: model}
}

// Name implements Backend.
func (b *CLIBackend) Name() string { return "cli" }

// cliEnvelope is the result object printed by --output-format json.
type cliEnvelope struct {
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype"`
	IsError    bool    `json:"is_error"`
	Result     string  `json:"result"`
	DurationMS int64   `json:"duration_ms"`
	CostUSD    float64 `json:"total_cost_usd"`
	SessionID  string  `json:"session_id"`
}

// args builds the argument list for one invocation.
func (b *CLIBackend) args(prompt string, opts InvokeOptions) []string {
	args := []string{"--output-format", "json"}
	model := opts.Model
	if model == "" {
		model = b.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, b.ExtraArgs...)
	return append(args, "-p", prompt)
}

// Invoke implements Backend. A non-zero exit, a spawn failure or a timeout
// is returned as an error; an is_error envelope is a successful invocation
// with Response.IsError set.
func (b *CLIBackend) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.Path, b.args(prompt, opts)...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	if opts.MaxOutputTokens > 0 {
		cmd.Env = append(cmd.Environ(), "CLAUDE_CODE_MAX_OUTPUT_TOKENS="+strconv.Itoa(opts.MaxOutputTokens))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if terr := timeoutErr(ctx, err); terr != err {
			return nil, terr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("claude cli: %w: %s", err, truncate(msg, 500))
	}

	resp := parseCLIOutput(stdout.Bytes())
	resp.Duration = time.Since(start)
	return resp, nil
}

// parseCLIOutput reads the JSON envelope, falling back to the raw text when
// the output is not a result object.
func parseCLIOutput(out []byte) *Response {
	trimmed := bytes.TrimSpace(out)
	var env cliEnvelope
	if err := json.Unmarshal(trimmed, &env); err == nil && (env.Type == "result" || env.Result != "") {
		return &Response{
			Text:       env.Result,
			IsError:    env.IsError,
			Structured: true,
			Raw:        json.RawMessage(trimmed),
		}
	}
	return &Response{Text: string(trimmed)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
