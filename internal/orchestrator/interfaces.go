package orchestrator

import (
	"context"
	"time"

	"github.com/0xtechdean/ai-team-orchestrator/internal/agent"
	"github.com/0xtechdean/ai-team-orchestrator/internal/memory"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// TaskStore is the persistent task board.
// GetTask and UpdateTask return nil, nil when the task does not exist.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, collection string, status *models.TaskStatus) ([]*models.Task, error)
	CreateTask(ctx context.Context, t *models.Task) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
}

// SkillStore persists skills created from structured requests.
type SkillStore interface {
	CreateSkill(ctx context.Context, s *models.Skill) error
	GetSkill(ctx context.Context, name string) (*models.Skill, error)
	ListSkills(ctx context.Context) ([]*models.Skill, error)
}

// MemoryStore is the shared-memory note service.
type MemoryStore interface {
	Search(ctx context.Context, query, scope string, limit int) ([]memory.Note, error)
	Add(ctx context.Context, text, scope string, metadata map[string]string) (*memory.Note, error)
}

// ContextLoader returns the project context block. Failures yield "".
type ContextLoader interface {
	Load() string
}

// Executor runs one composed prompt on behalf of an agent.
type Executor interface {
	Execute(ctx context.Context, agentID, prompt string, timeout time.Duration) (*agent.Response, error)
}

// Notification summarizes a finished RunTask for the notification sink.
type Notification struct {
	AgentID  string
	Task     string
	Output   string
	Success  bool
	Duration time.Duration
}

// Notifier receives task summaries. It must not block for long.
type Notifier func(Notification)

// BackendExecutor adapts a one-shot agent.Backend to Executor.
type BackendExecutor struct {
	Backend agent.Backend
	// Options are applied to every invocation; a non-zero timeout passed to
	// Execute overrides Options.Timeout.
	Options agent.InvokeOptions
}

var (
	_ Executor = (*BackendExecutor)(nil)
	_ Executor = (*Pool)(nil)
)

// NewBackendExecutor wraps b with default invocation options.
func NewBackendExecutor(b agent.Backend, opts agent.InvokeOptions) *BackendExecutor {
	return &BackendExecutor{Backend: b, Options: opts}
}

// Execute implements Executor.
func (e *BackendExecutor) Execute(ctx context.Context, agentID, prompt string, timeout time.Duration) (*agent.Response, error) {
	opts := e.Options
	if timeout > 0 {
		opts.Timeout = timeout
	}
	debugLog("[executor] %s invoking %s backend (%d bytes)", agentID, e.Backend.Name(), len(prompt))
	return e.Backend.Invoke(ctx, prompt, opts)
}
