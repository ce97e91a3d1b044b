package state

import (
	"context"
	"io"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// TaskStore handles task persistence.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, collection string, status *models.TaskStatus) ([]*models.Task, error)
	CreateTask(ctx context.Context, t *models.Task) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
}

// SkillStore handles skill persistence.
type SkillStore interface {
	CreateSkill(ctx context.Context, s *models.Skill) error
	GetSkill(ctx context.Context, name string) (*models.Skill, error)
	ListSkills(ctx context.Context) ([]*models.Skill, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// StateStore is the full persistence surface of the SQLite database.
type StateStore interface {
	io.Closer
	Migrator
	TaskStore
	SkillStore
}

var (
	_ StateStore = (*DB)(nil)
	_ TaskStore  = (*DB)(nil)
	_ SkillStore = (*DB)(nil)
)
