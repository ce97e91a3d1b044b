package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// ErrInvalidTransition is returned when an update would move a task along
// an edge the status machine does not allow.
var ErrInvalidTransition = errors.New("invalid task status transition")

const taskColumns = `id, collection, title, description, status, owner, priority, output,
	started_at, completed_at, created_at, updated_at`

// priorityOrder sorts P0 first and unset priority last.
const priorityOrder = `CASE priority WHEN 'P0' THEN 0 WHEN 'P1' THEN 1 WHEN 'P2' THEN 2 ELSE 3 END`

// CreateTask inserts a task, filling in the id, collection, status and
// timestamps when unset.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) (*models.Task, error) {
	out := *t
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.Collection == "" {
		out.Collection = models.DefaultCollection
	}
	if out.Status == "" {
		out.Status = models.TaskStatusBacklog
	}
	now := db.now().UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, out.ID, out.Collection, out.Title, out.Description, string(out.Status), out.Owner, string(out.Priority), out.Output,
		formatNullableTime(out.StartedAt), formatNullableTime(out.CompletedAt), FormatTime(out.CreatedAt), FormatTime(out.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &out, nil
}

// GetTask retrieves a task by ID. It returns nil, nil when the task does not exist.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks lists the tasks of a collection ordered by priority, then
// creation time. A nil status lists every status.
func (db *DB) ListTasks(ctx context.Context, collection string, status *models.TaskStatus) ([]*models.Task, error) {
	if collection == "" {
		collection = models.DefaultCollection
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE collection = ?`
	args := []any{collection}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY ` + priorityOrder + `, created_at, rowid`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask applies a partial update. It returns nil, nil when the task
// does not exist and ErrInvalidTransition for a disallowed status change.
func (db *DB) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	var updated *models.Task
	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
		t, err := scanTask(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}

		from := t.Status
		patch.Apply(t)
		if t.Status != from && !from.CanTransition(t.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, t.Status)
		}
		if err := t.Validate(); err != nil {
			return err
		}
		t.UpdatedAt = db.now().UTC()

		_, err = tx.ExecContext(ctx, `
			UPDATE tasks SET title = ?, description = ?, status = ?, owner = ?, priority = ?, output = ?,
				started_at = ?, completed_at = ?, updated_at = ?
			WHERE id = ?
		`, t.Title, t.Description, string(t.Status), t.Owner, string(t.Priority), t.Output,
			formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt), FormatTime(t.UpdatedAt), t.ID)
		if err != nil {
			return fmt.Errorf("write task: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	return updated, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*models.Task, error) {
	var t models.Task
	var status, createdAt, updatedAt string
	var description, owner, priority, output, startedAt, completedAt sql.NullString

	err := r.Scan(&t.ID, &t.Collection, &t.Title, &description, &status, &owner, &priority, &output,
		&startedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.Description = description.String
	t.Owner = owner.String
	t.Priority = models.Priority(priority.String)
	t.Output = output.String
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	t.CreatedAt, _ = ParseTime(createdAt)
	t.UpdatedAt, _ = ParseTime(updatedAt)
	return &t, nil
}
