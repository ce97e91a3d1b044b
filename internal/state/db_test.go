package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "nested", "test.db")
}

// setupTestDB creates a new migrated temporary database with a stepping clock.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	db.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if db.Driver() != DriverModernc {
		t.Errorf("Driver() = %q, want %q", db.Driver(), DriverModernc)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpenWithDriver_Unsupported(t *testing.T) {
	if _, err := OpenWithDriver("postgres", tempDBPath(t)); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var version int
	if err := db.QueryRowContext(context.Background(), "SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
}

func TestTimeFormatSortsLexically(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
	b := a.Add(100 * time.Millisecond)
	if !(FormatTime(a) < FormatTime(b)) {
		t.Errorf("FormatTime(%v) = %q should sort before %q", a, FormatTime(a), FormatTime(b))
	}
	got, err := ParseTime(FormatTime(b))
	if err != nil || !got.Equal(b) {
		t.Errorf("ParseTime round trip = %v, %v", got, err)
	}
}

func TestCreateAndGetTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created, err := db.CreateTask(ctx, &models.Task{Title: "implement payments endpoint", Priority: models.PriorityP1})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated id")
	}
	if created.Collection != models.DefaultCollection {
		t.Errorf("Collection = %q, want %q", created.Collection, models.DefaultCollection)
	}
	if created.Status != models.TaskStatusBacklog {
		t.Errorf("Status = %q, want backlog", created.Status)
	}

	got, err := db.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetTask returned nil")
	}
	if got.Title != created.Title || got.Priority != models.PriorityP1 {
		t.Errorf("GetTask = %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
	if got.StartedAt != nil {
		t.Errorf("StartedAt = %v, want nil", got.StartedAt)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.GetTask(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetTask = %+v, want nil", got)
	}
}

func TestCreateTask_RejectsInProgressWithoutOwner(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.CreateTask(context.Background(), &models.Task{Title: "x", Status: models.TaskStatusInProgress})
	if !errors.Is(err, models.ErrOwnerRequired) {
		t.Errorf("CreateTask error = %v, want ErrOwnerRequired", err)
	}
}

func TestListTasks_OrderedByPriorityThenCreated(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	specs := []struct {
		title    string
		priority models.Priority
		status   models.TaskStatus
	}{
		{"unprioritized", "", models.TaskStatusReady},
		{"p2 first", models.PriorityP2, models.TaskStatusReady},
		{"p0", models.PriorityP0, models.TaskStatusReady},
		{"p2 second", models.PriorityP2, models.TaskStatusReady},
		{"p1 backlog", models.PriorityP1, models.TaskStatusBacklog},
	}
	for _, s := range specs {
		if _, err := db.CreateTask(ctx, &models.Task{Title: s.title, Priority: s.priority, Status: s.status}); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", s.title, err)
		}
	}
	if _, err := db.CreateTask(ctx, &models.Task{Title: "other board", Collection: "ops", Status: models.TaskStatusReady}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	ready := models.TaskStatusReady
	tasks, err := db.ListTasks(ctx, "", &ready)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}

	want := []string{"p0", "p2 first", "p2 second", "unprioritized"}
	if len(tasks) != len(want) {
		t.Fatalf("ListTasks returned %d tasks, want %d", len(tasks), len(want))
	}
	for i, title := range want {
		if tasks[i].Title != title {
			t.Errorf("tasks[%d] = %q, want %q", i, tasks[i].Title, title)
		}
	}

	all, err := db.ListTasks(ctx, models.DefaultCollection, nil)
	if err != nil {
		t.Fatalf("ListTasks(all) failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("ListTasks(all) returned %d tasks, want 5", len(all))
	}
}

func TestUpdateTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task, err := db.CreateTask(ctx, &models.Task{Title: "build checkout", Owner: "frontend", Status: models.TaskStatusReady})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	started := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	patch := models.StatusPatch(models.TaskStatusInProgress)
	patch.StartedAt = &started

	updated, err := db.UpdateTask(ctx, task.ID, patch)
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Status != models.TaskStatusInProgress {
		t.Errorf("Status = %q, want in_progress", updated.Status)
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced: %v <= %v", updated.UpdatedAt, task.UpdatedAt)
	}

	got, _ := db.GetTask(ctx, task.ID)
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
}

func TestUpdateTask_InvalidTransition(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task, _ := db.CreateTask(ctx, &models.Task{Title: "x"})
	_, err := db.UpdateTask(ctx, task.ID, models.StatusPatch(models.TaskStatusDone))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("UpdateTask error = %v, want ErrInvalidTransition", err)
	}

	got, _ := db.GetTask(ctx, task.ID)
	if got.Status != models.TaskStatusBacklog {
		t.Errorf("Status = %q after rejected update, want backlog", got.Status)
	}
}

func TestUpdateTask_NotFound(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.UpdateTask(context.Background(), "missing", models.StatusPatch(models.TaskStatusReady))
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if got != nil {
		t.Errorf("UpdateTask = %+v, want nil", got)
	}
}

func TestSkills(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	skill := &models.Skill{
		Name:         "implement-endpoint",
		Description:  "Scaffold a REST endpoint",
		Category:     "api",
		Triggers:     []string{"endpoint", "route"},
		Instructions: "Add handler, validation and tests.",
		CreatedBy:    "pm",
	}
	if err := db.CreateSkill(ctx, skill); err != nil {
		t.Fatalf("CreateSkill failed: %v", err)
	}
	if err := db.CreateSkill(ctx, skill); !errors.Is(err, ErrSkillExists) {
		t.Errorf("duplicate CreateSkill error = %v, want ErrSkillExists", err)
	}
	if err := db.CreateSkill(ctx, &models.Skill{Name: "api-task"}); err != nil {
		t.Fatalf("CreateSkill failed: %v", err)
	}

	got, err := db.GetSkill(ctx, "implement-endpoint")
	if err != nil || got == nil {
		t.Fatalf("GetSkill = %v, %v", got, err)
	}
	if len(got.Triggers) != 2 || got.Triggers[1] != "route" {
		t.Errorf("Triggers = %v", got.Triggers)
	}

	missing, err := db.GetSkill(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetSkill(nope) = %v, %v; want nil, nil", missing, err)
	}

	all, err := db.ListSkills(ctx)
	if err != nil {
		t.Fatalf("ListSkills failed: %v", err)
	}
	if len(all) != 2 || all[0].Name != "api-task" {
		t.Errorf("ListSkills = %v", all)
	}
}
