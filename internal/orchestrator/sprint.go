package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// ErrTaskNotFound is returned by RecoverTask for unknown ids.
var ErrTaskNotFound = errors.New("task not found")

// TaskRunError reports a board task whose run failed. The task is left
// in_progress.
type TaskRunError struct {
	TaskID string
	Err    error
}

func (e *TaskRunError) Error() string {
	return fmt.Sprintf("sprint task %s: %v", e.TaskID, e.Err)
}

func (e *TaskRunError) Unwrap() error { return e.Err }

const standupTask = "Run the daily standup. Review the board, summarize what moved since the last standup, call out blocked or stale tasks, and list today's priorities with owners."

// RunSprintCheck picks the highest-priority ready task in the collection and
// runs it for its owner. It returns a status message when nothing is
// runnable. On a run error the task stays in_progress and the error is a
// *TaskRunError; see RecoverTask.
func (o *Orchestrator) RunSprintCheck(ctx context.Context) (string, error) {
	ready := models.TaskStatusReady
	tasks, err := o.tasks.ListTasks(ctx, o.collection, &ready)
	if err != nil {
		return "", fmt.Errorf("list ready tasks: %w", err)
	}
	if len(tasks) == 0 {
		o.events.Emit(OrchestratorEvent{Type: EventSprintIdle, Message: "no ready tasks"})
		return "No ready tasks in the sprint.", nil
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority.Rank() < tasks[j].Priority.Rank()
	})
	task := tasks[0]
	if task.Owner == "" {
		o.events.Emit(OrchestratorEvent{Type: EventSprintIdle, TaskID: task.ID, TaskTitle: task.Title, Message: "no owner"})
		return fmt.Sprintf("Task %q (%s) has no owner; assign one before it can run.", task.Title, task.ID), nil
	}

	now := time.Now()
	patch := models.StatusPatch(models.TaskStatusInProgress)
	patch.StartedAt = &now
	if _, err := o.tasks.UpdateTask(ctx, task.ID, patch); err != nil {
		return "", fmt.Errorf("start task %s: %w", task.ID, err)
	}
	log.Printf("[orchestrator] sprint: %s started %s (%s)", task.Owner, task.ID, task.Title)

	res, err := o.Run(ctx, TaskInput{
		AgentID:     task.Owner,
		Description: taskDescription(task),
		Context:     fmt.Sprintf("Board task %s, priority %s.", task.ID, displayPriority(task.Priority)),
		TaskID:      task.ID,
	})
	if err != nil {
		return "", &TaskRunError{TaskID: task.ID, Err: err}
	}

	done := time.Now()
	finish := models.StatusPatch(models.TaskStatusDone)
	finish.Output = &res.Output
	finish.CompletedAt = &done
	if _, err := o.tasks.UpdateTask(ctx, task.ID, finish); err != nil {
		return "", fmt.Errorf("complete task %s: %w", task.ID, err)
	}

	return fmt.Sprintf("Completed %q (%s) by %s in %s.\n\n%s", task.Title, task.ID, task.Owner, res.Duration.Round(time.Millisecond), res.Output), nil
}

// RecoverTask moves an in_progress task back to backlog after a failed run,
// keeping the error text as its output.
func (o *Orchestrator) RecoverTask(ctx context.Context, id string, runErr error) (*models.Task, error) {
	msg := "run failed"
	if runErr != nil {
		msg = "run failed: " + runErr.Error()
	}
	patch := models.StatusPatch(models.TaskStatusBacklog)
	patch.Output = &msg
	t, err := o.tasks.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("recover task %s: %w", id, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// RunDailyStandup runs the standup task for the planning agent with the
// board as context.
func (o *Orchestrator) RunDailyStandup(ctx context.Context) (string, error) {
	tasks, err := o.tasks.ListTasks(ctx, o.collection, nil)
	if err != nil {
		log.Printf("[orchestrator] standup: list tasks: %v", err)
	}
	return o.RunTask(ctx, o.planningAgent, standupTask, boardSummary(tasks))
}

func taskDescription(t *models.Task) string {
	if t.Description == "" {
		return t.Title
	}
	return t.Title + "\n\n" + t.Description
}

func displayPriority(p models.Priority) string {
	if p == "" {
		return "unset"
	}
	return string(p)
}

// boardSummary renders tasks grouped by status in board order.
func boardSummary(tasks []*models.Task) string {
	if len(tasks) == 0 {
		return "The board is empty."
	}
	order := []models.TaskStatus{
		models.TaskStatusInProgress,
		models.TaskStatusPRCreated,
		models.TaskStatusReady,
		models.TaskStatusBacklog,
		models.TaskStatusDone,
	}
	byStatus := make(map[models.TaskStatus][]*models.Task)
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}

	var b strings.Builder
	for _, s := range order {
		group := byStatus[s]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s (%d):\n", s, len(group))
		for _, t := range group {
			owner := t.Owner
			if owner == "" {
				owner = "unassigned"
			}
			fmt.Fprintf(&b, "  - [%s] %s (%s)\n", displayPriority(t.Priority), t.Title, owner)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
