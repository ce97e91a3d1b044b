// Package models defines the shared data types for the orchestrator.
package models

import (
	"errors"
	"fmt"
	"time"
)

// DefaultCollection is the task collection used when none is specified.
const DefaultCollection = "default"

// TaskStatus represents the current state of a task on the board.
type TaskStatus string

const (
	// TaskStatusBacklog indicates the task is captured but not ready to start.
	TaskStatusBacklog TaskStatus = "backlog"
	// TaskStatusReady indicates the task can be picked up.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusInProgress indicates an agent is working on the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusPRCreated indicates the work is waiting on review.
	TaskStatusPRCreated TaskStatus = "pr_created"
	// TaskStatusDone indicates the task is finished.
	TaskStatusDone TaskStatus = "done"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusBacklog, TaskStatusReady, TaskStatusInProgress, TaskStatusPRCreated, TaskStatusDone:
		return true
	default:
		return false
	}
}

// transitions lists the allowed edges of the task state machine.
// in_progress -> backlog is the error-recovery edge.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusBacklog:    {TaskStatusReady},
	TaskStatusReady:      {TaskStatusInProgress, TaskStatusBacklog},
	TaskStatusInProgress: {TaskStatusDone, TaskStatusPRCreated, TaskStatusBacklog},
	TaskStatusPRCreated:  {TaskStatusDone},
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority orders work on the board. The empty priority sorts last.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
)

// Valid returns true for P0-P2 and the empty (unset) priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, "":
		return true
	default:
		return false
	}
}

// Rank returns the sort rank of the priority; lower runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	default:
		return 3
	}
}

// ErrOwnerRequired is returned when an in-progress task has no owner.
var ErrOwnerRequired = errors.New("in_progress task requires an owner")

// Task represents a unit of work on a board.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Collection is the board the task belongs to.
	Collection string `json:"collection"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Owner is the ID of the agent responsible for the task.
	Owner string `json:"owner,omitempty"`
	// Priority is the scheduling priority; empty sorts last.
	Priority Priority `json:"priority,omitempty"`
	// Output holds the agent output, or the error text after a failed run.
	Output string `json:"output,omitempty"`
	// StartedAt is when work began, if applicable.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks the task invariants.
func (t *Task) Validate() error {
	if t.Title == "" {
		return errors.New("task title is required")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid task status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("invalid task priority %q", t.Priority)
	}
	if t.Status == TaskStatusInProgress && t.Owner == "" {
		return ErrOwnerRequired
	}
	return nil
}

// TaskPatch holds a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Owner       *string
	Priority    *Priority
	Output      *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Apply copies the set fields of the patch onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Owner != nil {
		t.Owner = *p.Owner
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Output != nil {
		t.Output = *p.Output
	}
	if p.StartedAt != nil {
		t.StartedAt = p.StartedAt
	}
	if p.CompletedAt != nil {
		t.CompletedAt = p.CompletedAt
	}
}

// StatusPatch is a convenience for a patch that only changes status.
func StatusPatch(s TaskStatus) TaskPatch {
	return TaskPatch{Status: &s}
}
