package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskStarted indicates RunTask began invoking the backend.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates the backend output was classified as success.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a backend error or a failed outcome.
	EventTaskFailed EventType = "task_failed"
	// EventRuleSuggested indicates a rule became an inline prompt suggestion.
	EventRuleSuggested EventType = "rule_suggested"
	// EventRuleAutoApplied indicates an auto-apply rule triggered.
	EventRuleAutoApplied EventType = "rule_auto_applied"
	// EventAgentCreated indicates a worker identity was created from a request block.
	EventAgentCreated EventType = "agent_created"
	// EventAgentEvolved indicates a child identity was derived from an agent.
	EventAgentEvolved EventType = "agent_evolved"
	// EventSkillCreated indicates a skill was created from a request block.
	EventSkillCreated EventType = "skill_created"
	// EventPlanCreated indicates PlanNextTasks updated the board.
	EventPlanCreated EventType = "plan_created"
	// EventFollowUpScheduled indicates a follow-up RunTask was scheduled.
	EventFollowUpScheduled EventType = "follow_up_scheduled"
	// EventContinuationFailed indicates an asynchronous continuation failed.
	EventContinuationFailed EventType = "continuation_failed"
	// EventSprintIdle indicates a sprint check found nothing runnable.
	EventSprintIdle EventType = "sprint_idle"
	// EventSessionExited indicates a pooled session exited unexpectedly.
	EventSessionExited EventType = "session_exited"
	// EventSessionRespawned indicates the pool replaced an exited session.
	EventSessionRespawned EventType = "session_respawned"
)

// OrchestratorEvent represents an event emitted by the orchestrator.
// These events feed the live viewer and the CLI output.
type OrchestratorEvent struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related board task, if applicable.
	TaskID string
	// TaskTitle is the task title or description, if applicable.
	TaskTitle string
	// AgentID is the ID of the related worker identity, if applicable.
	AgentID string
	// RuleID is set for rule events.
	RuleID string
	// SessionID is set for pool events.
	SessionID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the task execution time, if applicable.
	Duration time.Duration
}
