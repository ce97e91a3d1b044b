package models

import "time"

// Role is the coarse responsibility of a worker identity.
type Role string

const (
	// RoleManager plans work and may create other agents and skills.
	RoleManager Role = "manager"
	// RoleSpecialist owns a domain such as api or database work.
	RoleSpecialist Role = "specialist"
	// RoleSupport handles review, docs and other cross-cutting work.
	RoleSupport Role = "support"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleSpecialist, RoleSupport:
		return true
	default:
		return false
	}
}

const (
	// MaxLearnings bounds the learnings ring of a performance record.
	MaxLearnings = 20
	// MaxImprovements bounds the improvement notes ring.
	MaxImprovements = 20
)

// Agent is a worker identity the orchestrator impersonates when it
// invokes the execution backend.
type Agent struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Role         Role     `json:"role" yaml:"role"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Tools        []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	// ParentAgent is the ID of the identity this one evolved from.
	// It is a lookup-only reference.
	ParentAgent string      `json:"parent_agent,omitempty" yaml:"parent_agent,omitempty"`
	Performance Performance `json:"performance" yaml:"performance"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
}

// HasTool reports whether the agent is permitted to use the named tool.
func (a *Agent) HasTool(name string) bool {
	for _, t := range a.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// HasCapability reports whether the agent declares the capability.
func (a *Agent) HasCapability(name string) bool {
	for _, c := range a.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Performance tracks how an agent has done over time.
type Performance struct {
	TasksCompleted  int `json:"tasks_completed" yaml:"tasks_completed"`
	TasksSuccessful int `json:"tasks_successful" yaml:"tasks_successful"`
	// AvgExecutionTime is the running mean execution time in milliseconds.
	AvgExecutionTime float64   `json:"avg_execution_time" yaml:"avg_execution_time"`
	LastActive       time.Time `json:"last_active,omitempty" yaml:"last_active,omitempty"`
	Learnings        []string  `json:"learnings,omitempty" yaml:"learnings,omitempty"`
	Improvements     []string  `json:"improvements,omitempty" yaml:"improvements,omitempty"`
}

// Record folds one finished task into the record. The mean is updated
// incrementally so it equals the arithmetic mean of every recorded duration.
func (p *Performance) Record(d time.Duration, success bool, learnings []string, at time.Time) {
	p.TasksCompleted++
	if success {
		p.TasksSuccessful++
	}
	ms := float64(d) / float64(time.Millisecond)
	p.AvgExecutionTime += (ms - p.AvgExecutionTime) / float64(p.TasksCompleted)
	p.LastActive = at
	p.Learnings = appendBounded(p.Learnings, MaxLearnings, learnings...)
}

// AddImprovement appends an improvement note, keeping the newest entries.
func (p *Performance) AddImprovement(note string) {
	p.Improvements = appendBounded(p.Improvements, MaxImprovements, note)
}

// SuccessRate returns successful / max(completed, 1).
func (p Performance) SuccessRate() float64 {
	completed := p.TasksCompleted
	if completed < 1 {
		completed = 1
	}
	return float64(p.TasksSuccessful) / float64(completed)
}

// appendBounded appends items and drops the oldest entries beyond limit.
func appendBounded(ring []string, limit int, items ...string) []string {
	ring = append(ring, items...)
	if len(ring) > limit {
		ring = append([]string(nil), ring[len(ring)-limit:]...)
	}
	return ring
}
