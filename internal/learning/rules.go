package learning

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// TriggerKind is the category of signal a rule watches.
type TriggerKind string

const (
	TriggerPerformance TriggerKind = "performance"
	TriggerPattern     TriggerKind = "pattern"
	TriggerDomain      TriggerKind = "domain"
	TriggerWorkload    TriggerKind = "workload"
	TriggerTask        TriggerKind = "task"
)

// ActionKind is the recommended follow-up when a rule triggers.
type ActionKind string

const (
	ActionCreateAgent ActionKind = "create_agent"
	ActionCreateSkill ActionKind = "create_skill"
	ActionEvolveAgent ActionKind = "evolve_agent"
	ActionDelegate    ActionKind = "delegate"
	ActionReadDocs    ActionKind = "read_docs"
	ActionUpdateDocs  ActionKind = "update_docs"
)

// RulePriority is advisory; it does not order evaluation.
type RulePriority string

const (
	PriorityCritical RulePriority = "critical"
	PriorityHigh     RulePriority = "high"
	PriorityMedium   RulePriority = "medium"
	PriorityLow      RulePriority = "low"
)

// Operator compares a metric against a threshold.
type Operator string

const (
	OpGT  Operator = "gt"
	OpLT  Operator = "lt"
	OpGTE Operator = "gte"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
)

// Valid returns true if the operator is known.
func (o Operator) Valid() bool {
	switch o {
	case OpGT, OpLT, OpGTE, OpLTE, OpEQ:
		return true
	default:
		return false
	}
}

// Metric names derived from a worker identity.
const (
	MetricSuccessRate      = "success_rate"
	MetricTasksCompleted   = "tasks_completed"
	MetricAvgExecutionTime = "avg_execution_time"
	MetricLearningsCount   = "learnings_count"
	MetricRole             = "role"
)

// Condition is one metric comparison.
type Condition struct {
	Metric    string   `yaml:"metric" json:"metric"`
	Operator  Operator `yaml:"operator" json:"operator"`
	Threshold any      `yaml:"threshold" json:"threshold"`
}

// Rule maps a condition set to a recommended action.
type Rule struct {
	ID          string       `yaml:"id" json:"id"`
	Description string       `yaml:"description" json:"description"`
	Trigger     TriggerKind  `yaml:"trigger" json:"trigger"`
	Action      ActionKind   `yaml:"action" json:"action"`
	Conditions  []Condition  `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Priority    RulePriority `yaml:"priority,omitempty" json:"priority,omitempty"`
	AutoApply   bool         `yaml:"auto_apply,omitempty" json:"auto_apply,omitempty"`
}

// ErrInvalidRule is wrapped by Register and LoadRulesFile for rejected rules.
var ErrInvalidRule = errors.New("invalid rule")

// Validate checks the rule id and condition operators.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRule)
	}
	for i, c := range r.Conditions {
		if c.Metric == "" {
			return fmt.Errorf("%w %s: condition %d has no metric", ErrInvalidRule, r.ID, i)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("%w %s: condition %d has unknown operator %q", ErrInvalidRule, r.ID, i, c.Operator)
		}
	}
	return nil
}

// TriggeredRule is a rule whose conditions all held.
type TriggeredRule struct {
	Rule
	// Reason lists the satisfied conditions with their observed values.
	Reason string `json:"reason"`
}

// EvalContext is the input to Evaluate.
type EvalContext struct {
	// Agent, when set, contributes derived performance metrics.
	Agent *models.Agent
	// Metrics are explicit values; they take precedence over derived ones.
	Metrics map[string]any
}

// RuleEngine holds registered rules. It is safe for concurrent use.
type RuleEngine struct {
	mu    sync.RWMutex
	order []string
	rules map[string]Rule
}

// NewRuleEngine creates an engine seeded with the given rules.
func NewRuleEngine(rules ...Rule) *RuleEngine {
	e := &RuleEngine{rules: make(map[string]Rule)}
	for _, r := range rules {
		e.put(r)
	}
	return e
}

// Register adds a rule or overwrites the one with the same id, keeping its position.
func (e *RuleEngine) Register(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	e.put(r)
	return nil
}

func (e *RuleEngine) put(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[r.ID]; !exists {
		e.order = append(e.order, r.ID)
	}
	e.rules[r.ID] = r
}

// List returns every rule in registration order.
func (e *RuleEngine) List() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rules[id])
	}
	return out
}

// Evaluate returns the rules whose conditions all hold, in registration order.
func (e *RuleEngine) Evaluate(ctx EvalContext) []TriggeredRule {
	metrics := BuildMetrics(ctx)
	rules := e.List()

	var triggered []TriggeredRule
	for _, r := range rules {
		if reason, ok := matchAll(r, metrics); ok {
			triggered = append(triggered, TriggeredRule{Rule: r, Reason: reason})
		}
	}
	return triggered
}

// BuildMetrics merges derived agent metrics with the explicit ones.
func BuildMetrics(ctx EvalContext) map[string]any {
	m := make(map[string]any, len(ctx.Metrics)+5)
	if a := ctx.Agent; a != nil {
		m[MetricSuccessRate] = a.Performance.SuccessRate()
		m[MetricTasksCompleted] = a.Performance.TasksCompleted
		m[MetricAvgExecutionTime] = a.Performance.AvgExecutionTime
		m[MetricLearningsCount] = len(a.Performance.Learnings)
		m[MetricRole] = string(a.Role)
	}
	for k, v := range ctx.Metrics {
		m[k] = v
	}
	return m
}

func matchAll(r Rule, metrics map[string]any) (string, bool) {
	reason := r.Description
	for _, c := range r.Conditions {
		actual, ok := metrics[c.Metric]
		if !ok || !compare(actual, c.Operator, c.Threshold) {
			return "", false
		}
		reason += fmt.Sprintf("; %s=%v %s %v", c.Metric, actual, c.Operator, c.Threshold)
	}
	return reason, true
}

// compare applies op to actual and threshold. Mismatched types compare false.
func compare(actual any, op Operator, threshold any) bool {
	if a, ok := toFloat(actual); ok {
		t, ok := toFloat(threshold)
		if !ok {
			return false
		}
		switch op {
		case OpGT:
			return a > t
		case OpLT:
			return a < t
		case OpGTE:
			return a >= t
		case OpLTE:
			return a <= t
		case OpEQ:
			return a == t
		}
		return false
	}

	if op != OpEQ {
		return false
	}
	switch a := actual.(type) {
	case bool:
		t, ok := threshold.(bool)
		return ok && a == t
	case string:
		t, ok := threshold.(string)
		return ok && a == t
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "create-specialist",
			Description: "Domain keeps recurring without a specialist; propose one",
			Trigger:     TriggerDomain,
			Action:      ActionCreateAgent,
			Conditions: []Condition{
				{Metric: "domain_task_count", Operator: OpGTE, Threshold: 5},
				{Metric: "has_specialist", Operator: OpEQ, Threshold: false},
			},
			Priority: PriorityHigh,
		},
		{
			ID:          "create-skill",
			Description: "Task pattern recurred 3+ times with no skill covering it",
			Trigger:     TriggerPattern,
			Action:      ActionCreateSkill,
			Conditions: []Condition{
				{Metric: "pattern_count", Operator: OpGTE, Threshold: 3},
				{Metric: "has_skill", Operator: OpEQ, Threshold: false},
			},
			Priority: PriorityMedium,
		},
		{
			ID:          "evolve-low-success",
			Description: "Success rate below 80% after 10+ tasks; evolve this agent",
			Trigger:     TriggerPerformance,
			Action:      ActionEvolveAgent,
			Conditions: []Condition{
				{Metric: MetricSuccessRate, Operator: OpLT, Threshold: 0.8},
				{Metric: MetricTasksCompleted, Operator: OpGTE, Threshold: 10},
			},
			Priority: PriorityHigh,
		},
		{
			ID:          "suggest-delegation",
			Description: "Backlog is piling up and delegates are available",
			Trigger:     TriggerWorkload,
			Action:      ActionDelegate,
			Conditions: []Condition{
				{Metric: "pending_tasks", Operator: OpGTE, Threshold: 5},
				{Metric: "available_delegates", Operator: OpGTE, Threshold: 1},
			},
			Priority: PriorityMedium,
		},
		{
			ID:          "read-docs-before",
			Description: "Read the project docs and decision log before starting",
			Trigger:     TriggerTask,
			Action:      ActionReadDocs,
			Priority:    PriorityCritical,
		},
		{
			ID:          "update-docs-after",
			Description: "Update the docs and decision log after finishing",
			Trigger:     TriggerTask,
			Action:      ActionUpdateDocs,
			Priority:    PriorityCritical,
		},
	}
}

// rulesFile is the on-disk layout of a rules file.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRulesFile reads extra rules from a YAML file. A missing file yields
// no rules and no error.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	for _, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return f.Rules, nil
}
