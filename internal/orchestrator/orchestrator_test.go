package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xtechdean/ai-team-orchestrator/internal/agent"
	"github.com/0xtechdean/ai-team-orchestrator/internal/learning"
	"github.com/0xtechdean/ai-team-orchestrator/internal/memory"
	"github.com/0xtechdean/ai-team-orchestrator/internal/state"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

type execCall struct {
	AgentID string
	Prompt  string
}

// fakeExecutor records calls and answers through handle.
type fakeExecutor struct {
	mu     sync.Mutex
	calls  []execCall
	handle func(agentID, prompt string) (*agent.Response, error)
}

func (f *fakeExecutor) Execute(_ context.Context, agentID, prompt string, _ time.Duration) (*agent.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, execCall{AgentID: agentID, Prompt: prompt})
	h := f.handle
	f.mu.Unlock()
	if h == nil {
		return &agent.Response{Text: "all done"}, nil
	}
	return h(agentID, prompt)
}

func (f *fakeExecutor) taskCalls() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []execCall
	for _, c := range f.calls {
		if !isPlanPrompt(c.Prompt) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeExecutor) planCalls() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []execCall
	for _, c := range f.calls {
		if isPlanPrompt(c.Prompt) {
			out = append(out, c)
		}
	}
	return out
}

func isPlanPrompt(p string) bool {
	return strings.Contains(p, "You are planning the next steps")
}

type staticContext string

func (s staticContext) Load() string { return string(s) }

type harness struct {
	orch     *Orchestrator
	exec     *fakeExecutor
	db       *state.DB
	notes    *memory.Store
	registry *Registry
	dir      string
}

func newHarness(t *testing.T, handle func(agentID, prompt string) (*agent.Response, error), opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()

	db, err := state.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	reg := NewRegistry(filepath.Join(dir, "agents"))
	require.NoError(t, reg.Seed(DefaultAgents()...))

	notes := memory.NewStore(db)
	exec := &fakeExecutor{handle: handle}

	base := []Option{
		WithRegistry(reg),
		WithMemory(notes),
		WithSkillStore(db),
		WithSkillsDir(filepath.Join(dir, "skills")),
		WithFollowUpDelay(10 * time.Millisecond),
		WithEventEmitter(NewEventEmitter(1000)),
	}
	orch, err := New(RequiredConfig{Executor: exec, Tasks: db}, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	return &harness{orch: orch, exec: exec, db: db, notes: notes, registry: reg, dir: dir}
}

func (h *harness) addTask(t *testing.T, task models.Task) *models.Task {
	t.Helper()
	created, err := h.db.CreateTask(context.Background(), &task)
	require.NoError(t, err)
	return created
}

func drainEvents(o *Orchestrator) []OrchestratorEvent {
	var out []OrchestratorEvent
	for {
		select {
		case e := <-o.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventTypes(events []OrchestratorEvent) []EventType {
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(RequiredConfig{Tasks: nil, Executor: &fakeExecutor{}})
	assert.Error(t, err)
	_, err = New(RequiredConfig{})
	assert.Error(t, err)
}

func TestRunTask_ComposesPromptAndRecords(t *testing.T) {
	var notified []Notification
	h := newHarness(t, func(string, string) (*agent.Response, error) {
		return &agent.Response{Text: "Added POST /payments.\n\n## Learnings\n- validate currency codes\n- idempotency keys matter\n"}, nil
	},
		WithContextLoader(staticContext("### README.md\nPayments service")),
		WithNotifier(func(n Notification) { notified = append(notified, n) }),
		WithTerminalAgents("backend"),
	)
	ctx := context.Background()
	_, err := h.notes.Add(ctx, "payments use stripe sandbox keys", "backend", nil)
	require.NoError(t, err)

	res, err := h.orch.Run(ctx, TaskInput{AgentID: "backend", Description: "implement payments endpoint", Context: "ticket PAY-1"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, learning.Classification{Domain: "api", Pattern: "implement-endpoint"}, res.Classification)
	assert.Equal(t, []string{"validate currency codes", "idempotency keys matter"}, res.Learnings)

	calls := h.exec.taskCalls()
	require.Len(t, calls, 1)
	prompt := calls[0].Prompt
	assert.Contains(t, prompt, "You are Backend Engineer")
	assert.Contains(t, prompt, "Payments service")
	assert.Contains(t, prompt, "payments use stripe sandbox keys")
	assert.Contains(t, prompt, "- frontend (specialist)")
	assert.NotContains(t, prompt, "- backend (specialist)")
	assert.Contains(t, prompt, "ticket PAY-1")
	assert.Contains(t, prompt, "Read the project docs")
	assert.NotContains(t, prompt, agentRequestStart)

	perf, ok := h.orch.Performance("backend")
	require.True(t, ok)
	assert.Equal(t, 1, perf.TasksCompleted)
	assert.Equal(t, 1, perf.TasksSuccessful)
	assert.Equal(t, []string{"validate currency codes", "idempotency keys matter"}, perf.Learnings)

	notes, err := h.notes.Search(ctx, "payments", "backend", 10)
	require.NoError(t, err)
	var found bool
	for _, n := range notes {
		if n.Metadata["kind"] == "task_outcome" {
			found = true
			assert.Equal(t, "true", n.Metadata["success"])
			assert.Equal(t, "implement-endpoint", n.Metadata["pattern"])
		}
	}
	assert.True(t, found, "expected an outcome note")

	require.Len(t, notified, 1)
	assert.Equal(t, "backend", notified[0].AgentID)
	assert.True(t, notified[0].Success)

	h.orch.Wait()
	assert.Empty(t, h.exec.planCalls(), "terminal agent must not trigger planning")

	types := eventTypes(drainEvents(h.orch))
	assert.Contains(t, types, EventTaskStarted)
	assert.Contains(t, types, EventTaskCompleted)
}

func TestRunTask_PersistsPerformanceToYAML(t *testing.T) {
	h := newHarness(t, nil, WithTerminalAgents("backend"))
	_, err := h.orch.RunTask(context.Background(), "backend", "write tests for the cart", "")
	require.NoError(t, err)

	reloaded := NewRegistry(filepath.Join(h.dir, "agents"))
	require.NoError(t, reloaded.Load())
	a, ok := reloaded.Get("backend")
	require.True(t, ok)
	assert.Equal(t, 1, a.Performance.TasksCompleted)
}

func TestRunTask_UnknownAgentUsesDefaults(t *testing.T) {
	h := newHarness(t, nil, WithTerminalAgents("ghost"))

	out, err := h.orch.RunTask(context.Background(), "ghost", "tidy up", "")
	require.NoError(t, err)
	assert.Equal(t, "all done", out)

	calls := h.exec.taskCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, defaultInstructions)
	_, ok := h.orch.Performance("ghost")
	assert.False(t, ok)
}

func TestRunTask_BackendErrorIsReturned(t *testing.T) {
	boom := errors.New("backend exploded")
	h := newHarness(t, func(string, string) (*agent.Response, error) { return nil, boom })

	_, err := h.orch.RunTask(context.Background(), "backend", "implement orders endpoint", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	perf, _ := h.orch.Performance("backend")
	assert.Equal(t, 0, perf.TasksCompleted)
	h.orch.Wait()
	assert.Empty(t, h.exec.planCalls())
}

func TestRunTask_OutcomeClassification(t *testing.T) {
	tests := []struct {
		name string
		resp *agent.Response
		want bool
	}{
		{"plain success", &agent.Response{Text: "shipped it"}, true},
		{"negated error still fails", &agent.Response{Text: "no error found"}, false},
		{"envelope success wins over text", &agent.Response{Text: "fixed the error handling", Structured: true}, true},
		{"envelope error wins over text", &agent.Response{Text: "all good", Structured: true, IsError: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(string, string) (*agent.Response, error) { return tt.resp, nil }, WithTerminalAgents("backend"))
			res, err := h.orch.Run(context.Background(), TaskInput{AgentID: "backend", Description: "do work"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Success)
		})
	}
}

func TestRunTask_ManagerRequestsCreateAgentAndSkill(t *testing.T) {
	output := strings.Join([]string{
		"Hiring a data engineer.",
		agentRequestStart,
		"name: Data Engineer",
		"role: specialist",
		"description: Owns pipelines",
		"capabilities: database, etl",
		requestEnd,
		skillRequestStart,
		"name: Create Migration",
		"triggers: create-migration",
		"instructions: write up and down steps",
		requestEnd,
		agentRequestStart,
		"role: specialist",
		requestEnd,
	}, "\n")
	h := newHarness(t, func(string, string) (*agent.Response, error) { return &agent.Response{Text: output}, nil })

	res, err := h.orch.Run(context.Background(), TaskInput{AgentID: "pm", Description: "plan the data work"})
	require.NoError(t, err)

	assert.Equal(t, []string{"data-engineer"}, res.CreatedAgents)
	assert.Equal(t, []string{"create-migration"}, res.CreatedSkills)

	a, ok := h.registry.Get("data-engineer")
	require.True(t, ok)
	assert.Equal(t, models.RoleSpecialist, a.Role)
	assert.Equal(t, []string{"database", "etl"}, a.Capabilities)

	skill, err := h.db.GetSkill(context.Background(), "create-migration")
	require.NoError(t, err)
	require.NotNil(t, skill)
	assert.Equal(t, "pm", skill.CreatedBy)
	_, err = os.Stat(filepath.Join(h.dir, "skills", "create-migration.yaml"))
	assert.NoError(t, err)

	prompt := h.exec.taskCalls()[0].Prompt
	assert.Contains(t, prompt, agentRequestStart)
	assert.Contains(t, prompt, skillRequestStart)
}

func TestRunTask_RequestsIgnoredWithoutPermission(t *testing.T) {
	output := agentRequestStart + "\nname: Rogue\n" + requestEnd
	h := newHarness(t, func(string, string) (*agent.Response, error) { return &agent.Response{Text: output}, nil }, WithTerminalAgents("backend"))

	res, err := h.orch.Run(context.Background(), TaskInput{AgentID: "backend", Description: "anything"})
	require.NoError(t, err)
	assert.Empty(t, res.CreatedAgents)
	_, ok := h.registry.Get("rogue")
	assert.False(t, ok)
}

func TestRunTask_LowSuccessAgentGetsEvolveSuggestion(t *testing.T) {
	h := newHarness(t, nil, WithTerminalAgents("flaky"))
	require.NoError(t, h.registry.Register(&models.Agent{
		ID:          "flaky",
		Name:        "Flaky",
		Role:        models.RoleSpecialist,
		Performance: models.Performance{TasksCompleted: 12, TasksSuccessful: 8},
	}))

	res, err := h.orch.Run(context.Background(), TaskInput{AgentID: "flaky", Description: "misc chores"})
	require.NoError(t, err)

	var ids []string
	for _, s := range res.Suggestions {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, "evolve-low-success")
	assert.NotContains(t, ids, "create-specialist")
	assert.Contains(t, h.exec.taskCalls()[0].Prompt, "evolve this agent")
}

func TestRunTask_RepeatedPatternSuggestsSkill(t *testing.T) {
	h := newHarness(t, nil, WithTerminalAgents("backend"))
	ctx := context.Background()

	for _, desc := range []string{"implement users endpoint", "implement orders endpoint", "implement refunds endpoint"} {
		_, err := h.orch.RunTask(ctx, "backend", desc, "")
		require.NoError(t, err)
	}

	calls := h.exec.taskCalls()
	require.Len(t, calls, 3)
	assert.NotContains(t, calls[1].Prompt, "no skill covering it")
	assert.Contains(t, calls[2].Prompt, "no skill covering it")

	rec, ok := patternByKey(h.orch.Patterns(), "implement-endpoint")
	require.True(t, ok)
	assert.Equal(t, 3, rec.Occurrences)
	assert.Equal(t, "api", rec.Domain)
}

func TestRunTask_ExistingSkillSuppressesSuggestion(t *testing.T) {
	h := newHarness(t, nil, WithTerminalAgents("backend"))
	ctx := context.Background()
	require.NoError(t, h.db.CreateSkill(ctx, &models.Skill{Name: "endpoint-recipe", Triggers: []string{"implement-endpoint"}}))

	for i := 0; i < 3; i++ {
		_, err := h.orch.RunTask(ctx, "backend", "implement users endpoint", "")
		require.NoError(t, err)
	}
	assert.NotContains(t, h.exec.taskCalls()[2].Prompt, "no skill covering it")
}

func TestRunTask_AutoApplyRulesAreReportedNotPrompted(t *testing.T) {
	engine := learning.NewRuleEngine(learning.Rule{
		ID:          "always-delegate",
		Description: "Hand routine work to support",
		Trigger:     learning.TriggerTask,
		Action:      learning.ActionDelegate,
		AutoApply:   true,
	})
	h := newHarness(t, nil, WithRuleEngine(engine), WithTerminalAgents("backend"))

	res, err := h.orch.Run(context.Background(), TaskInput{AgentID: "backend", Description: "rename a variable"})
	require.NoError(t, err)

	require.Len(t, res.AutoApplied, 1)
	assert.Equal(t, "always-delegate", res.AutoApplied[0].ID)
	assert.Empty(t, res.Suggestions)
	assert.NotContains(t, h.exec.taskCalls()[0].Prompt, "Hand routine work")
	assert.Contains(t, eventTypes(drainEvents(h.orch)), EventRuleAutoApplied)
}

func TestRunTask_AutoApplyEvolveCreatesChildOnce(t *testing.T) {
	engine := learning.NewRuleEngine(learning.Rule{
		ID:        "auto-evolve",
		Trigger:   learning.TriggerPerformance,
		Action:    learning.ActionEvolveAgent,
		AutoApply: true,
		Conditions: []learning.Condition{
			{Metric: learning.MetricSuccessRate, Operator: learning.OpLT, Threshold: 0.8},
			{Metric: learning.MetricTasksCompleted, Operator: learning.OpGTE, Threshold: 10},
		},
	})
	h := newHarness(t, nil, WithRuleEngine(engine), WithTerminalAgents("flaky"))
	require.NoError(t, h.registry.Register(&models.Agent{
		ID:           "flaky",
		Name:         "Flaky",
		Role:         models.RoleSpecialist,
		Instructions: "Be careful.",
		Performance:  models.Performance{TasksCompleted: 12, TasksSuccessful: 8},
	}))
	ctx := context.Background()

	res, err := h.orch.Run(ctx, TaskInput{AgentID: "flaky", Description: "misc chores"})
	require.NoError(t, err)
	assert.Equal(t, []string{"flaky-v2"}, res.EvolvedAgents)

	child, ok := h.registry.Get("flaky-v2")
	require.True(t, ok)
	assert.Equal(t, "flaky", child.ParentAgent)
	assert.Equal(t, "Be careful.", child.Instructions)
	assert.Contains(t, eventTypes(drainEvents(h.orch)), EventAgentEvolved)

	res, err = h.orch.Run(ctx, TaskInput{AgentID: "flaky", Description: "more chores"})
	require.NoError(t, err)
	assert.Empty(t, res.EvolvedAgents)
	_, ok = h.registry.Get("flaky-v3")
	assert.False(t, ok)
}

func TestEvolveAgent(t *testing.T) {
	h := newHarness(t, nil)

	child, err := h.orch.EvolveAgent("backend", "backend-strict", "Write the test first.")
	require.NoError(t, err)
	assert.Equal(t, "backend-strict", child.ID)
	assert.Equal(t, "backend", child.ParentAgent)
	assert.Equal(t, "Write the test first.", child.Instructions)

	child, err = h.orch.EvolveAgent("backend", "", "")
	require.NoError(t, err)
	assert.Equal(t, "backend-v2", child.ID)

	_, err = h.orch.EvolveAgent("ghost", "", "")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestRunTask_DelegationMetrics(t *testing.T) {
	h := newHarness(t, nil, WithTerminalAgents("pm"))
	for i := 0; i < 5; i++ {
		h.addTask(t, models.Task{Title: "chore"})
	}

	res, err := h.orch.Run(context.Background(), TaskInput{AgentID: "pm", Description: "groom the backlog"})
	require.NoError(t, err)

	var ids []string
	for _, s := range res.Suggestions {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, "suggest-delegation")
}

func TestRunTask_AfterClose(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.Close()
	_, err := h.orch.RunTask(context.Background(), "backend", "x", "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSuggestions(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.registry.Register(&models.Agent{
		ID:          "slow",
		Name:        "Slow",
		Performance: models.Performance{TasksCompleted: 10, TasksSuccessful: 5},
	}))

	var ids []string
	for _, s := range h.orch.Suggestions(context.Background(), "slow") {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, "evolve-low-success")
	assert.Contains(t, ids, "read-docs-before")
}

func patternByKey(records []learning.PatternRecord, key string) (learning.PatternRecord, bool) {
	for _, r := range records {
		if r.Key == key {
			return r, true
		}
	}
	return learning.PatternRecord{}, false
}
