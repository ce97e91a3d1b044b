package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/0xtechdean/ai-team-orchestrator/internal/filelock"
	"github.com/0xtechdean/ai-team-orchestrator/internal/learning"
	"github.com/0xtechdean/ai-team-orchestrator/internal/memory"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// memorySearchLimit is how many notes RunTask pulls into the prompt.
const memorySearchLimit = 5

// Metric names computed per task in addition to the agent-derived ones.
const (
	MetricDomain             = "domain"
	MetricDomainTaskCount    = "domain_task_count"
	MetricPatternCount       = "pattern_count"
	MetricHasSpecialist      = "has_specialist"
	MetricHasSkill           = "has_skill"
	MetricPendingTasks       = "pending_tasks"
	MetricAvailableDelegates = "available_delegates"
)

// ErrClosed is returned by RunTask after Close.
var ErrClosed = errors.New("orchestrator is closed")

// RunResult is everything RunTask learned about one task.
type RunResult struct {
	AgentID        string
	Output         string
	Success        bool
	Classification learning.Classification
	// Suggestions were inlined into the prompt.
	Suggestions []learning.TriggeredRule
	// AutoApplied rules triggered with AutoApply set; they are reported, not prompted.
	AutoApplied   []learning.TriggeredRule
	Learnings     []string
	CreatedAgents []string
	CreatedSkills []string
	// EvolvedAgents are children created by auto-apply evolve rules.
	EvolvedAgents []string
	Duration      time.Duration
}

// TaskInput names the work for Run.
type TaskInput struct {
	AgentID     string
	Description string
	Context     string
	// TaskID links events to a board task, if any.
	TaskID string
}

// Orchestrator runs tasks for worker identities, learns from their outcomes
// and plans follow-up work on the board.
type Orchestrator struct {
	executor      Executor
	tasks         TaskStore
	registry      *Registry
	skills        SkillStore
	skillsDir     string
	memory        MemoryStore
	contextLoader ContextLoader
	classifier    learning.Classifier
	patterns      *learning.PatternTracker
	rules         *learning.RuleEngine
	notifier      Notifier
	logger        *DebugLogger
	events        *EventEmitter
	errors        *ErrorLog

	collection     string
	planningAgent  string
	terminalAgents map[string]bool
	followUpDelay  time.Duration
	followUps      bool
	timeout        time.Duration

	// bgCtx outlives RunTask callers; continuations run under it.
	bgCtx    context.Context
	bgCancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	timers   map[*time.Timer]struct{}
	ownsEvts bool
}

// New creates an Orchestrator.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Executor == nil {
		return nil, errors.New("orchestrator: executor is required")
	}
	if req.Tasks == nil {
		return nil, errors.New("orchestrator: task store is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	orch := &Orchestrator{
		executor:      req.Executor,
		tasks:         req.Tasks,
		registry:      o.registry,
		skills:        o.skills,
		skillsDir:     o.skillsDir,
		memory:        o.memory,
		contextLoader: o.contextLoader,
		classifier:    o.classifier,
		patterns:      o.patterns,
		rules:         o.rules,
		notifier:      o.notifier,
		logger:        o.logger,
		events:        o.events,
		errors:        NewErrorLog(o.errorLogSize),
		collection:    o.collection,
		planningAgent: o.planningAgent,
		followUpDelay: o.followUpDelay,
		followUps:     o.followUps,
		timeout:       o.timeout,
		timers:        make(map[*time.Timer]struct{}),
	}
	if orch.registry == nil {
		orch.registry = NewRegistry("")
	}
	if orch.classifier == nil {
		orch.classifier = learning.NewDefaultClassifier()
	}
	if orch.patterns == nil {
		orch.patterns = learning.NewPatternTracker()
	}
	if orch.rules == nil {
		orch.rules = learning.NewRuleEngine(learning.DefaultRules()...)
	}
	if orch.logger == nil {
		orch.logger = NopLogger()
	}
	if orch.events == nil {
		orch.events = NewEventEmitter(100)
		orch.ownsEvts = true
	}
	if orch.collection == "" {
		orch.collection = models.DefaultCollection
	}
	orch.terminalAgents = make(map[string]bool, len(o.terminalAgents))
	for _, id := range o.terminalAgents {
		orch.terminalAgents[id] = true
	}
	orch.bgCtx, orch.bgCancel = context.WithCancel(context.Background())

	return orch, nil
}

// RunTask runs one task for agentID and returns the backend output.
func (o *Orchestrator) RunTask(ctx context.Context, agentID, description, taskContext string) (string, error) {
	res, err := o.Run(ctx, TaskInput{AgentID: agentID, Description: description, Context: taskContext})
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// Run is RunTask with the full result.
func (o *Orchestrator) Run(ctx context.Context, in TaskInput) (*RunResult, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}

	a, known := o.registry.Get(in.AgentID)
	if !known {
		log.Printf("[orchestrator] unknown agent %q, using default instructions", in.AgentID)
	}

	cls := o.classifier.Classify(in.Description)
	var patternCount int
	if cls.Pattern != "" {
		rec := o.patterns.Track(cls.Pattern, cls.Domain, in.Description)
		patternCount = rec.Occurrences
	}

	metrics := o.taskMetrics(ctx, in.AgentID, cls, patternCount)
	triggered := o.rules.Evaluate(learning.EvalContext{Agent: a, Metrics: metrics})

	res := &RunResult{AgentID: in.AgentID, Classification: cls}
	for _, t := range triggered {
		if t.AutoApply {
			res.AutoApplied = append(res.AutoApplied, t)
			o.events.Emit(OrchestratorEvent{Type: EventRuleAutoApplied, AgentID: in.AgentID, TaskID: in.TaskID, RuleID: t.ID, Message: t.Reason})
			continue
		}
		res.Suggestions = append(res.Suggestions, t)
		o.events.Emit(OrchestratorEvent{Type: EventRuleSuggested, AgentID: in.AgentID, TaskID: in.TaskID, RuleID: t.ID, Message: t.Reason})
	}

	canAgent, canSkill := permissions(a)
	prompt := buildPrompt(promptInput{
		agentID:        in.AgentID,
		agent:          a,
		task:           in.Description,
		taskContext:    in.Context,
		project:        o.projectContext(),
		notes:          o.searchMemory(ctx, in.Description, in.AgentID),
		siblings:       o.registry.Siblings(in.AgentID),
		suggestions:    res.Suggestions,
		classification: cls,
		canCreateAgent: canAgent,
		canCreateSkill: canSkill,
	})

	o.logger.Log("[orchestrator] run %s: domain=%q pattern=%q suggestions=%d auto=%d prompt=%dB",
		in.AgentID, cls.Domain, cls.Pattern, len(res.Suggestions), len(res.AutoApplied), len(prompt))
	o.events.Emit(OrchestratorEvent{Type: EventTaskStarted, AgentID: in.AgentID, TaskID: in.TaskID, TaskTitle: in.Description})

	start := time.Now()
	resp, err := o.executor.Execute(ctx, in.AgentID, prompt, o.timeout)
	res.Duration = time.Since(start)
	if err != nil {
		o.events.Emit(OrchestratorEvent{Type: EventTaskFailed, AgentID: in.AgentID, TaskID: in.TaskID, TaskTitle: in.Description, Error: err, Duration: res.Duration})
		o.logger.Log("[orchestrator] run %s failed after %s: %v", in.AgentID, res.Duration, err)
		return nil, fmt.Errorf("run task for %s: %w", in.AgentID, err)
	}
	res.Output = resp.Text

	if canAgent || canSkill {
		o.applyRequests(ctx, in, res, canAgent, canSkill)
	}

	res.Learnings = ExtractLearnings(res.Output)
	res.Success = responseSucceeded(resp)
	o.record(ctx, in, res)
	if known {
		o.applyEvolution(in, res)
	}

	evt := OrchestratorEvent{Type: EventTaskCompleted, AgentID: in.AgentID, TaskID: in.TaskID, TaskTitle: in.Description, Duration: res.Duration}
	if !res.Success {
		evt.Type = EventTaskFailed
		evt.Message = "output reported a failure"
	}
	o.events.Emit(evt)

	if !o.terminalAgents[in.AgentID] {
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		o.goContinuation(StagePlan, in.AgentID, in.Description, func(ctx context.Context) error {
			_, err := o.PlanNextTasks(ctx, in.Description, in.AgentID, outcome)
			return err
		})
	}

	return res, nil
}

// applyEvolution acts on triggered auto-apply evolve rules. An agent that
// already has an evolved child is left alone.
func (o *Orchestrator) applyEvolution(in TaskInput, res *RunResult) {
	for _, t := range res.AutoApplied {
		if t.Action != learning.ActionEvolveAgent {
			continue
		}
		if o.registry.HasChild(in.AgentID) {
			o.logger.Log("[orchestrator] %s already evolved, rule %s skipped", in.AgentID, t.ID)
			return
		}
		child, err := o.EvolveAgent(in.AgentID, "", "")
		if err != nil {
			log.Printf("[orchestrator] evolve %s: %v", in.AgentID, err)
			return
		}
		res.EvolvedAgents = append(res.EvolvedAgents, child.ID)
		return
	}
}

// EvolveAgent derives a child identity from parentID. An empty childID
// picks the next free "<parent>-vN". Empty instructions keep the parent's.
func (o *Orchestrator) EvolveAgent(parentID, childID, instructions string) (*models.Agent, error) {
	if childID == "" {
		childID = o.registry.NextEvolutionID(parentID)
	}
	child, err := o.registry.Evolve(parentID, childID, instructions)
	if err != nil {
		return nil, err
	}
	log.Printf("[orchestrator] evolved %s into %s", parentID, child.ID)
	o.events.Emit(OrchestratorEvent{Type: EventAgentEvolved, AgentID: parentID, Message: child.ID})
	return child, nil
}

// permissions reports whether a may create agents and skills.
func permissions(a *models.Agent) (agent, skill bool) {
	if a == nil {
		return false, false
	}
	if a.Role == models.RoleManager {
		return true, true
	}
	return a.HasTool(ToolCreateAgent), a.HasTool(ToolCreateSkill)
}

// taskMetrics computes the per-task rule inputs.
func (o *Orchestrator) taskMetrics(ctx context.Context, agentID string, cls learning.Classification, patternCount int) map[string]any {
	domainCount := 0
	if cls.Domain != "" {
		domainCount = o.patterns.DomainCount(cls.Domain)
	}
	return map[string]any{
		MetricDomain:             cls.Domain,
		MetricDomainTaskCount:    domainCount,
		MetricPatternCount:       patternCount,
		MetricHasSpecialist:      o.registry.HasSpecialist(cls.Domain),
		MetricHasSkill:           o.hasSkill(ctx, cls.Pattern),
		MetricPendingTasks:       o.pendingTasks(ctx),
		MetricAvailableDelegates: o.registry.Delegates(agentID),
	}
}

func (o *Orchestrator) hasSkill(ctx context.Context, pattern string) bool {
	if o.skills == nil || pattern == "" {
		return false
	}
	if s, err := o.skills.GetSkill(ctx, pattern); err == nil && s != nil {
		return true
	}
	skills, err := o.skills.ListSkills(ctx)
	if err != nil {
		log.Printf("[orchestrator] list skills: %v", err)
		return false
	}
	for _, s := range skills {
		for _, t := range s.Triggers {
			if t == pattern {
				return true
			}
		}
	}
	return false
}

// pendingTasks counts ready and backlog tasks in the collection.
func (o *Orchestrator) pendingTasks(ctx context.Context) int {
	tasks, err := o.tasks.ListTasks(ctx, o.collection, nil)
	if err != nil {
		log.Printf("[orchestrator] list tasks: %v", err)
		return 0
	}
	n := 0
	for _, t := range tasks {
		if t.Status == models.TaskStatusReady || t.Status == models.TaskStatusBacklog {
			n++
		}
	}
	return n
}

func (o *Orchestrator) projectContext() string {
	if o.contextLoader == nil {
		return ""
	}
	return o.contextLoader.Load()
}

func (o *Orchestrator) searchMemory(ctx context.Context, query, scope string) []memory.Note {
	if o.memory == nil {
		return nil
	}
	notes, err := o.memory.Search(ctx, query, scope, memorySearchLimit)
	if err != nil {
		log.Printf("[orchestrator] memory search: %v", err)
		return nil
	}
	return notes
}

// applyRequests creates the agents and skills requested in the output.
// Malformed requests are logged and ignored.
func (o *Orchestrator) applyRequests(ctx context.Context, in TaskInput, res *RunResult, canAgent, canSkill bool) {
	reqs, errs := ParseRequests(res.Output)
	for _, err := range errs {
		log.Printf("[orchestrator] %s: ignoring malformed request: %v", in.AgentID, err)
	}

	for _, req := range reqs {
		switch req.Kind {
		case RequestAgent:
			if !canAgent {
				log.Printf("[orchestrator] %s may not create agents; request ignored", in.AgentID)
				continue
			}
			a, err := AgentFromRequest(req)
			if err != nil {
				log.Printf("[orchestrator] %s: %v", in.AgentID, err)
				continue
			}
			if err := o.registry.Register(a); err != nil {
				log.Printf("[orchestrator] register agent %s: %v", a.ID, err)
				continue
			}
			res.CreatedAgents = append(res.CreatedAgents, a.ID)
			o.events.Emit(OrchestratorEvent{Type: EventAgentCreated, AgentID: a.ID, TaskID: in.TaskID, Message: fmt.Sprintf("created by %s", in.AgentID)})

		case RequestSkill:
			if !canSkill || o.skills == nil {
				log.Printf("[orchestrator] %s may not create skills; request ignored", in.AgentID)
				continue
			}
			s, err := SkillFromRequest(req, in.AgentID)
			if err != nil {
				log.Printf("[orchestrator] %s: %v", in.AgentID, err)
				continue
			}
			if err := o.skills.CreateSkill(ctx, s); err != nil {
				log.Printf("[orchestrator] create skill %s: %v", s.Name, err)
				continue
			}
			if o.skillsDir != "" {
				if err := filelock.WriteYAML(filepath.Join(o.skillsDir, s.Name+".yaml"), s); err != nil {
					log.Printf("[orchestrator] export skill %s: %v", s.Name, err)
				}
			}
			res.CreatedSkills = append(res.CreatedSkills, s.Name)
			o.events.Emit(OrchestratorEvent{Type: EventSkillCreated, AgentID: in.AgentID, TaskID: in.TaskID, Message: s.Name})
		}
	}
}

// record stores the outcome: performance, memory note and notification.
func (o *Orchestrator) record(ctx context.Context, in TaskInput, res *RunResult) {
	if _, err := o.registry.RecordOutcome(in.AgentID, res.Duration, res.Success, res.Learnings); err != nil {
		o.logger.Log("[orchestrator] performance not recorded: %v", err)
	}

	if o.memory != nil {
		status := "completed"
		if !res.Success {
			status = "failed"
		}
		note := fmt.Sprintf("%s %s: %s => %s", in.AgentID, status, truncate(oneLine(in.Description), 120), truncate(oneLine(res.Output), 280))
		meta := map[string]string{
			"kind":    noteKindOutcome,
			"success": strconv.FormatBool(res.Success),
			"domain":  res.Classification.Domain,
			"pattern": res.Classification.Pattern,
			"task":    truncate(oneLine(in.Description), 200),
		}
		if in.TaskID != "" {
			meta["task_id"] = in.TaskID
		}
		if _, err := o.memory.Add(ctx, note, in.AgentID, meta); err != nil {
			log.Printf("[orchestrator] memory add: %v", err)
		}
	}

	if o.notifier != nil {
		o.notifier(Notification{
			AgentID:  in.AgentID,
			Task:     in.Description,
			Output:   res.Output,
			Success:  res.Success,
			Duration: res.Duration,
		})
	}
}

// goContinuation runs fn in the background. Its error lands in the error
// log and the event stream, never with the caller.
func (o *Orchestrator) goContinuation(stage, agentID, task string, fn func(ctx context.Context) error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		if err := fn(o.bgCtx); err != nil {
			o.recordContinuation(stage, agentID, task, err)
		}
	}()
}

// scheduleFollowUp runs RunTask for agentID after the follow-up delay.
func (o *Orchestrator) scheduleFollowUp(agentID, task string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	o.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(o.followUpDelay, func() {
		defer o.wg.Done()
		o.mu.Lock()
		delete(o.timers, t)
		o.mu.Unlock()

		if _, err := o.RunTask(o.bgCtx, agentID, task, ""); err != nil {
			o.recordContinuation(StageFollowUp, agentID, task, err)
		}
	})
	o.timers[t] = struct{}{}
	o.events.Emit(OrchestratorEvent{Type: EventFollowUpScheduled, AgentID: agentID, TaskTitle: task, Message: fmt.Sprintf("in %s", o.followUpDelay)})
}

func (o *Orchestrator) recordContinuation(stage, agentID, task string, err error) {
	log.Printf("[orchestrator] %s continuation for %s failed: %v", stage, agentID, err)
	o.errors.Add(ContinuationError{Stage: stage, AgentID: agentID, Task: task, Err: err})
	o.events.Emit(OrchestratorEvent{Type: EventContinuationFailed, AgentID: agentID, TaskTitle: task, Message: stage, Error: err})
}

// Wait blocks until running and scheduled continuations have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels scheduled follow-ups, cancels running continuations and
// waits for them. The event channel is closed if the orchestrator created it.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for t := range o.timers {
		if t.Stop() {
			o.wg.Done()
		}
		delete(o.timers, t)
	}
	o.mu.Unlock()

	o.bgCancel()
	o.wg.Wait()
	if o.ownsEvts {
		o.events.Close()
	}
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Rules returns the registered rules in registration order.
func (o *Orchestrator) Rules() []learning.Rule {
	return o.rules.List()
}

// RuleEngine exposes the engine for registering extra rules.
func (o *Orchestrator) RuleEngine() *learning.RuleEngine {
	return o.rules
}

// Patterns returns the tracked patterns sorted by key.
func (o *Orchestrator) Patterns() []learning.PatternRecord {
	return o.patterns.List()
}

// Registry returns the worker identity registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Performance returns the agent's performance record.
func (o *Orchestrator) Performance(agentID string) (models.Performance, bool) {
	a, ok := o.registry.Get(agentID)
	if !ok {
		return models.Performance{}, false
	}
	return a.Performance, true
}

// Suggestions evaluates the rules for the agent's current standing,
// without any task-specific metrics.
func (o *Orchestrator) Suggestions(ctx context.Context, agentID string) []learning.TriggeredRule {
	a, _ := o.registry.Get(agentID)
	return o.rules.Evaluate(learning.EvalContext{
		Agent: a,
		Metrics: map[string]any{
			MetricPendingTasks:       o.pendingTasks(ctx),
			MetricAvailableDelegates: o.registry.Delegates(agentID),
		},
	})
}

// Errors returns the continuation failures, oldest first.
func (o *Orchestrator) Errors() []ContinuationError {
	return o.errors.List()
}

// Events returns a read-only channel of orchestrator events.
func (o *Orchestrator) Events() <-chan OrchestratorEvent {
	return o.events.Events()
}

// Collection returns the board collection the orchestrator works on.
func (o *Orchestrator) Collection() string {
	return o.collection
}
