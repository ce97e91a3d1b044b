package orchestrator

import (
	"time"

	"github.com/0xtechdean/ai-team-orchestrator/internal/learning"
)

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Executor runs composed prompts (a one-shot backend or the pool).
	Executor Executor
	// Tasks is the task board.
	Tasks TaskStore
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	registry       *Registry
	skills         SkillStore
	skillsDir      string
	memory         MemoryStore
	contextLoader  ContextLoader
	classifier     learning.Classifier
	patterns       *learning.PatternTracker
	rules          *learning.RuleEngine
	notifier       Notifier
	logger         *DebugLogger
	events         *EventEmitter
	collection     string
	planningAgent  string
	terminalAgents []string
	followUpDelay  time.Duration
	followUps      bool
	timeout        time.Duration
	errorLogSize   int
}

func defaultOptions() orchestratorOptions {
	return orchestratorOptions{
		collection:     "default",
		planningAgent:  "pm",
		terminalAgents: []string{"pm", "reviewer"},
		followUpDelay:  2 * time.Second,
		followUps:      true,
		errorLogSize:   DefaultErrorLogSize,
	}
}

// WithRegistry sets the worker identity registry. Defaults to an in-memory one.
func WithRegistry(r *Registry) Option {
	return func(o *orchestratorOptions) { o.registry = r }
}

// WithSkillStore enables skill requests and the has_skill metric.
func WithSkillStore(s SkillStore) Option {
	return func(o *orchestratorOptions) { o.skills = s }
}

// WithSkillsDir exports created skills as YAML files under dir.
func WithSkillsDir(dir string) Option {
	return func(o *orchestratorOptions) { o.skillsDir = dir }
}

// WithMemory sets the shared-memory note store.
func WithMemory(m MemoryStore) Option {
	return func(o *orchestratorOptions) { o.memory = m }
}

// WithContextLoader sets the project context source.
func WithContextLoader(l ContextLoader) Option {
	return func(o *orchestratorOptions) { o.contextLoader = l }
}

// WithClassifier replaces the default keyword/template classifier.
func WithClassifier(c learning.Classifier) Option {
	return func(o *orchestratorOptions) { o.classifier = c }
}

// WithPatternTracker shares a pattern tracker between orchestrators.
func WithPatternTracker(t *learning.PatternTracker) Option {
	return func(o *orchestratorOptions) { o.patterns = t }
}

// WithRuleEngine replaces the engine seeded with the built-in rules.
func WithRuleEngine(e *learning.RuleEngine) Option {
	return func(o *orchestratorOptions) { o.rules = e }
}

// WithNotifier sets the notification sink called after every task.
func WithNotifier(n Notifier) Option {
	return func(o *orchestratorOptions) { o.notifier = n }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithEventEmitter sets the event sink. Defaults to a 100-event buffer.
func WithEventEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.events = e }
}

// WithCollection sets the board collection the orchestrator works on.
func WithCollection(c string) Option {
	return func(o *orchestratorOptions) { o.collection = c }
}

// WithPlanningAgent sets the agent that plans and runs the standup.
func WithPlanningAgent(id string) Option {
	return func(o *orchestratorOptions) { o.planningAgent = id }
}

// WithTerminalAgents sets the agents whose tasks do not trigger planning.
func WithTerminalAgents(ids ...string) Option {
	return func(o *orchestratorOptions) { o.terminalAgents = ids }
}

// WithFollowUpDelay sets the delay before a planned follow-up task runs.
func WithFollowUpDelay(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.followUpDelay = d }
}

// WithFollowUps enables or disables scheduling the planner's next task.
func WithFollowUps(enabled bool) Option {
	return func(o *orchestratorOptions) { o.followUps = enabled }
}

// WithTimeout bounds each executor call. Zero leaves it to the executor.
func WithTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.timeout = d }
}

// WithErrorLogSize bounds the continuation error log.
func WithErrorLogSize(n int) Option {
	return func(o *orchestratorOptions) { o.errorLogSize = n }
}
