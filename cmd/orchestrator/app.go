package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/0xtechdean/ai-team-orchestrator/internal/agent"
	"github.com/0xtechdean/ai-team-orchestrator/internal/api"
	"github.com/0xtechdean/ai-team-orchestrator/internal/config"
	"github.com/0xtechdean/ai-team-orchestrator/internal/learning"
	"github.com/0xtechdean/ai-team-orchestrator/internal/memory"
	"github.com/0xtechdean/ai-team-orchestrator/internal/orchestrator"
	"github.com/0xtechdean/ai-team-orchestrator/internal/state"
	"github.com/0xtechdean/ai-team-orchestrator/internal/workspace"
)

// eventBuffer sizes the emitter shared by the pool and the orchestrator.
const eventBuffer = 256

// patternHistory is how many outcome notes are replayed into the pattern
// tracker at startup.
const patternHistory = 500

// app holds every collaborator a command needs. close releases them in
// reverse order of construction.
type app struct {
	cfg    *config.Config
	root   string
	db     *state.DB
	ws     *workspace.Workspace
	notes  *memory.Store
	reg    *orchestrator.Registry
	events *orchestrator.EventEmitter
	pool   *orchestrator.Pool
	orch   *orchestrator.Orchestrator
	debug  *orchestrator.DebugLogger
	out    *printer
}

// appOptions tune what openApp wires.
type appOptions struct {
	// followUps enables planner follow-up tasks.
	followUps bool
	// needBackend is false for commands that only read the board.
	needBackend bool
	// stderr sends console output to stderr, keeping stdout free.
	stderr bool
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads configuration and wires the store, workspace, registry and
// (when needed) the execution backend into an orchestrator.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	a := &app{cfg: cfg, root: root, out: newPrinter(os.Stdout, plain)}
	if opts.stderr {
		a.out = newPrinter(os.Stderr, true)
	}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	a.debug = orchestrator.OpenDebugLogger(a.path(cfg.Logging.DebugFile))
	orchestrator.SetDebugLogger(a.debug)
	if !verbose {
		log.SetOutput(a.debug)
	}

	a.db, err = state.OpenWithDriver(cfg.Storage.Driver, a.path(cfg.Storage.Path))
	if err != nil {
		return nil, err
	}
	if err := a.db.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	a.notes = memory.NewStore(a.db)

	a.ws, err = workspace.Open(root, config.StateDirName, cfg.Orchestrator.ProjectFiles)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	a.reg = orchestrator.NewRegistry(a.path(cfg.Orchestrator.AgentsDir))
	if err := a.reg.Load(); err != nil {
		return nil, err
	}
	if err := a.reg.Seed(orchestrator.DefaultAgents()...); err != nil {
		return nil, fmt.Errorf("seed agents: %w", err)
	}

	rules := learning.NewRuleEngine(learning.DefaultRules()...)
	extra, err := learning.LoadRulesFile(a.path(cfg.Orchestrator.RulesFile))
	if err != nil {
		return nil, err
	}
	for _, r := range extra {
		if err := rules.Register(r); err != nil {
			return nil, err
		}
	}

	patterns := learning.NewPatternTracker()
	if n, err := orchestrator.RestorePatterns(ctx, a.notes, patterns, patternHistory); err != nil {
		log.Printf("[cli] %v", err)
	} else {
		a.debug.Log("[cli] restored %d pattern sightings", n)
	}

	a.events = orchestrator.NewEventEmitter(eventBuffer)

	var exec orchestrator.Executor = unavailableExecutor{}
	if opts.needBackend {
		exec, err = a.buildExecutor(ctx)
		if err != nil {
			return nil, err
		}
	}

	coll := cfg.Orchestrator.DefaultCollection
	if collection != "" {
		coll = collection
	}

	a.orch, err = orchestrator.New(
		orchestrator.RequiredConfig{Executor: exec, Tasks: a.db},
		orchestrator.WithRegistry(a.reg),
		orchestrator.WithSkillStore(a.db),
		orchestrator.WithSkillsDir(a.path(cfg.Orchestrator.SkillsDir)),
		orchestrator.WithMemory(a.notes),
		orchestrator.WithContextLoader(a.ws),
		orchestrator.WithRuleEngine(rules),
		orchestrator.WithPatternTracker(patterns),
		orchestrator.WithNotifier(a.out.notify),
		orchestrator.WithLogger(a.debug),
		orchestrator.WithEventEmitter(a.events),
		orchestrator.WithCollection(coll),
		orchestrator.WithPlanningAgent(cfg.Orchestrator.PlanningAgent),
		orchestrator.WithTerminalAgents(cfg.Orchestrator.TerminalAgents...),
		orchestrator.WithFollowUpDelay(cfg.Orchestrator.FollowUpDelay),
		orchestrator.WithFollowUps(opts.followUps),
		orchestrator.WithTimeout(cfg.Backend.Timeout),
		orchestrator.WithErrorLogSize(cfg.Orchestrator.ErrorLogSize),
	)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// buildExecutor creates the executor for backend.mode.
func (a *app) buildExecutor(ctx context.Context) (orchestrator.Executor, error) {
	cfg := a.cfg
	invoke := agent.InvokeOptions{
		Model:           cfg.Backend.Model,
		MaxOutputTokens: cfg.Backend.MaxOutputTokens,
		Timeout:         cfg.Backend.Timeout,
		WorkDir:         a.root,
	}

	switch cfg.Backend.Mode {
	case config.BackendAPI:
		if err := config.RequireCredentials(cfg); err != nil {
			return nil, err
		}
		key, _ := config.ResolveAPIKey(cfg)
		client, err := api.NewClient(api.ClientConfig{
			Model:         anthropic.Model(cfg.Backend.Model),
			APIKey:        key,
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err != nil {
			return nil, fmt.Errorf("create API client: %w", err)
		}
		return orchestrator.NewBackendExecutor(agent.NewAPIBackend(client, ""), invoke), nil

	case config.BackendPool:
		command, args := cfg.SessionCommand()
		a.pool = orchestrator.NewPool(orchestrator.PoolConfig{
			Size:             cfg.Pool.Size,
			Spawner:          &agent.ProcessSpawner{Command: command, Args: args, Dir: a.root},
			ReadyTimeout:     cfg.Pool.ReadyTimeout,
			RespawnBackoff:   cfg.Pool.RespawnBackoff,
			CompletionMarker: cfg.Pool.CompletionMarker,
			MinOutputLength:  cfg.Pool.MinOutputLength,
			DefaultTimeout:   cfg.Backend.Timeout,
			Events:           a.events,
		})
		if err := a.pool.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("start session pool: %w", err)
		}
		return a.pool, nil

	default:
		return orchestrator.NewBackendExecutor(agent.NewCLIBackend(cfg.Backend.ClaudePath, cfg.Backend.Model), invoke), nil
	}
}

// path resolves p against the project root.
func (a *app) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.root, p)
}

// drainEvents consumes orchestrator events until the emitter closes.
// Without a consumer every emit would wait out the send timeout.
func (a *app) drainEvents(handle func(orchestrator.OrchestratorEvent)) {
	go func() {
		for e := range a.events.Events() {
			if handle != nil {
				handle(e)
			}
		}
	}()
}

// logEvents routes events to the debug log, echoing errors to the console.
func (a *app) logEvents() {
	a.drainEvents(func(e orchestrator.OrchestratorEvent) {
		a.debug.Log("[event] %s agent=%s task=%s %s", e.Type, e.AgentID, e.TaskID, e.Message)
		if e.Error != nil {
			a.out.warn("%s: %v", e.Type, e.Error)
		}
	})
}

func (a *app) close() {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.pool != nil {
		a.pool.Shutdown()
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.ws != nil {
		a.ws.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.debug != nil {
		log.SetOutput(os.Stderr)
		orchestrator.SetDebugLogger(nil)
		a.debug.Close()
	}
}

var errNoBackend = errors.New("this command does not run agents")

// unavailableExecutor backs commands that never execute prompts.
type unavailableExecutor struct{}

func (unavailableExecutor) Execute(context.Context, string, string, time.Duration) (*agent.Response, error) {
	return nil, errNoBackend
}
