package orchestrator

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0xtechdean/ai-team-orchestrator/internal/filelock"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

var (
	// ErrUnknownAgent is returned for operations on an unregistered agent id.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrAgentExists is returned when registering an id that is taken.
	ErrAgentExists = errors.New("agent already exists")
)

// Registry holds the worker identities. Performance updates are serialized
// by its mutex. When dir is set every change is written to <dir>/<id>.yaml.
type Registry struct {
	mu     sync.RWMutex
	dir    string
	agents map[string]*models.Agent
	now    func() time.Time
}

// NewRegistry creates an empty registry persisting to dir ("" keeps it in memory).
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:    dir,
		agents: make(map[string]*models.Agent),
		now:    time.Now,
	}
}

// Load reads every identity file in the registry directory. Unreadable
// files are logged and skipped.
func (r *Registry) Load() error {
	if r.dir == "" {
		return nil
	}
	paths, err := filepath.Glob(filepath.Join(r.dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("list agent files: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, path := range paths {
		var a models.Agent
		if err := filelock.ReadYAML(path, &a); err != nil {
			log.Printf("[registry] skipping %s: %v", path, err)
			continue
		}
		if a.ID == "" {
			a.ID = strings.TrimSuffix(filepath.Base(path), ".yaml")
		}
		r.agents[a.ID] = &a
	}
	return nil
}

// Seed registers each agent whose id is not yet present.
func (r *Registry) Seed(agents ...*models.Agent) error {
	for _, a := range agents {
		if _, ok := r.Get(a.ID); ok {
			continue
		}
		if err := r.Register(a); err != nil && !errors.Is(err, ErrAgentExists) {
			return err
		}
	}
	return nil
}

// Register adds a new identity and persists it.
func (r *Registry) Register(a *models.Agent) error {
	if a.ID == "" || a.Name == "" {
		return errors.New("agent id and name are required")
	}
	if a.Role == "" {
		a.Role = models.RoleSpecialist
	}
	if !a.Role.Valid() {
		return fmt.Errorf("agent %s: invalid role %q", a.ID, a.Role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAgentExists, a.ID)
	}
	stored := cloneAgent(a)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now()
	}
	r.agents[stored.ID] = stored
	return r.persistLocked(stored)
}

// Get returns a copy of the identity.
func (r *Registry) Get(id string) (*models.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return cloneAgent(a), true
}

// List returns copies of every identity sorted by id.
func (r *Registry) List() []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Siblings returns every identity except id.
func (r *Registry) Siblings(id string) []*models.Agent {
	all := r.List()
	out := all[:0]
	for _, a := range all {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

// RecordOutcome folds one finished task into the agent's performance.
func (r *Registry) RecordOutcome(id string, d time.Duration, success bool, learnings []string) (models.Performance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return models.Performance{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	a.Performance.Record(d, success, learnings, r.now())
	perf := clonePerformance(a.Performance)
	if err := r.persistLocked(a); err != nil {
		log.Printf("[registry] persist %s: %v", id, err)
	}
	return perf, nil
}

// AddImprovement appends an improvement note to the agent's performance.
func (r *Registry) AddImprovement(id, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	a.Performance.AddImprovement(note)
	return r.persistLocked(a)
}

// Evolve registers a child identity derived from parentID with new
// instructions. The child starts with a fresh performance record.
func (r *Registry) Evolve(parentID, childID, instructions string) (*models.Agent, error) {
	parent, ok := r.Get(parentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, parentID)
	}
	child := cloneAgent(parent)
	child.ID = childID
	child.Name = parent.Name + " (evolved)"
	child.ParentAgent = parent.ID
	child.Performance = models.Performance{}
	child.CreatedAt = time.Time{}
	if instructions != "" {
		child.Instructions = instructions
	}
	if err := r.Register(child); err != nil {
		return nil, err
	}
	note := fmt.Sprintf("evolved into %s", childID)
	if err := r.AddImprovement(parentID, note); err != nil {
		log.Printf("[registry] note evolution on %s: %v", parentID, err)
	}
	got, _ := r.Get(childID)
	return got, nil
}

// HasChild reports whether some identity was evolved from id.
func (r *Registry) HasChild(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.ParentAgent == id {
			return true
		}
	}
	return false
}

// NextEvolutionID returns the first unregistered "<id>-vN", N from 2.
func (r *Registry) NextEvolutionID(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-v%d", id, n)
		if _, taken := r.agents[candidate]; !taken {
			return candidate
		}
	}
}

// HasSpecialist reports whether a specialist declares domain as a capability.
func (r *Registry) HasSpecialist(domain string) bool {
	if domain == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.Role == models.RoleSpecialist && a.HasCapability(domain) {
			return true
		}
	}
	return false
}

// Delegates counts the specialist and support identities other than id.
func (r *Registry) Delegates(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.ID == id {
			continue
		}
		if a.Role == models.RoleSpecialist || a.Role == models.RoleSupport {
			n++
		}
	}
	return n
}

// Count returns the number of registered identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) persistLocked(a *models.Agent) error {
	if r.dir == "" {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("create agents dir: %w", err)
	}
	return filelock.WriteYAML(filepath.Join(r.dir, a.ID+".yaml"), a)
}

func cloneAgent(a *models.Agent) *models.Agent {
	c := *a
	c.Capabilities = append([]string(nil), a.Capabilities...)
	c.Tools = append([]string(nil), a.Tools...)
	c.Performance = clonePerformance(a.Performance)
	return &c
}

func clonePerformance(p models.Performance) models.Performance {
	p.Learnings = append([]string(nil), p.Learnings...)
	p.Improvements = append([]string(nil), p.Improvements...)
	return p
}

// DefaultAgents is the starting team written on first run.
func DefaultAgents() []*models.Agent {
	return []*models.Agent{
		{
			ID:           "pm",
			Name:         "Product Manager",
			Role:         models.RoleManager,
			Description:  "Plans the sprint, writes tasks and keeps the board moving",
			Capabilities: []string{"planning", "prioritization"},
			Tools:        []string{ToolCreateAgent, ToolCreateSkill},
			Instructions: "You are the product manager. Break goals into small tasks with clear owners and priorities. Keep the team unblocked.",
		},
		{
			ID:           "backend",
			Name:         "Backend Engineer",
			Role:         models.RoleSpecialist,
			Description:  "Builds APIs, services and data access",
			Capabilities: []string{"api", "backend", "database"},
			Instructions: "You are a backend engineer. Implement server-side changes with tests and explain what you changed.",
		},
		{
			ID:           "frontend",
			Name:         "Frontend Engineer",
			Role:         models.RoleSpecialist,
			Description:  "Builds user interfaces and components",
			Capabilities: []string{"frontend"},
			Instructions: "You are a frontend engineer. Build accessible UI components and keep styling consistent.",
		},
		{
			ID:           "reviewer",
			Name:         "Code Reviewer",
			Role:         models.RoleSupport,
			Description:  "Reviews changes for correctness, tests and security",
			Capabilities: []string{"testing", "review"},
			Instructions: "You are a code reviewer. Point out bugs, missing tests and risky changes. Be specific.",
		},
	}
}
