package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/0xtechdean/ai-team-orchestrator/internal/memory"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// Plan is the planner's JSON answer.
type Plan struct {
	Analysis     string        `json:"analysis"`
	ReadyTaskIDs []string      `json:"readyTaskIds"`
	NewTasks     []PlannedTask `json:"newTasks"`
	NextWorker   string        `json:"nextWorker"`
	NextTaskText string        `json:"nextTaskText"`
}

// PlannedTask is one task the planner wants on the board.
type PlannedTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	Priority    string `json:"priority"`
}

// PlanNextTasks asks the planning agent what should happen after
// completedTask and applies the answer to the board: listed tasks move to
// ready, new tasks are created, and a follow-up task may be scheduled. An
// unparseable answer yields no tasks and no error.
func (o *Orchestrator) PlanNextTasks(ctx context.Context, completedTask, agentID, outcome string) ([]*models.Task, error) {
	board, err := o.tasks.ListTasks(ctx, o.collection, nil)
	if err != nil {
		log.Printf("[planner] list tasks: %v", err)
		board = nil
	}
	notes := o.searchMemory(ctx, "", "")

	prompt := buildPlanPrompt(completedTask, agentID, outcome, board, notes, o.registry.List())
	resp, err := o.executor.Execute(ctx, o.planningAgent, prompt, o.timeout)
	if err != nil {
		return nil, fmt.Errorf("plan next tasks: %w", err)
	}

	plan, ok := ParsePlan(resp.Text)
	if !ok {
		log.Printf("[planner] no usable plan in %d bytes of output", len(resp.Text))
		return nil, nil
	}

	var changed []*models.Task
	for _, id := range plan.ReadyTaskIDs {
		t, err := o.readyTask(ctx, id)
		if err != nil {
			log.Printf("[planner] mark %s ready: %v", id, err)
			continue
		}
		if t != nil {
			changed = append(changed, t)
		}
	}

	for _, nt := range plan.NewTasks {
		t, err := o.createPlannedTask(ctx, nt)
		if err != nil {
			log.Printf("[planner] create task %q: %v", nt.Title, err)
			continue
		}
		changed = append(changed, t)
	}

	o.logger.Log("[planner] after %s (%s): %d tasks changed; %s", agentID, outcome, len(changed), truncate(oneLine(plan.Analysis), 200))
	o.events.Emit(OrchestratorEvent{Type: EventPlanCreated, AgentID: agentID, Message: fmt.Sprintf("%d tasks updated", len(changed))})

	if plan.NextWorker != "" && plan.NextTaskText != "" {
		if o.followUps {
			o.scheduleFollowUp(plan.NextWorker, plan.NextTaskText)
		} else {
			o.logger.Log("[planner] follow-up for %s skipped (disabled)", plan.NextWorker)
		}
	}
	return changed, nil
}

// readyTask moves a backlog task to ready. Tasks already ready are left
// alone; other states are reported as errors.
func (o *Orchestrator) readyTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := o.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}
	switch t.Status {
	case models.TaskStatusReady:
		return nil, nil
	case models.TaskStatusBacklog:
		return o.tasks.UpdateTask(ctx, id, models.StatusPatch(models.TaskStatusReady))
	default:
		return nil, fmt.Errorf("task %s is %s", id, t.Status)
	}
}

// createPlannedTask adds a planned task: ready when it has an owner,
// backlog otherwise.
func (o *Orchestrator) createPlannedTask(ctx context.Context, nt PlannedTask) (*models.Task, error) {
	if strings.TrimSpace(nt.Title) == "" {
		return nil, fmt.Errorf("missing title")
	}
	priority := models.Priority(strings.ToUpper(strings.TrimSpace(nt.Priority)))
	if !priority.Valid() {
		priority = ""
	}
	status := models.TaskStatusBacklog
	if nt.Owner != "" {
		status = models.TaskStatusReady
	}
	return o.tasks.CreateTask(ctx, &models.Task{
		Collection:  o.collection,
		Title:       strings.TrimSpace(nt.Title),
		Description: nt.Description,
		Owner:       nt.Owner,
		Priority:    priority,
		Status:      status,
	})
}

// ParsePlan decodes the JSON object spanning the first '{' to the last '}'.
func ParsePlan(output string) (*Plan, bool) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var p Plan
	if err := json.Unmarshal([]byte(output[start:end+1]), &p); err != nil {
		return nil, false
	}
	return &p, true
}

func buildPlanPrompt(completedTask, agentID, outcome string, board []*models.Task, notes []memory.Note, agents []*models.Agent) string {
	var b strings.Builder
	b.WriteString("You are planning the next steps for an AI engineering team.\n\n")
	fmt.Fprintf(&b, "## Just Finished\nAgent %s finished with outcome %s:\n%s\n", agentID, outcome, completedTask)

	b.WriteString("\n## Board\n")
	if len(board) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, t := range board {
		owner := t.Owner
		if owner == "" {
			owner = "unassigned"
		}
		priority := string(t.Priority)
		if priority == "" {
			priority = "-"
		}
		fmt.Fprintf(&b, "- %s [%s] %s %s: %s\n", t.ID, t.Status, priority, owner, t.Title)
	}

	if len(notes) > 0 {
		b.WriteString("\n## Recent Memory\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", oneLine(n.Text))
		}
	}

	b.WriteString("\n## Team\n")
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s (%s): %s\n", a.ID, a.Role, a.Description)
	}

	b.WriteString(`
## Answer
Reply with a single JSON object:
{"analysis": "...", "readyTaskIds": ["<backlog task ids to start>"],
 "newTasks": [{"title": "...", "description": "...", "owner": "<agent id or empty>", "priority": "P0|P1|P2"}],
 "nextWorker": "<agent id to run next or empty>", "nextTaskText": "<what they should do>"}
`)
	return b.String()
}
