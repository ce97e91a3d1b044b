package orchestrator

import (
	"fmt"
	"strings"

	"github.com/0xtechdean/ai-team-orchestrator/internal/learning"
	"github.com/0xtechdean/ai-team-orchestrator/internal/memory"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// defaultInstructions stand in for agents missing from the registry.
const defaultInstructions = "You are a capable software engineer on an AI team. Complete the task below and report clearly what you did."

type promptInput struct {
	agentID        string
	agent          *models.Agent
	task           string
	taskContext    string
	project        string
	notes          []memory.Note
	siblings       []*models.Agent
	suggestions    []learning.TriggeredRule
	classification learning.Classification
	canCreateAgent bool
	canCreateSkill bool
}

// buildPrompt composes the full prompt sent to the executor.
func buildPrompt(in promptInput) string {
	var b strings.Builder

	b.WriteString("## Role\n")
	if in.agent != nil {
		fmt.Fprintf(&b, "You are %s (%s, id %s).\n", in.agent.Name, in.agent.Role, in.agent.ID)
		if in.agent.Instructions != "" {
			b.WriteString(in.agent.Instructions)
			b.WriteString("\n")
		}
		if len(in.agent.Capabilities) > 0 {
			fmt.Fprintf(&b, "Capabilities: %s\n", strings.Join(in.agent.Capabilities, ", "))
		}
	} else {
		fmt.Fprintf(&b, "Agent id: %s\n%s\n", in.agentID, defaultInstructions)
	}

	if in.project != "" {
		b.WriteString("\n## Project Context\n")
		b.WriteString(in.project)
		b.WriteString("\n")
	}

	if len(in.notes) > 0 {
		b.WriteString("\n## Relevant Memory\n")
		for _, n := range in.notes {
			fmt.Fprintf(&b, "- %s\n", oneLine(n.Text))
		}
	}

	if len(in.siblings) > 0 {
		b.WriteString("\n## Team\n")
		for _, s := range in.siblings {
			fmt.Fprintf(&b, "- %s (%s): %s\n", s.ID, s.Role, s.Description)
		}
	}

	if len(in.suggestions) > 0 {
		b.WriteString("\n## Suggestions\n")
		for _, s := range in.suggestions {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", s.Priority, s.Description, s.ID)
		}
	}

	b.WriteString("\n## Task\n")
	b.WriteString(in.task)
	b.WriteString("\n")
	if in.classification.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s", in.classification.Domain)
		if in.classification.Pattern != "" {
			fmt.Fprintf(&b, " (pattern %s)", in.classification.Pattern)
		}
		b.WriteString("\n")
	}

	if in.taskContext != "" {
		b.WriteString("\n## Additional Context\n")
		b.WriteString(in.taskContext)
		b.WriteString("\n")
	}

	if in.canCreateAgent || in.canCreateSkill {
		b.WriteString("\n## Structured Requests\n")
		if in.canCreateAgent {
			b.WriteString("To add a team member, include:\n")
			b.WriteString(agentRequestStart + "\nname: <name>\nrole: specialist|support|manager\ndescription: <one line>\ncapabilities: <comma separated>\ninstructions: <how the agent should work>\n" + requestEnd + "\n")
		}
		if in.canCreateSkill {
			b.WriteString("To record a reusable skill, include:\n")
			b.WriteString(skillRequestStart + "\nname: <name>\ndescription: <one line>\ncategory: <category>\ntriggers: <comma separated pattern keys>\ninstructions: <steps>\n" + requestEnd + "\n")
		}
	}

	b.WriteString("\n## Response Format\n")
	fmt.Fprintf(&b, "Finish with a \"## Learnings\" section listing up to %d short bullet points worth remembering.\n", MaxLearnings)

	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
