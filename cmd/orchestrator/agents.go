package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List worker identities with their track record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		for _, ag := range a.reg.List() {
			p := ag.Performance
			a.out.heading("%s (%s)", ag.ID, ag.Role)
			a.out.printf("  %s\n", ag.Description)
			if len(ag.Capabilities) > 0 {
				a.out.printf("  capabilities: %s\n", strings.Join(ag.Capabilities, ", "))
			}
			if ag.ParentAgent != "" {
				a.out.printf("  evolved from: %s\n", ag.ParentAgent)
			}
			a.out.printf("  tasks: %d  success: %.0f%%  avg: %s\n",
				p.TasksCompleted, p.SuccessRate()*100,
				time.Duration(p.AvgExecutionTime*float64(time.Millisecond)).Round(time.Millisecond))
			for _, s := range a.orch.Suggestions(ctx, ag.ID) {
				a.out.warn("%s: %s", s.ID, s.Description)
			}
		}
		return nil
	},
}

var evolveInstructions string

var agentsEvolveCmd = &cobra.Command{
	Use:   "evolve <agent> [child-id]",
	Short: "Derive a new identity from an agent",
	Long: `Register a child identity that copies the agent's role, capabilities and
tools and starts with a fresh track record. The child id defaults to the
next free <agent>-vN; --instructions replaces the inherited instructions.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		return evolveAgent(a.orch, a.out, args, evolveInstructions)
	},
}

// agentEvolver is the orchestrator surface evolveAgent needs.
type agentEvolver interface {
	EvolveAgent(parentID, childID, instructions string) (*models.Agent, error)
}

func evolveAgent(e agentEvolver, out *printer, args []string, instructions string) error {
	childID := ""
	if len(args) > 1 {
		childID = args[1]
	}
	child, err := e.EvolveAgent(args[0], childID, instructions)
	if err != nil {
		return fmt.Errorf("evolve %s: %w", args[0], err)
	}
	out.success("evolved %s into %s", args[0], child.ID)
	return nil
}

func init() {
	agentsEvolveCmd.Flags().StringVar(&evolveInstructions, "instructions", "", "Instructions for the new identity")
	agentsCmd.AddCommand(agentsEvolveCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the learning rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		for _, r := range a.orch.Rules() {
			auto := ""
			if r.AutoApply {
				auto = " auto"
			}
			a.out.heading("%s [%s%s]", r.ID, r.Priority, auto)
			a.out.printf("  %s\n  trigger: %s  action: %s\n", r.Description, r.Trigger, r.Action)
			for _, c := range r.Conditions {
				a.out.printf("  when %s %s %v\n", c.Metric, c.Operator, c.Threshold)
			}
		}
		return nil
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List recurring task patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		records := a.orch.Patterns()
		if len(records) == 0 {
			fmt.Println("No patterns recorded yet.")
			return nil
		}
		for _, rec := range records {
			domain := rec.Domain
			if domain == "" {
				domain = "-"
			}
			a.out.heading("%s (%s) x%d", rec.Key, domain, rec.Occurrences)
			for _, ex := range rec.Examples {
				a.out.printf("  - %s\n", truncateLine(ex, 100))
			}
		}
		return nil
	},
}
