package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/0xtechdean/ai-team-orchestrator/internal/orchestrator"
)

var (
	runContext   string
	runFollowUps bool
)

var runCmd = &cobra.Command{
	Use:   "run <agent> <task...>",
	Short: "Run one task as a worker identity",
	Long: `Run a single task as the named agent and print its output.

The task is classified, the learning rules are evaluated, and the prompt is
composed from the agent's identity, project context, shared memory and the
team roster. Unless the agent is terminal, the planning agent reviews the
board afterwards; run waits for that before exiting.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{needBackend: true, followUps: runFollowUps})
		if err != nil {
			return err
		}
		defer a.close()
		a.logEvents()

		agentID := args[0]
		task := strings.Join(args[1:], " ")
		res, err := a.orch.Run(ctx, orchestrator.TaskInput{AgentID: agentID, Description: task, Context: runContext})
		if err != nil {
			return err
		}

		fmt.Println(res.Output)
		if len(res.Suggestions) > 0 {
			a.out.heading("\nSuggestions")
			for _, s := range res.Suggestions {
				a.out.printf("  [%s] %s (%s)\n", s.Priority, s.Description, s.ID)
			}
		}
		for _, s := range res.AutoApplied {
			a.out.warn("auto-apply rule %s triggered: %s", s.ID, s.Reason)
		}
		for _, id := range res.CreatedAgents {
			a.out.success("created agent %s", id)
		}
		for _, id := range res.EvolvedAgents {
			a.out.success("evolved %s into %s", res.AgentID, id)
		}
		for _, name := range res.CreatedSkills {
			a.out.success("created skill %s", name)
		}

		a.orch.Wait()
		reportContinuationErrors(a)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runContext, "context", "", "Extra context appended to the prompt")
	runCmd.Flags().BoolVar(&runFollowUps, "follow-ups", false, "Run follow-up tasks the planner schedules")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func reportContinuationErrors(a *app) {
	for _, e := range a.orch.Errors() {
		a.out.warn("%s after %s failed: %s", e.Stage, e.AgentID, e.Message)
	}
}
