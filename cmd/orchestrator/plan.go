package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	planOutcome  string
	planFollowUp bool
)

var planCmd = &cobra.Command{
	Use:   "plan <agent> <completed task...>",
	Short: "Ask the planning agent what should happen next",
	Long: `Ask the planning agent to review the board after <agent> finished a task.

Backlog tasks the planner names move to ready, new tasks are added to the
board, and with --follow-ups the suggested next task is run.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{needBackend: true, followUps: planFollowUp})
		if err != nil {
			return err
		}
		defer a.close()
		a.logEvents()

		changed, err := a.orch.PlanNextTasks(ctx, strings.Join(args[1:], " "), args[0], planOutcome)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			a.out.printf("The planner made no board changes.\n")
		} else {
			a.out.heading("Board changes")
			a.out.taskTable(changed)
		}

		a.orch.Wait()
		reportContinuationErrors(a)
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planOutcome, "outcome", "success", "Outcome of the completed task (success or failure)")
	planCmd.Flags().BoolVar(&planFollowUp, "follow-ups", false, "Run the follow-up task the planner schedules")
}
