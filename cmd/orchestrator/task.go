package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xtechdean/ai-team-orchestrator/internal/tui"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

var (
	taskOwner       string
	taskPriority    string
	taskDescription string
	taskReady       bool
	taskStatus      string
	taskBoard       bool
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the task board",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title...>",
	Short: "Add a task to the board",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		priority, err := parsePriority(taskPriority)
		if err != nil {
			return err
		}
		status := models.TaskStatusBacklog
		if taskReady {
			status = models.TaskStatusReady
		}
		t, err := a.db.CreateTask(ctx, &models.Task{
			Collection:  a.orch.Collection(),
			Title:       strings.Join(args, " "),
			Description: taskDescription,
			Owner:       taskOwner,
			Priority:    priority,
			Status:      status,
		})
		if err != nil {
			return err
		}
		a.out.success("added %s (%s)", t.ID, t.Status)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks on the board",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		var filter *models.TaskStatus
		if taskStatus != "" {
			s := models.TaskStatus(taskStatus)
			if !s.Valid() {
				return fmt.Errorf("invalid status %q", taskStatus)
			}
			filter = &s
		}
		tasks, err := a.db.ListTasks(ctx, a.orch.Collection(), filter)
		if err != nil {
			return err
		}
		if taskBoard {
			fmt.Println(tui.RenderBoard(tasks, 0))
			return nil
		}
		a.out.taskTable(tasks)
		return nil
	},
}

var taskReadyCmd = &cobra.Command{
	Use:   "ready <id>",
	Short: "Move a backlog task to ready",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		patch := models.StatusPatch(models.TaskStatusReady)
		if taskOwner != "" {
			patch.Owner = &taskOwner
		}
		t, err := a.db.UpdateTask(ctx, args[0], patch)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("task %s not found", args[0])
		}
		a.out.success("%s is ready", t.ID)
		return nil
	},
}

var taskRecoverCmd = &cobra.Command{
	Use:   "recover <id>",
	Short: "Return a task stuck in progress to the backlog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		t, err := a.orch.RecoverTask(ctx, args[0], errors.New("recovered manually"))
		if err != nil {
			return err
		}
		a.out.success("%s moved to %s", t.ID, t.Status)
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&taskOwner, "owner", "", "Agent id that owns the task")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "", "Priority: P0, P1 or P2")
	taskAddCmd.Flags().StringVar(&taskDescription, "description", "", "Longer task description")
	taskAddCmd.Flags().BoolVar(&taskReady, "ready", false, "Add the task as ready instead of backlog")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Only list tasks with this status")
	taskListCmd.Flags().BoolVar(&taskBoard, "board", false, "Render the board as columns")

	taskReadyCmd.Flags().StringVar(&taskOwner, "owner", "", "Assign an owner while moving to ready")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskReadyCmd, taskRecoverCmd)
}

// parsePriority accepts p0/P0 style priorities; empty leaves it unset.
func parsePriority(s string) (models.Priority, error) {
	p := models.Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q: use P0, P1 or P2", s)
	}
	return p, nil
}
