package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/0xtechdean/ai-team-orchestrator/internal/orchestrator"
	"github.com/0xtechdean/ai-team-orchestrator/internal/tui"
)

var (
	sprintWatch    bool
	sprintInterval time.Duration
)

var sprintCmd = &cobra.Command{
	Use:   "sprint",
	Short: "Run the highest-priority ready task",
	Long: `Pick the highest-priority ready task on the board and run it for its owner.

With --watch, repeat every --interval until interrupted or until a kill signal
is written to .orchestrator/signals. A live viewer is shown when stdout is a
terminal; pass --plain for line output. Watch mode runs planner follow-ups.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{needBackend: true, followUps: sprintWatch})
		if err != nil {
			return err
		}
		defer a.close()

		if !sprintWatch {
			a.logEvents()
			msg, err := a.orch.RunSprintCheck(ctx)
			var runErr *orchestrator.TaskRunError
			if errors.As(err, &runErr) {
				a.out.warn("task %s is still in_progress; run `orchestrator task recover %s` to return it to backlog", runErr.TaskID, runErr.TaskID)
			}
			if err != nil {
				return err
			}
			fmt.Println(msg)
			a.orch.Wait()
			reportContinuationErrors(a)
			return nil
		}

		if !plain && a.out.color {
			return watchWithTUI(ctx, a)
		}
		a.logEvents()
		return watchPlain(ctx, a)
	},
}

func init() {
	sprintCmd.Flags().BoolVar(&sprintWatch, "watch", false, "Keep running sprint checks")
	sprintCmd.Flags().DurationVar(&sprintInterval, "interval", 30*time.Second, "Pause between sprint checks in watch mode")
}

// runSprint runs one watch-mode sprint check. A failed task is moved back
// to backlog so the loop does not leave it stuck in progress.
func runSprint(ctx context.Context, a *app) (string, error) {
	msg, err := a.orch.RunSprintCheck(ctx)
	if err == nil {
		return msg, nil
	}
	var runErr *orchestrator.TaskRunError
	if errors.As(err, &runErr) {
		if _, rerr := a.orch.RecoverTask(context.WithoutCancel(ctx), runErr.TaskID, runErr.Err); rerr != nil {
			a.out.warn("recover %s: %v", runErr.TaskID, rerr)
		}
	}
	return "", err
}

// watchLoop calls check until ctx is done or the workspace signals a stop.
func watchLoop(ctx context.Context, a *app, check func() error) error {
	ticker := time.NewTicker(sprintInterval)
	defer ticker.Stop()
	for {
		if a.ws.ShouldStop() {
			a.ws.ClearSignals()
			return nil
		}
		if !a.ws.ShouldPause() {
			if err := check(); err != nil && errors.Is(err, context.Canceled) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func watchPlain(ctx context.Context, a *app) error {
	return watchLoop(ctx, a, func() error {
		msg, err := runSprint(ctx, a)
		if err != nil {
			a.out.warn("sprint check: %v", err)
			return err
		}
		a.out.printf("%s %s\n", time.Now().Format("15:04:05"), firstLine(msg))
		return nil
	})
}

func watchWithTUI(ctx context.Context, a *app) error {
	program, _ := tui.NewProgram()
	a.drainEvents(func(e orchestrator.OrchestratorEvent) {
		program.Send(toEventMsg(e))
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan error, 1)
	go func() {
		err := watchLoop(ctx, a, func() error {
			a.sendBoard(ctx, program)
			program.Send(tui.SprintStartedMsg{})
			msg, err := runSprint(ctx, a)
			program.Send(tui.SprintResultMsg{Message: msg, Err: err})
			a.sendBoard(ctx, program)
			return err
		})
		program.Send(tui.SessionDoneMsg{Success: err == nil, Message: "watch stopped"})
		loopDone <- err
	}()

	_, err := program.Run()
	cancel()
	<-loopDone
	return err
}

func (a *app) sendBoard(ctx context.Context, program *tea.Program) {
	tasks, err := a.db.ListTasks(ctx, a.orch.Collection(), nil)
	if err == nil {
		program.Send(tui.BoardMsg{Tasks: tasks})
	}
	program.Send(tui.AgentsMsg{Agents: a.reg.List()})
	if a.pool != nil {
		program.Send(toPoolMsg(a.pool.Stats()))
	}
}

func toPoolMsg(s orchestrator.PoolStats) tui.PoolMsg {
	return tui.PoolMsg{Size: s.Size, Sessions: s.Sessions, Busy: s.Busy, Queued: s.Queued}
}

// toEventMsg converts an orchestrator event to a TUI message.
func toEventMsg(e orchestrator.OrchestratorEvent) tui.OrchestratorEventMsg {
	errStr := ""
	if e.Error != nil {
		errStr = e.Error.Error()
	}
	return tui.OrchestratorEventMsg{
		Type:      string(e.Type),
		TaskID:    e.TaskID,
		TaskTitle: e.TaskTitle,
		AgentID:   e.AgentID,
		Message:   e.Message,
		Error:     errStr,
		Timestamp: e.Timestamp,
		Duration:  e.Duration,
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
