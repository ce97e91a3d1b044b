package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

func TestApp_TabSwitching(t *testing.T) {
	app := New()

	app.Update(tea.KeyMsg{Type: tea.KeyTab})
	if app.currentTab != TabEvents {
		t.Errorf("currentTab = %d, want %d", app.currentTab, TabEvents)
	}
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("3")})
	if app.currentTab != TabAgents {
		t.Errorf("currentTab = %d, want %d", app.currentTab, TabAgents)
	}
	app.Update(tea.KeyMsg{Type: tea.KeyTab})
	if app.currentTab != TabBoard {
		t.Errorf("currentTab = %d, want %d", app.currentTab, TabBoard)
	}
}

func TestApp_Quit(t *testing.T) {
	app := New()
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if got := app.View(); got != "Goodbye!\n" {
		t.Errorf("View() = %q, want goodbye", got)
	}
}

func TestApp_EventUpdatesBoardAndLog(t *testing.T) {
	app := New()
	app.Update(BoardMsg{Tasks: []*models.Task{
		{ID: "t1", Title: "Orders endpoint", Status: models.TaskStatusReady, Owner: "backend"},
	}})

	app.Update(OrchestratorEventMsg{Type: "task_started", TaskID: "t1", AgentID: "backend", TaskTitle: "Orders endpoint"})
	if app.tasks[0].Status != models.TaskStatusInProgress {
		t.Errorf("status = %s, want in_progress", app.tasks[0].Status)
	}
	app.Update(OrchestratorEventMsg{Type: "task_completed", TaskID: "t1", AgentID: "backend", Duration: 1500 * time.Millisecond})
	if app.tasks[0].Status != models.TaskStatusDone {
		t.Errorf("status = %s, want done", app.tasks[0].Status)
	}

	if len(app.logs) != 2 {
		t.Fatalf("len(logs) = %d, want 2", len(app.logs))
	}
	if !strings.Contains(app.logs[1].Message, "1.5s") {
		t.Errorf("log = %q, want duration", app.logs[1].Message)
	}

	app.Update(OrchestratorEventMsg{Type: "continuation_failed", Error: "planner offline"})
	if app.logs[2].Level != "ERROR" {
		t.Errorf("level = %s, want ERROR", app.logs[2].Level)
	}
}

func TestApp_SprintLifecycle(t *testing.T) {
	app := New()

	app.Update(SprintStartedMsg{})
	if !app.running {
		t.Error("expected running after SprintStartedMsg")
	}
	if !strings.Contains(app.viewHeader(), "running sprint check") {
		t.Error("header should show the spinner while running")
	}

	app.Update(SprintResultMsg{Message: "Completed \"Orders\" (t1)\n\nlong output"})
	if app.running {
		t.Error("expected idle after result")
	}
	if app.lastResult != "Completed \"Orders\" (t1)" {
		t.Errorf("lastResult = %q", app.lastResult)
	}

	app.Update(SprintResultMsg{Err: errors.New("boom")})
	if !strings.Contains(app.lastResult, "boom") {
		t.Errorf("lastResult = %q, want error text", app.lastResult)
	}

	app.Update(SessionDoneMsg{Success: true, Message: "stopped"})
	if !strings.Contains(app.viewFooter(), "stopped") {
		t.Errorf("footer = %q", app.viewFooter())
	}
}

func TestApp_LogBounded(t *testing.T) {
	app := New()
	for i := 0; i < maxLogEntries+20; i++ {
		app.Update(DebugLogMsg{Message: "tick"})
	}
	if len(app.logs) != maxLogEntries {
		t.Errorf("len(logs) = %d, want %d", len(app.logs), maxLogEntries)
	}
}

func TestRenderBoard(t *testing.T) {
	out := RenderBoard([]*models.Task{
		{ID: "a", Title: "Fix login", Status: models.TaskStatusReady, Priority: models.PriorityP0, Owner: "backend"},
		{ID: "b", Title: "Write docs", Status: models.TaskStatusBacklog},
	}, 120)

	for _, want := range []string{"backlog (1)", "ready (1)", "done (0)", "Fix login", "unassigned", "P0"} {
		if !strings.Contains(out, want) {
			t.Errorf("board missing %q", want)
		}
	}
}

func TestApp_PoolLine(t *testing.T) {
	app := New()
	if strings.Contains(app.viewHeader(), "pool") {
		t.Error("header shows a pool line before any PoolMsg")
	}

	app.Update(PoolMsg{Size: 3, Sessions: 2, Busy: 1, Queued: 4})
	if got := app.viewHeader(); !strings.Contains(got, "pool 2/3 sessions, 1 busy, 4 queued") {
		t.Errorf("viewHeader() = %q, want pool line", got)
	}
}
