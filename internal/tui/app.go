package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// Tab constants for navigation.
const (
	TabBoard = iota
	TabEvents
	TabAgents
)

// maxLogEntries bounds the events tab history.
const maxLogEntries = 500

// OrchestratorEventMsg wraps an orchestrator event for the TUI.
type OrchestratorEventMsg struct {
	Type      string
	TaskID    string
	TaskTitle string
	AgentID   string
	Message   string
	Error     string
	Timestamp time.Time
	Duration  time.Duration
}

// BoardMsg replaces the displayed task board.
type BoardMsg struct {
	Tasks []*models.Task
}

// AgentsMsg replaces the displayed team.
type AgentsMsg struct {
	Agents []*models.Agent
}

// PoolMsg updates the worker pool line in the header.
type PoolMsg struct {
	Size     int
	Sessions int
	Busy     int
	Queued   int
}

// SprintStartedMsg marks the start of a sprint check.
type SprintStartedMsg struct{}

// SprintResultMsg carries the outcome of one sprint check.
type SprintResultMsg struct {
	Message string
	Err     error
}

// SessionDoneMsg signals that the watch loop has stopped.
type SessionDoneMsg struct {
	Success bool
	Message string
}

// DebugLogMsg is sent to add a debug message to the logs.
type DebugLogMsg struct {
	Message string
}

// LogEntry represents a line in the events tab.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// App is the bubbletea model for the sprint viewer.
type App struct {
	currentTab int
	tasks      []*models.Task
	agents     []*models.Agent
	pool       *PoolMsg
	logs       []LogEntry
	spinner    spinner.Model
	running    bool
	lastResult string
	width      int
	height     int
	quitting   bool

	sessionDone    bool
	sessionSuccess bool
	sessionMessage string

	titleStyle  lipgloss.Style
	tabStyle    lipgloss.Style
	activeStyle lipgloss.Style
	errorStyle  lipgloss.Style
	mutedStyle  lipgloss.Style
}

// New creates a new App instance.
func New() *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &App{
		currentTab: TabBoard,
		spinner:    sp,
		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4")),
		tabStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Padding(0, 1),
		activeStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		mutedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "tab":
			a.currentTab = (a.currentTab + 1) % 3
		case "1":
			a.currentTab = TabBoard
		case "2":
			a.currentTab = TabEvents
		case "3":
			a.currentTab = TabAgents
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case BoardMsg:
		a.tasks = msg.Tasks

	case AgentsMsg:
		a.agents = msg.Agents

	case PoolMsg:
		a.pool = &msg

	case SprintStartedMsg:
		a.running = true

	case SprintResultMsg:
		a.running = false
		if msg.Err != nil {
			a.lastResult = "sprint check failed: " + msg.Err.Error()
			a.addLog("ERROR", a.lastResult, time.Now())
		} else {
			a.lastResult = firstLine(msg.Message)
		}

	case OrchestratorEventMsg:
		a.handleOrchestratorEvent(msg)

	case SessionDoneMsg:
		a.running = false
		a.sessionDone = true
		a.sessionSuccess = msg.Success
		a.sessionMessage = msg.Message

	case DebugLogMsg:
		a.addLog("DEBUG", msg.Message, time.Now())
	}

	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	var content string
	switch a.currentTab {
	case TabBoard:
		content = RenderBoard(a.tasks, a.width)
	case TabEvents:
		content = a.viewEvents()
	case TabAgents:
		content = a.viewAgents()
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", a.viewHeader(), content, a.viewFooter())
}

// viewHeader renders the title, tab bar and run status.
func (a *App) viewHeader() string {
	tabs := []string{"Board", "Events", "Agents"}
	rendered := make([]string, 0, len(tabs))
	for i, tab := range tabs {
		label := fmt.Sprintf("%d %s", i+1, tab)
		if i == a.currentTab {
			rendered = append(rendered, a.activeStyle.Render(label))
		} else {
			rendered = append(rendered, a.tabStyle.Render(label))
		}
	}

	status := a.mutedStyle.Render("idle")
	if a.running {
		status = a.spinner.View() + " running sprint check"
	} else if a.lastResult != "" {
		status = a.mutedStyle.Render(a.lastResult)
	}

	lines := []string{
		a.titleStyle.Render("AI Team Orchestrator"),
		lipgloss.JoinHorizontal(lipgloss.Top, rendered...),
		status,
	}
	if a.pool != nil {
		line := fmt.Sprintf("pool %d/%d sessions, %d busy, %d queued", a.pool.Sessions, a.pool.Size, a.pool.Busy, a.pool.Queued)
		if a.pool.Sessions < a.pool.Size {
			line = a.errorStyle.Render(line)
		} else {
			line = a.mutedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// viewEvents renders the most recent log entries that fit.
func (a *App) viewEvents() string {
	if len(a.logs) == 0 {
		return "No events yet"
	}

	limit := 20
	if a.height > 12 {
		limit = a.height - 10
	}
	start := 0
	if len(a.logs) > limit {
		start = len(a.logs) - limit
	}

	var b strings.Builder
	for _, entry := range a.logs[start:] {
		line := fmt.Sprintf("  %s [%s] %s", entry.Timestamp.Format("15:04:05"), entry.Level, entry.Message)
		if entry.Level == "ERROR" {
			line = a.errorStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// viewAgents renders one line per agent with its track record.
func (a *App) viewAgents() string {
	if len(a.agents) == 0 {
		return "No agents"
	}

	var b strings.Builder
	for _, ag := range a.agents {
		p := ag.Performance
		fmt.Fprintf(&b, "  %-12s %-10s %3d tasks  %5.1f%% ok  avg %s\n",
			ag.ID, ag.Role, p.TasksCompleted, p.SuccessRate()*100,
			time.Duration(p.AvgExecutionTime*float64(time.Millisecond)).Round(time.Millisecond))
	}
	return b.String()
}

// viewFooter renders the footer with help text.
func (a *App) viewFooter() string {
	if a.sessionDone {
		if a.sessionSuccess {
			return fmt.Sprintf("✓ %s | Press q to exit", a.sessionMessage)
		}
		return a.errorStyle.Render(fmt.Sprintf("✗ %s | Press q to exit", a.sessionMessage))
	}
	return a.mutedStyle.Render("Press 1/2/3 or Tab to switch tabs | q to quit")
}

// handleOrchestratorEvent logs the event and patches the board in place.
func (a *App) handleOrchestratorEvent(msg OrchestratorEventMsg) {
	level := "INFO"
	if msg.Error != "" {
		level = "ERROR"
	}
	a.addLog(level, describeEvent(msg), msg.Timestamp)

	if msg.TaskID == "" {
		return
	}
	switch msg.Type {
	case "task_started":
		if t := a.findTask(msg.TaskID); t != nil {
			t.Status = models.TaskStatusInProgress
		}
	case "task_completed":
		if t := a.findTask(msg.TaskID); t != nil {
			t.Status = models.TaskStatusDone
		}
	}
}

func (a *App) addLog(level, message string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	a.logs = append(a.logs, LogEntry{Timestamp: at, Level: level, Message: message})
	if len(a.logs) > maxLogEntries {
		a.logs = a.logs[len(a.logs)-maxLogEntries:]
	}
}

func (a *App) findTask(id string) *models.Task {
	for _, t := range a.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// describeEvent renders an event as a single log line.
func describeEvent(msg OrchestratorEventMsg) string {
	parts := []string{msg.Type}
	if msg.AgentID != "" {
		parts = append(parts, msg.AgentID)
	}
	if msg.TaskTitle != "" {
		parts = append(parts, fmt.Sprintf("%q", msg.TaskTitle))
	}
	if msg.Message != "" {
		parts = append(parts, msg.Message)
	}
	if msg.Error != "" {
		parts = append(parts, "error: "+msg.Error)
	}
	if msg.Duration > 0 {
		parts = append(parts, msg.Duration.Round(time.Millisecond).String())
	}
	return strings.Join(parts, " ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// NewProgram creates a bubbletea program that can receive messages via Send().
func NewProgram() (*tea.Program, *App) {
	app := New()
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
