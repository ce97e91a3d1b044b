package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// BoardColumns is the column order of the task board.
var BoardColumns = []models.TaskStatus{
	models.TaskStatusBacklog,
	models.TaskStatusReady,
	models.TaskStatusInProgress,
	models.TaskStatusPRCreated,
	models.TaskStatusDone,
}

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	columnTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15"))

	priorityStyles = map[models.Priority]lipgloss.Style{
		models.PriorityP0: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		models.PriorityP1: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.PriorityP2: lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
	}

	ownerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// RenderBoard draws tasks as one bordered column per status. width is the
// terminal width; zero falls back to 100 columns.
func RenderBoard(tasks []*models.Task, width int) string {
	if width <= 0 {
		width = 100
	}
	colWidth := width/len(BoardColumns) - 4
	if colWidth < 16 {
		colWidth = 16
	}

	byStatus := make(map[models.TaskStatus][]*models.Task)
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}

	cols := make([]string, 0, len(BoardColumns))
	for _, status := range BoardColumns {
		group := byStatus[status]
		lines := []string{columnTitleStyle.Render(fmt.Sprintf("%s (%d)", status, len(group)))}
		for _, t := range group {
			lines = append(lines, renderCard(t, colWidth))
		}
		cols = append(cols, columnStyle.Width(colWidth).Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func renderCard(t *models.Task, width int) string {
	priority := "--"
	style := ownerStyle
	if s, ok := priorityStyles[t.Priority]; ok {
		priority = string(t.Priority)
		style = s
	}
	owner := t.Owner
	if owner == "" {
		owner = "unassigned"
	}
	title := t.Title
	if limit := width - 4; limit > 3 && len(title) > limit {
		title = title[:limit-3] + "..."
	}
	return fmt.Sprintf("%s %s\n   %s", style.Render(priority), title, ownerStyle.Render(owner))
}
