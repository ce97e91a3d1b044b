package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/0xtechdean/ai-team-orchestrator/internal/orchestrator"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// printer writes command output, colored when w is a terminal.
type printer struct {
	mu    sync.Mutex
	w     io.Writer
	color bool

	ok    *color.Color
	fail  *color.Color
	warnC *color.Color
	head  *color.Color
	muted *color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	colored := !noColor && isTerminal(w)
	p := &printer{
		w:     w,
		color: colored,
		ok:    color.New(color.FgGreen),
		fail:  color.New(color.FgRed),
		warnC: color.New(color.FgYellow),
		head:  color.New(color.FgCyan, color.Bold),
		muted: color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{p.ok, p.fail, p.warnC, p.head, p.muted} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) heading(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.head.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) success(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ok.Fprintf(p.w, "✓ "+format+"\n", args...)
}

func (p *printer) warn(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnC.Fprintf(p.w, "! "+format+"\n", args...)
}

// notify is the orchestrator notifier: one line per finished task.
func (p *printer) notify(n orchestrator.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark, c := "✓", p.ok
	if !n.Success {
		mark, c = "✗", p.fail
	}
	c.Fprintf(p.w, "%s %s", mark, n.AgentID)
	p.muted.Fprintf(p.w, " %s ", n.Duration.Round(100*time.Millisecond))
	fmt.Fprintln(p.w, truncateLine(n.Task, 80))
}

// taskTable renders tasks as aligned rows.
func (p *printer) taskTable(tasks []*models.Task) {
	if len(tasks) == 0 {
		p.printf("No tasks.\n")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range tasks {
		priority := string(t.Priority)
		if priority == "" {
			priority = "--"
		}
		owner := t.Owner
		if owner == "" {
			owner = "-"
		}
		p.head.Fprintf(p.w, "%-2s ", priority)
		fmt.Fprintf(p.w, "%-11s %-12s %s ", t.Status, owner, truncateLine(t.Title, 60))
		p.muted.Fprintf(p.w, "%s\n", t.ID)
	}
}

func truncateLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
