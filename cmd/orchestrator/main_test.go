package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/0xtechdean/ai-team-orchestrator/internal/config"
	"github.com/0xtechdean/ai-team-orchestrator/internal/orchestrator"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Priority
		wantErr bool
	}{
		{"p0", models.PriorityP0, false},
		{" P2 ", models.PriorityP2, false},
		{"", "", false},
		{"urgent", "", true},
	}
	for _, tt := range tests {
		got, err := parsePriority(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePriority(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePriority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigLinesMaskKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"

	joined := strings.Join(configLines(cfg), "\n")
	if strings.Contains(joined, "abcdefghijklmnop") {
		t.Error("config output leaks the API key")
	}
	if !strings.Contains(joined, "sk-ant-...mnop (config_file)") {
		t.Errorf("expected masked key, got:\n%s", joined)
	}
	if !strings.Contains(joined, "backend.mode: cli") {
		t.Errorf("expected backend mode, got:\n%s", joined)
	}
}

func TestPrinterNotify(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)
	if p.color {
		t.Fatal("a buffer is not a terminal")
	}

	p.notify(orchestrator.Notification{AgentID: "backend", Task: "implement payments\nendpoint", Success: true, Duration: 1234 * time.Millisecond})
	p.notify(orchestrator.Notification{AgentID: "frontend", Task: "build form", Success: false})

	out := buf.String()
	if !strings.Contains(out, "✓ backend 1.2s implement payments endpoint") {
		t.Errorf("success line missing, got %q", out)
	}
	if !strings.Contains(out, "✗ frontend") {
		t.Errorf("failure line missing, got %q", out)
	}
}

func TestPrinterTaskTable(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, true)
	p.taskTable(nil)
	p.taskTable([]*models.Task{{ID: "t1", Title: "Fix login", Status: models.TaskStatusReady}})

	out := buf.String()
	if !strings.Contains(out, "No tasks.") || !strings.Contains(out, "Fix login") || !strings.Contains(out, "t1") {
		t.Errorf("unexpected table output %q", out)
	}
}

func TestToEventMsg(t *testing.T) {
	at := time.Now()
	msg := toEventMsg(orchestrator.OrchestratorEvent{
		Type:      orchestrator.EventContinuationFailed,
		AgentID:   "pm",
		Error:     errors.New("planner offline"),
		Timestamp: at,
	})
	if msg.Type != "continuation_failed" || msg.Error != "planner offline" || !msg.Timestamp.Equal(at) {
		t.Errorf("toEventMsg = %+v", msg)
	}
}

func TestToPoolMsg(t *testing.T) {
	msg := toPoolMsg(orchestrator.PoolStats{Size: 3, Sessions: 2, Busy: 1, Queued: 5})
	if msg.Size != 3 || msg.Sessions != 2 || msg.Busy != 1 || msg.Queued != 5 {
		t.Errorf("toPoolMsg = %+v", msg)
	}
}

func TestTruncateLine(t *testing.T) {
	if got := truncateLine("a  b\nc", 10); got != "a b c" {
		t.Errorf("truncateLine = %q", got)
	}
	if got := truncateLine(strings.Repeat("x", 20), 10); got != "xxxxxxx..." {
		t.Errorf("truncateLine = %q", got)
	}
	if got := firstLine("one\ntwo"); got != "one" {
		t.Errorf("firstLine = %q", got)
	}
}
