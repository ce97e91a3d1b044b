package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xtechdean/ai-team-orchestrator/internal/learning"
)

func TestRestorePatterns(t *testing.T) {
	h := newHarness(t, nil, WithTerminalAgents("backend"))
	ctx := context.Background()

	for _, task := range []string{"implement payments endpoint", "implement orders endpoint"} {
		_, err := h.orch.RunTask(ctx, "backend", task, "")
		require.NoError(t, err)
	}
	_, err := h.notes.Add(ctx, "unrelated note", "", map[string]string{"kind": "decision"})
	require.NoError(t, err)

	tracker := learning.NewPatternTracker()
	n, err := RestorePatterns(ctx, h.notes, tracker, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, ok := tracker.Get("implement-endpoint")
	require.True(t, ok)
	assert.Equal(t, 2, rec.Occurrences)
	assert.Equal(t, "api", rec.Domain)
	assert.Equal(t, []string{"implement payments endpoint", "implement orders endpoint"}, rec.Examples)
}
