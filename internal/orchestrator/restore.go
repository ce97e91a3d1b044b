package orchestrator

import (
	"context"
	"fmt"

	"github.com/0xtechdean/ai-team-orchestrator/internal/learning"
)

// noteKindOutcome marks memory notes written after each task.
const noteKindOutcome = "task_outcome"

// RestorePatterns replays up to limit recent task outcome notes into
// tracker, oldest first, so pattern counts carry over between processes.
// It returns the number of notes replayed.
func RestorePatterns(ctx context.Context, store MemoryStore, tracker *learning.PatternTracker, limit int) (int, error) {
	notes, err := store.Search(ctx, "", "", limit)
	if err != nil {
		return 0, fmt.Errorf("restore patterns: %w", err)
	}

	n := 0
	for i := len(notes) - 1; i >= 0; i-- {
		meta := notes[i].Metadata
		if meta["kind"] != noteKindOutcome || meta["pattern"] == "" {
			continue
		}
		example := meta["task"]
		if example == "" {
			example = notes[i].Text
		}
		tracker.Track(meta["pattern"], meta["domain"], example)
		n++
	}
	return n, nil
}
