package orchestrator

import (
	"strings"

	"github.com/0xtechdean/ai-team-orchestrator/internal/agent"
)

// failureMarkers are matched case-insensitively anywhere in free-text output.
var failureMarkers = []string{"failed", "error"}

// ClassifyOutcome reports whether free-text output reads as a success.
// Any occurrence of a failure marker counts, including negated phrasings
// such as "no error found".
func ClassifyOutcome(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range failureMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	return true
}

// responseSucceeded prefers the backend's explicit error flag over text matching.
func responseSucceeded(resp *agent.Response) bool {
	if resp == nil {
		return false
	}
	if resp.Structured {
		return !resp.IsError
	}
	return ClassifyOutcome(resp.Text)
}
