package orchestrator

import (
	"sync"
	"time"
)

// DefaultErrorLogSize bounds the continuation error log.
const DefaultErrorLogSize = 100

// Continuation stages recorded in the error log.
const (
	StagePlan     = "plan"
	StageFollowUp = "follow_up"
)

// ContinuationError is a failure from work that ran after RunTask returned.
type ContinuationError struct {
	Stage   string    `json:"stage"`
	AgentID string    `json:"agent_id"`
	Task    string    `json:"task"`
	Err     error     `json:"-"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ErrorLog keeps the most recent continuation failures.
type ErrorLog struct {
	mu      sync.Mutex
	size    int
	entries []ContinuationError
}

// NewErrorLog creates a log holding at most size entries.
func NewErrorLog(size int) *ErrorLog {
	if size < 1 {
		size = DefaultErrorLogSize
	}
	return &ErrorLog{size: size}
}

// Add records a failure, dropping the oldest entry when full.
func (l *ErrorLog) Add(e ContinuationError) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Message == "" && e.Err != nil {
		e.Message = e.Err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.size {
		l.entries = append([]ContinuationError(nil), l.entries[len(l.entries)-l.size:]...)
	}
}

// List returns the entries oldest first.
func (l *ErrorLog) List() []ContinuationError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ContinuationError(nil), l.entries...)
}

// Len returns the number of retained entries.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
