package orchestrator

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// shared is the file log used by the pool and executors, which run without
// a handle on the orchestrator.
var shared atomic.Pointer[DebugLogger]

// SetDebugLogger installs the shared debug log. nil turns it off.
func SetDebugLogger(l *DebugLogger) {
	shared.Store(l)
}

func debugLog(format string, args ...interface{}) {
	shared.Load().Log(format, args...)
}

// DebugLogger appends timestamped lines to a file. The zero value and a
// nil pointer discard everything.
type DebugLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewDebugLogger opens logPath for appending, creating its directory. An
// empty path gives a discarding logger.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return NopLogger(), nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}

	l := &DebugLogger{file: f}
	l.Log("--- session start pid=%d at %s ---", os.Getpid(), time.Now().Format(time.RFC3339))
	return l, nil
}

// OpenDebugLogger is NewDebugLogger that degrades to a discarding logger.
func OpenDebugLogger(logPath string) *DebugLogger {
	l, err := NewDebugLogger(logPath)
	if err != nil {
		log.Printf("[orchestrator] debug log disabled: %v", err)
		return NopLogger()
	}
	return l
}

// NopLogger discards everything.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes one "[hh:mm:ss.mmm] message" line.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	l.Write([]byte(line))
}

// Write lets the standard logger be redirected into the file.
func (l *DebugLogger) Write(p []byte) (int, error) {
	if l == nil || l.file == nil {
		return len(p), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Write(p)
}

// Close closes the file. Safe on nil and discarding loggers.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
