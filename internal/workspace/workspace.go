// Package workspace reads project context files and watches the
// project's .orchestrator directory for control signals.
package workspace

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// MaxFileBytes caps how much of one context file is included.
const MaxFileBytes = 16 * 1024

const decisionsTemplate = `# Project Decisions

Shared naming conventions, patterns, and architectural decisions.
Agents read this file before each task and append new decisions after completing work.
`

// Workspace loads project context and tracks stop/pause signals.
type Workspace struct {
	root     string
	stateDir string
	files    []string

	mu          sync.RWMutex
	cache       string
	cacheValid  bool
	generation  int
	stopSignal  bool
	pauseSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// Open prepares the workspace rooted at root. files are context file paths
// relative to root, read in order. Without a working file watcher the
// context cache is never kept and signals fall back to polling.
func Open(root, stateDir string, files []string) (*Workspace, error) {
	if stateDir == "" {
		stateDir = ".orchestrator"
	}
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(root, stateDir)
	}

	for _, dir := range []string{stateDir, filepath.Join(stateDir, "signals")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	decisionsPath := filepath.Join(stateDir, "decisions.md")
	if _, err := os.Stat(decisionsPath); os.IsNotExist(err) {
		if err := os.WriteFile(decisionsPath, []byte(decisionsTemplate), 0644); err != nil {
			return nil, err
		}
	}

	w := &Workspace{
		root:     root,
		stateDir: stateDir,
		files:    files,
		done:     make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[workspace] file watcher unavailable, caching disabled: %v", err)
		return w, nil
	}

	dirs := map[string]bool{filepath.Join(stateDir, "signals"): true}
	for _, f := range files {
		dirs[filepath.Dir(w.abs(f))] = true
	}
	for dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Printf("[workspace] watch %s: %v", dir, err)
		}
	}
	w.watcher = watcher

	go w.watch()

	return w, nil
}

func (w *Workspace) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.root, path)
}

// watch invalidates the context cache on file changes and records signals.
func (w *Workspace) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[workspace] watcher error: %v", err)
		}
	}
}

func (w *Workspace) handle(event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if filepath.Dir(event.Name) == filepath.Join(w.stateDir, "signals") {
		if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
			return
		}
		if _, err := os.Stat(event.Name); err != nil {
			return
		}
		switch filepath.Base(event.Name) {
		case "kill":
			w.stopSignal = true
		case "pause":
			w.pauseSignal = true
		}
		return
	}

	for _, f := range w.files {
		if filepath.Clean(w.abs(f)) == filepath.Clean(event.Name) {
			w.invalidate()
			return
		}
	}
}

// invalidate drops the cached context. Callers hold w.mu.
func (w *Workspace) invalidate() {
	w.cacheValid = false
	w.generation++
}

// Load returns the concatenated project context. Missing or unreadable
// files are skipped; the result may be empty.
func (w *Workspace) Load() string {
	w.mu.RLock()
	if w.cacheValid {
		defer w.mu.RUnlock()
		return w.cache
	}
	gen := w.generation
	w.mu.RUnlock()

	var sb strings.Builder
	for _, f := range w.files {
		data, err := os.ReadFile(w.abs(f))
		if err != nil || len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		if len(data) > MaxFileBytes {
			data = append(data[:MaxFileBytes:MaxFileBytes], []byte("\n...(truncated)")...)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("### " + filepath.Base(f) + "\n")
		sb.Write(data)
	}
	out := sb.String()

	if w.watcher != nil {
		w.mu.Lock()
		if w.generation == gen {
			w.cache = out
			w.cacheValid = true
		}
		w.mu.Unlock()
	}
	return out
}

// AppendDecision adds a timestamped entry to decisions.md.
func (w *Workspace) AppendDecision(decision string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.stateDir, "decisions.md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	entry := "\n- " + time.Now().Format("2006-01-02 15:04") + ": " + decision + "\n"
	if _, err := f.WriteString(entry); err != nil {
		return err
	}
	w.invalidate()
	return nil
}

// ShouldStop reports whether a kill signal file has been written.
func (w *Workspace) ShouldStop() bool {
	return w.signal("kill", &w.stopSignal)
}

// ShouldPause reports whether a pause signal file has been written.
func (w *Workspace) ShouldPause() bool {
	return w.signal("pause", &w.pauseSignal)
}

func (w *Workspace) signal(name string, flag *bool) bool {
	// The watcher may miss events on some filesystems.
	if _, err := os.Stat(filepath.Join(w.stateDir, "signals", name)); err == nil {
		w.mu.Lock()
		*flag = true
		w.mu.Unlock()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return *flag
}

// SendKill creates a kill signal file.
func (w *Workspace) SendKill() error {
	path := filepath.Join(w.stateDir, "signals", "kill")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause creates a pause signal file.
func (w *Workspace) SendPause() error {
	path := filepath.Join(w.stateDir, "signals", "pause")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes all signal files and resets signal state.
func (w *Workspace) ClearSignals() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopSignal = false
	w.pauseSignal = false

	os.Remove(filepath.Join(w.stateDir, "signals", "kill"))
	os.Remove(filepath.Join(w.stateDir, "signals", "pause"))
}

// StateDir returns the absolute .orchestrator directory.
func (w *Workspace) StateDir() string {
	return w.stateDir
}

// Close stops the watcher.
func (w *Workspace) Close() {
	w.once.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}
