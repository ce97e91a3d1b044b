package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// ErrSessionClosed is returned by Write after the session has exited or been killed.
var ErrSessionClosed = errors.New("session closed")

// Session is a long-lived interactive backend process.
type Session interface {
	// Write sends raw input to the session's stdin.
	Write(input string) error
	// OnData registers the stdout chunk handler. Chunks that arrived
	// before registration are delivered immediately.
	OnData(fn func(chunk string))
	// OnStderr registers the stderr chunk handler.
	OnStderr(fn func(chunk string))
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed.
	Err() error
	Kill() error
	PID() int
}

// SessionSpawner starts new sessions for the pool.
type SessionSpawner interface {
	Spawn(ctx context.Context) (Session, error)
}

// ProcessSpawner spawns ClaudeSession processes.
type ProcessSpawner struct {
	Command string
	Args    []string
	Dir     string
}

var _ SessionSpawner = (*ProcessSpawner)(nil)

// Spawn implements SessionSpawner.
func (s *ProcessSpawner) Spawn(ctx context.Context) (Session, error) {
	cmd := s.Command
	if cmd == "" {
		cmd = "claude"
	}
	sess := NewClaudeSession(ctx, cmd, s.Args...)
	sess.Dir = s.Dir
	if err := sess.Start(); err != nil {
		return nil, err
	}
	return sess, nil
}

// chunkSink delivers chunks to a handler in arrival order, buffering until
// one is set. deliverMu is held while the handler runs so a replay of the
// buffer cannot interleave with newer chunks.
type chunkSink struct {
	deliverMu sync.Mutex
	mu        sync.Mutex
	fn        func(string)
	pending   []string
}

func (c *chunkSink) set(fn func(string)) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	c.fn = fn
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, chunk := range pending {
		fn(chunk)
	}
}

func (c *chunkSink) deliver(chunk string) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	fn := c.fn
	if fn == nil {
		c.pending = append(c.pending, chunk)
	}
	c.mu.Unlock()

	if fn != nil {
		fn(chunk)
	}
}

// ClaudeSession manages a persistent claude subprocess with piped stdio.
type ClaudeSession struct {
	// Dir is the working directory; set before Start.
	Dir string

	name string
	args []string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	mu      sync.Mutex
	writeMu sync.Mutex

	started bool
	exitErr error
	done    chan struct{}

	data    chunkSink
	errData chunkSink
}

var _ Session = (*ClaudeSession)(nil)

// NewClaudeSession creates an unstarted session. The context bounds the
// process lifetime.
func NewClaudeSession(ctx context.Context, name string, args ...string) *ClaudeSession {
	ctx, cancel := context.WithCancel(ctx)
	return &ClaudeSession{
		name:   name,
		args:   args,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the process and its reader goroutines.
func (s *ClaudeSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("session already started")
	}

	s.cmd = exec.CommandContext(s.ctx, s.name, s.args...)
	if s.Dir != "" {
		s.cmd.Dir = s.Dir
	}

	var err error
	if s.stdin, err = s.cmd.StdinPipe(); err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	if s.stdout, err = s.cmd.StdoutPipe(); err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if s.stderr, err = s.cmd.StderrPipe(); err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}
	s.started = true

	var readers sync.WaitGroup
	readers.Add(2)
	go s.read(s.stdout, &s.data, &readers)
	go s.read(s.stderr, &s.errData, &readers)

	go func() {
		readers.Wait()
		err := s.cmd.Wait()
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		close(s.done)
	}()

	return nil
}

// read forwards raw chunks. Interactive prompts do not end in a newline,
// so the stream is not split into lines.
func (s *ClaudeSession) read(r io.Reader, sink *chunkSink, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sink.deliver(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Write implements Session.
func (s *ClaudeSession) Write(input string) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	s.mu.Lock()
	started, stdin := s.started, s.stdin
	s.mu.Unlock()
	if !started {
		return fmt.Errorf("session not started")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := io.WriteString(stdin, input); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// OnData implements Session.
func (s *ClaudeSession) OnData(fn func(chunk string)) { s.data.set(fn) }

// OnStderr implements Session.
func (s *ClaudeSession) OnStderr(fn func(chunk string)) { s.errData.set(fn) }

// Done implements Session.
func (s *ClaudeSession) Done() <-chan struct{} { return s.done }

// Err implements Session.
func (s *ClaudeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// Kill terminates the process immediately.
func (s *ClaudeSession) Kill() error {
	s.once.Do(func() {
		s.cancel()
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.cmd.Process == nil {
		return nil
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// PID returns the process ID of the subprocess, or 0 if not started.
func (s *ClaudeSession) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}
