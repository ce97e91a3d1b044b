package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/0xtechdean/ai-team-orchestrator/internal/agent"
)

// Pool defaults.
const (
	DefaultPoolSize         = 3
	DefaultReadyTimeout     = 30 * time.Second
	DefaultRespawnBackoff   = 5 * time.Second
	DefaultCompletionMarker = "\n> "
	DefaultMinOutputLength  = 50
)

var (
	// ErrSubmissionTimeout fails a submission whose session produced no
	// complete output in time. The session is freed but not killed.
	ErrSubmissionTimeout = errors.New("pool submission timed out")
	// ErrSessionExited fails the in-flight submission of a session that exited.
	ErrSessionExited = errors.New("pool session exited")
	// ErrPoolClosed fails submissions made or pending at shutdown.
	ErrPoolClosed = errors.New("pool is shut down")
	// ErrNoSessions is returned by Initialize when every spawn failed.
	ErrNoSessions = errors.New("pool has no live sessions")
	// ErrSessionNotReady fails a spawn whose session sent nothing within
	// ReadyTimeout. The process is killed.
	ErrSessionNotReady = errors.New("pool session not ready")
)

// PoolConfig contains configuration options for the Pool.
type PoolConfig struct {
	Size    int
	Spawner agent.SessionSpawner
	// ReadyTimeout bounds the wait for a new session's first output.
	ReadyTimeout   time.Duration
	RespawnBackoff time.Duration
	// CompletionMarker ends a response once it appears in the output.
	CompletionMarker string
	// MinOutputLength ends a response once the output reaches this length.
	MinOutputLength int
	// DefaultTimeout applies to submissions made with a zero timeout.
	DefaultTimeout time.Duration
	// Events optionally receives session lifecycle events.
	Events *EventEmitter
}

func (c *PoolConfig) applyDefaults() {
	if c.Size < 1 {
		c.Size = DefaultPoolSize
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.RespawnBackoff <= 0 {
		c.RespawnBackoff = DefaultRespawnBackoff
	}
	if c.CompletionMarker == "" {
		c.CompletionMarker = DefaultCompletionMarker
	}
	if c.MinOutputLength <= 0 {
		c.MinOutputLength = DefaultMinOutputLength
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = agent.DefaultTimeout
	}
}

// PooledSession is one live interactive session owned by the pool.
type PooledSession struct {
	ID        string
	AgentID   string
	Busy      bool
	CreatedAt time.Time

	handle    agent.Session
	current   *submission
	output    strings.Builder
	readySeen bool
	ready     chan struct{}
}

type poolResult struct {
	output string
	err    error
}

type submission struct {
	agentID  string
	prompt   string
	timeout  time.Duration
	result   chan poolResult
	done     bool
	session  *PooledSession
	timer    *time.Timer
	stopCtx  func() bool
	enqueued time.Time
}

// Pending is the handle returned by Submit.
type Pending struct {
	pool *Pool
	sub  *submission
}

// Wait blocks until the submission completes or ctx is done. Cancelling
// ctx abandons the submission and frees its session.
func (p *Pending) Wait(ctx context.Context) (string, error) {
	if stop := p.sub.stopCtx; stop != nil {
		defer stop()
	}
	select {
	case r := <-p.sub.result:
		return r.output, r.err
	case <-ctx.Done():
		p.pool.fail(p.sub, ctx.Err())
		r := <-p.sub.result
		return r.output, r.err
	}
}

// dispatch pairs a session with the submission just assigned to it.
type dispatch struct {
	session *PooledSession
	sub     *submission
}

// Pool keeps a fixed number of interactive sessions and hands each
// submission to the first free one, queueing the rest in FIFO order.
type Pool struct {
	cfg PoolConfig

	mu       sync.Mutex
	sessions []*PooledSession
	queue    []*submission
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool. Call Initialize before submitting.
func NewPool(cfg PoolConfig) *Pool {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Initialize spawns Size sessions in parallel. Failed spawns are logged and
// tolerated; ErrNoSessions is returned only when none came up.
func (p *Pool) Initialize(ctx context.Context) error {
	slots := make([]*PooledSession, p.cfg.Size)

	g, gctx := errgroup.WithContext(ctx)
	for i := range slots {
		g.Go(func() error {
			ps, err := p.spawn(gctx)
			if err != nil {
				log.Printf("[pool] session %d failed to start: %v", i+1, err)
				return nil
			}
			slots[i] = ps
			return nil
		})
	}
	_ = g.Wait()

	started := 0
	for _, ps := range slots {
		if ps == nil {
			continue
		}
		p.attach(ps)
		started++
	}
	log.Printf("[pool] initialized %d/%d sessions", started, p.cfg.Size)

	if started == 0 {
		return ErrNoSessions
	}
	return nil
}

// spawn starts one session and waits for its first output. A session that
// stays silent past ReadyTimeout is killed and the spawn fails.
func (p *Pool) spawn(ctx context.Context) (*PooledSession, error) {
	if p.cfg.Spawner == nil {
		return nil, errors.New("pool has no session spawner")
	}
	handle, err := p.cfg.Spawner.Spawn(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("spawn session: %w", err)
	}

	ps := &PooledSession{
		ID:        uuid.New().String()[:8],
		CreatedAt: time.Now(),
		handle:    handle,
		ready:     make(chan struct{}),
	}
	handle.OnData(func(chunk string) { p.onData(ps, chunk) })
	handle.OnStderr(func(chunk string) {
		log.Printf("[pool] session %s stderr: %s", ps.ID, strings.TrimSpace(chunk))
	})

	timer := time.NewTimer(p.cfg.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-ps.ready:
	case <-timer.C:
		_ = handle.Kill()
		return nil, fmt.Errorf("%w: session %s sent no output within %s", ErrSessionNotReady, ps.ID, p.cfg.ReadyTimeout)
	case <-handle.Done():
		return nil, fmt.Errorf("session exited during startup: %v", handle.Err())
	case <-ctx.Done():
		_ = handle.Kill()
		return nil, ctx.Err()
	}
	return ps, nil
}

// attach adds a ready session to the pool and starts its exit watcher.
func (p *Pool) attach(ps *PooledSession) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = ps.handle.Kill()
		return
	}
	p.sessions = append(p.sessions, ps)
	started := p.dispatchLocked()
	p.mu.Unlock()

	debugLog("[pool] session %s attached (pid %d)", ps.ID, ps.handle.PID())
	go p.watch(ps)
	p.write(started)
}

// Submit queues a prompt. A zero timeout uses DefaultTimeout.
func (p *Pool) Submit(ctx context.Context, prompt string, timeout time.Duration) *Pending {
	return p.submit(ctx, "", prompt, timeout)
}

func (p *Pool) submit(ctx context.Context, agentID, prompt string, timeout time.Duration) *Pending {
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	sub := &submission{
		agentID:  agentID,
		prompt:   prompt,
		timeout:  timeout,
		result:   make(chan poolResult, 1),
		enqueued: time.Now(),
	}
	pending := &Pending{pool: p, sub: sub}

	if err := ctx.Err(); err != nil {
		sub.done = true
		complete(sub, poolResult{err: err})
		return pending
	}

	sub.stopCtx = context.AfterFunc(ctx, func() { p.fail(sub, ctx.Err()) })

	p.mu.Lock()
	if sub.done {
		// ctx was cancelled before the submission was queued.
		p.mu.Unlock()
		return pending
	}
	if p.closed {
		sub.done = true
		p.mu.Unlock()
		complete(sub, poolResult{err: ErrPoolClosed})
		return pending
	}
	p.queue = append(p.queue, sub)
	started := p.dispatchLocked()
	p.mu.Unlock()

	p.write(started)
	return pending
}

// Execute implements Executor by submitting the prompt and waiting for it.
func (p *Pool) Execute(ctx context.Context, agentID, prompt string, timeout time.Duration) (*agent.Response, error) {
	start := time.Now()
	out, err := p.submit(ctx, agentID, prompt, timeout).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return &agent.Response{Text: out, Duration: time.Since(start)}, nil
}

// dispatchLocked assigns queued submissions to free sessions in creation
// order. The caller must hold p.mu and pass the result to write.
func (p *Pool) dispatchLocked() []dispatch {
	var started []dispatch
	for len(p.queue) > 0 {
		ps := p.freeSessionLocked()
		if ps == nil {
			break
		}
		sub := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]

		ps.Busy = true
		ps.AgentID = sub.agentID
		ps.current = sub
		ps.output.Reset()
		sub.session = ps
		sub.timer = time.AfterFunc(sub.timeout, func() { p.fail(sub, ErrSubmissionTimeout) })
		started = append(started, dispatch{session: ps, sub: sub})
	}
	return started
}

func (p *Pool) freeSessionLocked() *PooledSession {
	for _, ps := range p.sessions {
		if !ps.Busy {
			return ps
		}
	}
	return nil
}

// write sends each dispatched prompt to its session's stdin.
func (p *Pool) write(started []dispatch) {
	for _, d := range started {
		prompt := d.sub.prompt
		if !strings.HasSuffix(prompt, "\n") {
			prompt += "\n"
		}
		debugLog("[pool] session %s <- %d bytes (queued %s)", d.session.ID, len(prompt), time.Since(d.sub.enqueued).Round(time.Millisecond))
		if err := d.session.handle.Write(prompt); err != nil {
			p.fail(d.sub, fmt.Errorf("write prompt to session %s: %w", d.session.ID, err))
		}
	}
}

// onData accumulates output for the session's current submission.
func (p *Pool) onData(ps *PooledSession, chunk string) {
	p.mu.Lock()
	if !ps.readySeen {
		ps.readySeen = true
		close(ps.ready)
		if ps.current == nil {
			p.mu.Unlock()
			return
		}
	}
	sub := ps.current
	if sub == nil {
		// Output between submissions belongs to nobody.
		p.mu.Unlock()
		return
	}
	ps.output.WriteString(chunk)
	buf := ps.output.String()
	if !IsComplete(buf, p.cfg.CompletionMarker, p.cfg.MinOutputLength) {
		p.mu.Unlock()
		return
	}
	p.releaseLocked(sub)
	started := p.dispatchLocked()
	p.mu.Unlock()

	complete(sub, poolResult{output: cleanOutput(buf, p.cfg.CompletionMarker)})
	p.write(started)
}

// fail ends a queued or in-flight submission with err. It is a no-op for
// submissions that already finished.
func (p *Pool) fail(sub *submission, err error) {
	p.mu.Lock()
	if sub.done {
		p.mu.Unlock()
		return
	}
	if sub.session == nil {
		for i, q := range p.queue {
			if q == sub {
				p.queue = append(p.queue[:i], p.queue[i+1:]...)
				break
			}
		}
		sub.done = true
	} else {
		if errors.Is(err, ErrSubmissionTimeout) {
			log.Printf("[pool] session %s timed out after %s", sub.session.ID, sub.timeout)
		}
		p.releaseLocked(sub)
	}
	started := p.dispatchLocked()
	p.mu.Unlock()

	complete(sub, poolResult{err: err})
	p.write(started)
}

// releaseLocked marks sub finished and frees its session.
func (p *Pool) releaseLocked(sub *submission) {
	sub.done = true
	if sub.timer != nil {
		sub.timer.Stop()
	}
	if ps := sub.session; ps != nil && ps.current == sub {
		ps.current = nil
		ps.Busy = false
		ps.AgentID = ""
		ps.output.Reset()
	}
}

func complete(sub *submission, r poolResult) {
	select {
	case sub.result <- r:
	default:
	}
}

// watch handles an unexpected session exit: the in-flight submission fails
// with ErrSessionExited and a replacement is spawned after the backoff.
func (p *Pool) watch(ps *PooledSession) {
	<-ps.handle.Done()

	p.mu.Lock()
	for i, s := range p.sessions {
		if s == ps {
			p.sessions = append(p.sessions[:i], p.sessions[i+1:]...)
			break
		}
	}
	sub := ps.current
	if sub != nil {
		p.releaseLocked(sub)
	}
	closed := p.closed
	p.mu.Unlock()

	if sub != nil {
		complete(sub, poolResult{err: fmt.Errorf("%w: session %s: %v", ErrSessionExited, ps.ID, ps.handle.Err())})
	}
	if closed {
		return
	}

	log.Printf("[pool] session %s exited (%v), respawning in %s", ps.ID, ps.handle.Err(), p.cfg.RespawnBackoff)
	p.cfg.Events.Emit(OrchestratorEvent{
		Type:      EventSessionExited,
		SessionID: ps.ID,
		Message:   fmt.Sprintf("session exited: %v", ps.handle.Err()),
	})

	p.wg.Add(1)
	go p.respawn()
}

// respawn retries spawning a session every RespawnBackoff until one starts
// or the pool shuts down.
func (p *Pool) respawn() {
	defer p.wg.Done()
	for {
		timer := time.NewTimer(p.cfg.RespawnBackoff)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		ps, err := p.spawn(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			log.Printf("[pool] respawn failed: %v", err)
			continue
		}
		p.attach(ps)
		p.cfg.Events.Emit(OrchestratorEvent{Type: EventSessionRespawned, SessionID: ps.ID, Message: "session respawned"})
		return
	}
}

// Shutdown kills every session, stops respawning, and fails queued and
// in-flight submissions with ErrPoolClosed.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sessions := p.sessions
	queued := p.queue
	p.sessions = nil
	p.queue = nil

	var failed []*submission
	for _, sub := range queued {
		sub.done = true
		failed = append(failed, sub)
	}
	for _, ps := range sessions {
		if sub := ps.current; sub != nil {
			p.releaseLocked(sub)
			failed = append(failed, sub)
		}
	}
	p.mu.Unlock()

	p.cancel()
	for _, ps := range sessions {
		if err := ps.handle.Kill(); err != nil {
			log.Printf("[pool] kill session %s: %v", ps.ID, err)
		}
	}
	for _, sub := range failed {
		complete(sub, poolResult{err: ErrPoolClosed})
	}
	p.wg.Wait()
	log.Printf("[pool] shut down (%d sessions killed, %d submissions failed)", len(sessions), len(failed))
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Size     int `json:"size"`
	Sessions int `json:"sessions"`
	Busy     int `json:"busy"`
	Queued   int `json:"queued"`
}

// Stats returns the configured size, live sessions, busy sessions and queue length.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PoolStats{Size: p.cfg.Size, Sessions: len(p.sessions), Queued: len(p.queue)}
	for _, ps := range p.sessions {
		if ps.Busy {
			s.Busy++
		}
	}
	return s
}

// Sessions returns a snapshot of the live sessions in creation order.
func (p *Pool) Sessions() []PooledSession {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PooledSession, 0, len(p.sessions))
	for _, ps := range p.sessions {
		out = append(out, PooledSession{ID: ps.ID, AgentID: ps.AgentID, Busy: ps.Busy, CreatedAt: ps.CreatedAt})
	}
	return out
}

// IsComplete reports whether buf holds a full response: it contains marker,
// or it has reached minLength bytes.
func IsComplete(buf, marker string, minLength int) bool {
	if marker != "" && strings.Contains(buf, marker) {
		return true
	}
	return minLength > 0 && len(buf) >= minLength
}

// cleanOutput drops the trailing prompt marker and surrounding whitespace.
func cleanOutput(buf, marker string) string {
	if marker != "" {
		if i := strings.LastIndex(buf, marker); i >= 0 && strings.TrimSpace(buf[i+len(marker):]) == "" {
			buf = buf[:i]
		}
	}
	return strings.TrimSpace(buf)
}
