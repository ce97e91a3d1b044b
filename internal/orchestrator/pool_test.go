package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xtechdean/ai-team-orchestrator/internal/agent"
)

// fakeSession is an in-memory agent.Session driven by the test.
type fakeSession struct {
	mu       sync.Mutex
	id       int
	onData   func(string)
	onStderr func(string)
	writes   []string
	written  chan string
	done     chan struct{}
	doneOnce sync.Once
	killed   bool
	exitErr  error
	banner   string
}

func newFakeSession(id int, banner string) *fakeSession {
	return &fakeSession{
		id:      id,
		written: make(chan string, 16),
		done:    make(chan struct{}),
		banner:  banner,
	}
}

func (f *fakeSession) Write(input string) error {
	select {
	case <-f.done:
		return agent.ErrSessionClosed
	default:
	}
	f.mu.Lock()
	f.writes = append(f.writes, input)
	f.mu.Unlock()
	f.written <- input
	return nil
}

func (f *fakeSession) OnData(fn func(string)) {
	f.mu.Lock()
	f.onData = fn
	banner := f.banner
	f.mu.Unlock()
	if banner != "" {
		fn(banner)
	}
}

func (f *fakeSession) OnStderr(fn func(string)) {
	f.mu.Lock()
	f.onStderr = fn
	f.mu.Unlock()
}

func (f *fakeSession) Done() <-chan struct{} { return f.done }

func (f *fakeSession) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitErr
}

func (f *fakeSession) Kill() error {
	f.mu.Lock()
	f.killed = true
	f.mu.Unlock()
	f.exit(nil)
	return nil
}

func (f *fakeSession) PID() int { return 1000 + f.id }

func (f *fakeSession) emit(chunk string) {
	f.mu.Lock()
	fn := f.onData
	f.mu.Unlock()
	fn(chunk)
}

func (f *fakeSession) exit(err error) {
	f.doneOnce.Do(func() {
		f.mu.Lock()
		f.exitErr = err
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeSession) isKilled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed
}

func (f *fakeSession) nextWrite(t *testing.T) string {
	t.Helper()
	select {
	case w := <-f.written:
		return w
	case <-time.After(2 * time.Second):
		t.Fatalf("session %d: no prompt written", f.id)
		return ""
	}
}

func (f *fakeSession) assertNoWrite(t *testing.T) {
	t.Helper()
	select {
	case w := <-f.written:
		t.Fatalf("session %d: unexpected prompt %q", f.id, w)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeSpawner hands out fakeSessions in order and remembers them.
type fakeSpawner struct {
	mu       sync.Mutex
	sessions []*fakeSession
	failures int
	banner   string
}

func (s *fakeSpawner) Spawn(context.Context) (agent.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("spawn refused")
	}
	f := newFakeSession(len(s.sessions)+1, s.banner)
	s.sessions = append(s.sessions, f)
	return f, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *fakeSpawner) session(i int) *fakeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[i]
}

func newTestPool(t *testing.T, size int) (*Pool, *fakeSpawner) {
	t.Helper()
	spawner := &fakeSpawner{banner: "Welcome\n> "}
	pool := NewPool(PoolConfig{
		Size:           size,
		Spawner:        spawner,
		ReadyTimeout:   time.Second,
		RespawnBackoff: 20 * time.Millisecond,
		DefaultTimeout: 5 * time.Second,
	})
	require.NoError(t, pool.Initialize(context.Background()))
	t.Cleanup(pool.Shutdown)
	return pool, spawner
}

// attachedFakes returns the fakes behind the live sessions in creation order.
func attachedFakes(t *testing.T, pool *Pool) []*fakeSession {
	t.Helper()
	live := pool.Sessions()
	out := make([]*fakeSession, 0, len(live))
	pool.mu.Lock()
	for _, ps := range pool.sessions {
		out = append(out, ps.handle.(*fakeSession))
	}
	pool.mu.Unlock()
	require.Len(t, out, len(live))
	return out
}

func TestIsComplete(t *testing.T) {
	assert.True(t, IsComplete("done\n> ", "\n> ", 50))
	assert.True(t, IsComplete(strings.Repeat("x", 50), "\n> ", 50))
	assert.False(t, IsComplete("short", "\n> ", 50))
	assert.False(t, IsComplete("", "", 0))
}

func TestCleanOutput(t *testing.T) {
	assert.Equal(t, "answer", cleanOutput("answer\n> ", "\n> "))
	assert.Equal(t, "a\n> b", cleanOutput("a\n> b", "\n> "))
}

func TestPool_InitializeToleratesFailedSpawns(t *testing.T) {
	spawner := &fakeSpawner{failures: 1, banner: "> "}
	pool := NewPool(PoolConfig{Size: 3, Spawner: spawner, ReadyTimeout: time.Second})
	defer pool.Shutdown()

	require.NoError(t, pool.Initialize(context.Background()))
	assert.Equal(t, 2, pool.Stats().Sessions)
	assert.Equal(t, 3, pool.Stats().Size)
}

func TestPool_InitializeAllFail(t *testing.T) {
	pool := NewPool(PoolConfig{Size: 2, Spawner: &fakeSpawner{failures: 2}})
	defer pool.Shutdown()

	assert.ErrorIs(t, pool.Initialize(context.Background()), ErrNoSessions)
}

func TestPool_ReadyTimeoutFailsSilentSessions(t *testing.T) {
	spawner := &fakeSpawner{}
	pool := NewPool(PoolConfig{Size: 2, Spawner: spawner, ReadyTimeout: 20 * time.Millisecond})
	defer pool.Shutdown()

	assert.ErrorIs(t, pool.Initialize(context.Background()), ErrNoSessions)
	assert.Equal(t, 0, pool.Stats().Sessions)
	require.Equal(t, 2, spawner.count())
	assert.True(t, spawner.session(0).isKilled())
	assert.True(t, spawner.session(1).isKilled())

	_, err := pool.spawn(context.Background())
	assert.ErrorIs(t, err, ErrSessionNotReady)
}

func TestPool_ReadyTimeoutShrinksPool(t *testing.T) {
	spawner := &mixedSpawner{banners: []string{"> ", "", "> "}}
	pool := NewPool(PoolConfig{Size: 3, Spawner: spawner, ReadyTimeout: 50 * time.Millisecond})
	defer pool.Shutdown()

	require.NoError(t, pool.Initialize(context.Background()))
	assert.Equal(t, 2, pool.Stats().Sessions)
	for _, f := range attachedFakes(t, pool) {
		assert.NotEmpty(t, f.banner)
	}
}

// mixedSpawner gives each spawned session the next banner; an empty banner
// makes a session that never speaks.
type mixedSpawner struct {
	mu      sync.Mutex
	banners []string
	n       int
}

func (s *mixedSpawner) Spawn(context.Context) (agent.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	banner := ""
	if s.n < len(s.banners) {
		banner = s.banners[s.n]
	}
	s.n++
	return newFakeSession(s.n, banner), nil
}

func TestPool_SubmitCompletesOnMarker(t *testing.T) {
	pool, spawner := newTestPool(t, 1)
	s := spawner.session(0)

	pending := pool.Submit(context.Background(), "say hi", 0)
	assert.Equal(t, "say hi\n", s.nextWrite(t))

	s.emit("hi there")
	s.emit("\n> ")

	out, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
	assert.Equal(t, 0, pool.Stats().Busy)
}

func TestPool_SubmitCompletesOnMinLength(t *testing.T) {
	pool, spawner := newTestPool(t, 1)
	s := spawner.session(0)

	pending := pool.Submit(context.Background(), "long", 0)
	s.nextWrite(t)
	s.emit(strings.Repeat("y", DefaultMinOutputLength))

	out, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, DefaultMinOutputLength)
}

func TestPool_NInFlightThenQueued(t *testing.T) {
	pool, spawner := newTestPool(t, 3)

	var pendings []*Pending
	for i := 0; i < 4; i++ {
		pendings = append(pendings, pool.Submit(context.Background(), "task", 0))
	}

	stats := pool.Stats()
	assert.Equal(t, 3, stats.Busy)
	assert.Equal(t, 1, stats.Queued)

	for i := 0; i < 3; i++ {
		spawner.session(i).nextWrite(t)
	}
	for _, s := range attachedFakes(t, pool) {
		s.emit("ok\n> ")
	}
	for _, p := range pendings[:3] {
		_, err := p.Wait(context.Background())
		require.NoError(t, err)
	}
}

func TestPool_QueuedGoesToFirstFreedSession(t *testing.T) {
	pool, _ := newTestPool(t, 2)
	fakes := attachedFakes(t, pool)
	first, second := fakes[0], fakes[1]

	a := pool.Submit(context.Background(), "A", 0)
	b := pool.Submit(context.Background(), "B", 0)
	c := pool.Submit(context.Background(), "C", 0)

	assert.Equal(t, "A\n", first.nextWrite(t))
	assert.Equal(t, "B\n", second.nextWrite(t))
	assert.Equal(t, 1, pool.Stats().Queued)

	first.emit("A done\n> ")
	out, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A done", out)

	assert.Equal(t, "C\n", first.nextWrite(t))
	second.assertNoWrite(t)

	first.emit("C done\n> ")
	second.emit("B done\n> ")
	out, err = c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C done", out)
	out, err = b.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B done", out)
}

func TestPool_SubmissionTimeoutFreesSession(t *testing.T) {
	pool, spawner := newTestPool(t, 1)
	s := spawner.session(0)

	slow := pool.Submit(context.Background(), "slow", 30*time.Millisecond)
	next := pool.Submit(context.Background(), "next", 0)
	s.nextWrite(t)

	_, err := slow.Wait(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionTimeout)
	assert.False(t, s.isKilled())

	assert.Equal(t, "next\n", s.nextWrite(t))
	s.emit("next done\n> ")
	out, err := next.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "next done", out)
}

func TestPool_SessionExitFailsInFlightAndRespawns(t *testing.T) {
	pool, spawner := newTestPool(t, 2)
	s := attachedFakes(t, pool)[0]

	pending := pool.Submit(context.Background(), "work", 0)
	s.nextWrite(t)
	s.exit(errors.New("signal: killed"))

	_, err := pending.Wait(context.Background())
	assert.ErrorIs(t, err, ErrSessionExited)

	assert.Eventually(t, func() bool {
		return spawner.count() == 3 && pool.Stats().Sessions == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPool_WaitCancelledRemovesFromQueue(t *testing.T) {
	pool, spawner := newTestPool(t, 1)

	busy := pool.Submit(context.Background(), "busy", 0)
	ctx, cancel := context.WithCancel(context.Background())
	queued := pool.Submit(ctx, "queued", 0)
	require.Equal(t, 1, pool.Stats().Queued)

	cancel()
	_, err := queued.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, pool.Stats().Queued)

	spawner.session(0).nextWrite(t)
	spawner.session(0).emit("done\n> ")
	_, err = busy.Wait(context.Background())
	assert.NoError(t, err)
}

func TestPool_ShutdownFailsPendingWork(t *testing.T) {
	spawner := &fakeSpawner{banner: "> "}
	pool := NewPool(PoolConfig{Size: 1, Spawner: spawner, ReadyTimeout: time.Second, RespawnBackoff: 10 * time.Millisecond})
	require.NoError(t, pool.Initialize(context.Background()))

	inFlight := pool.Submit(context.Background(), "one", 0)
	queued := pool.Submit(context.Background(), "two", 0)
	spawner.session(0).nextWrite(t)

	pool.Shutdown()

	_, err := inFlight.Wait(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	_, err = queued.Wait(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, spawner.session(0).isKilled())

	// No respawn after shutdown.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, spawner.count())

	_, err = pool.Submit(context.Background(), "late", 0).Wait(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_Execute(t *testing.T) {
	pool, spawner := newTestPool(t, 1)
	s := spawner.session(0)

	done := make(chan struct{})
	var resp *agent.Response
	var err error
	go func() {
		defer close(done)
		resp, err = pool.Execute(context.Background(), "backend", "build it", time.Second)
	}()

	s.nextWrite(t)
	assert.Equal(t, "backend", pool.Sessions()[0].AgentID)
	s.emit("built\n> ")
	<-done

	require.NoError(t, err)
	assert.Equal(t, "built", resp.Text)
	assert.False(t, resp.Structured)
}
