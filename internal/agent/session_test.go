package agent

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector gathers chunks delivered to a session handler.
type collector struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *collector) add(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.WriteString(chunk)
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func TestClaudeSession_EchoRoundTrip(t *testing.T) {
	spawner := &ProcessSpawner{Command: "cat"}
	sess, err := spawner.Spawn(context.Background())
	require.NoError(t, err)
	defer sess.Kill()

	assert.NotZero(t, sess.PID())

	var out collector
	sess.OnData(out.add)

	require.NoError(t, sess.Write("hello session\n"))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "hello session")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClaudeSession_BuffersBeforeHandler(t *testing.T) {
	sess := NewClaudeSession(context.Background(), "sh", "-c", "echo early; echo oops >&2; sleep 5")
	require.NoError(t, sess.Start())
	defer sess.Kill()

	time.Sleep(200 * time.Millisecond)

	var out, errOut collector
	sess.OnData(out.add)
	sess.OnStderr(errOut.add)

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "early") && strings.Contains(errOut.String(), "oops")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChunkSink_ReplayKeepsOrder(t *testing.T) {
	var sink chunkSink
	for i := 0; i < 50; i++ {
		sink.deliver(strconv.Itoa(i))
	}

	var (
		mu  sync.Mutex
		got []string
	)
	handler := func(chunk string) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		got = append(got, chunk)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sink.set(handler)
	}()
	go func() {
		defer wg.Done()
		// Wait until the handler is installed so these race the replay.
		for {
			sink.mu.Lock()
			installed := sink.fn != nil
			sink.mu.Unlock()
			if installed {
				break
			}
			time.Sleep(50 * time.Microsecond)
		}
		for i := 50; i < 100; i++ {
			sink.deliver(strconv.Itoa(i))
		}
	}()
	wg.Wait()

	want := make([]string, 100)
	for i := range want {
		want[i] = strconv.Itoa(i)
	}
	assert.Equal(t, want, got)
}

func TestClaudeSession_DoneAfterExit(t *testing.T) {
	sess := NewClaudeSession(context.Background(), "sh", "-c", "exit 2")
	require.NoError(t, sess.Start())

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not exit")
	}
	assert.Error(t, sess.Err())
	assert.ErrorIs(t, sess.Write("x"), ErrSessionClosed)
}

func TestClaudeSession_Kill(t *testing.T) {
	sess := NewClaudeSession(context.Background(), "sleep", "30")
	require.NoError(t, sess.Start())

	require.NoError(t, sess.Kill())
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("killed session did not report done")
	}
	// Kill is idempotent.
	assert.NoError(t, sess.Kill())
}
