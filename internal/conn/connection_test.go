// ABOUTME: Tests for state-gated sends on a Connection.
// ABOUTME: Asserts zero transport writes from every non-operational state.

package conn

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport captures writes for assertions.
type recordingTransport struct {
	mu     sync.Mutex
	writes []any
	closed int
	err    error
}

func (r *recordingTransport) WriteJSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.writes = append(r.writes, v)
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *recordingTransport) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

func (r *recordingTransport) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func newTestConnection(tr Transport) *Connection {
	return New("ws_1700000000000_1_deadbeef", "user_1", "sess_user-1_web_1700000000000_deadbeef", tr, slog.Default())
}

func TestSendRequiresProcessingReady(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestConnection(tr)

	require.NoError(t, c.Transition(StateAccepted))
	require.NoError(t, c.Transition(StateProcessingReady))

	require.NoError(t, c.Send(map[string]any{"type": "pong"}))
	assert.Equal(t, 1, tr.writeCount())
}

func TestSendRejectedFromEveryNonOperationalState(t *testing.T) {
	// Drive a fresh connection into each non-operational state and confirm
	// the transport never sees a write.
	setups := map[State]func(c *Connection){
		StateConnecting: func(c *Connection) {},
		StateAccepted: func(c *Connection) {
			require.NoError(t, c.Transition(StateAccepted))
		},
		StateClosing: func(c *Connection) {
			require.NoError(t, c.Transition(StateAccepted))
			require.NoError(t, c.Transition(StateClosing))
		},
		StateClosed: func(c *Connection) {
			require.NoError(t, c.Transition(StateClosed))
		},
		StateFailed: func(c *Connection) {
			require.NoError(t, c.Transition(StateFailed))
		},
		StateReconnecting: func(c *Connection) {
			require.NoError(t, c.Transition(StateAccepted))
			require.NoError(t, c.Transition(StateProcessingReady))
			require.NoError(t, c.Transition(StateReconnecting))
		},
	}

	for state, setup := range setups {
		t.Run(string(state), func(t *testing.T) {
			tr := &recordingTransport{}
			c := newTestConnection(tr)
			setup(c)
			require.Equal(t, state, c.State())

			err := c.Send(map[string]any{"type": "agent_started"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotOperational))
			assert.Equal(t, 0, tr.writeCount(), "non-operational send must not reach transport")
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestConnection(tr)
	require.NoError(t, c.Transition(StateAccepted))
	require.NoError(t, c.Transition(StateProcessingReady))

	require.NoError(t, c.Close("client went away"))
	require.NoError(t, c.Close("client went away"))

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, tr.closeCount(), "transport closed exactly once")
}

func TestFailClosesTransport(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestConnection(tr)

	c.Fail("read error")
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 1, tr.closeCount())

	err := c.Send("anything")
	assert.True(t, errors.Is(err, ErrNotOperational))
	assert.Equal(t, 0, tr.writeCount())
}

func TestConcurrentSendAndClose(t *testing.T) {
	// Hammer Send while Close runs. Every write the transport observed must
	// have been issued before the close completed; none after.
	tr := &recordingTransport{}
	c := newTestConnection(tr)
	require.NoError(t, c.Transition(StateAccepted))
	require.NoError(t, c.Transition(StateProcessingReady))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Send(map[string]any{"seq": j})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.Close("shutdown")
	}()
	wg.Wait()

	writesAtClose := tr.writeCount()
	err := c.Send("late")
	require.Error(t, err)
	assert.Equal(t, writesAtClose, tr.writeCount())
}

func TestSendWrapsTransportError(t *testing.T) {
	sentinel := errors.New("broken pipe")
	tr := &recordingTransport{err: sentinel}
	c := newTestConnection(tr)
	require.NoError(t, c.Transition(StateAccepted))
	require.NoError(t, c.Transition(StateProcessingReady))

	err := c.Send("payload")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
}
