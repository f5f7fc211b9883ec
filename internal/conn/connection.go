// ABOUTME: Represents one duplex client connection and its state-gated send path.
// ABOUTME: The state check and the transport write share one mutex, so close cannot interleave.

package conn

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNotOperational indicates a send was attempted while the connection was
// not in StateProcessingReady. The payload is never handed to the transport.
var ErrNotOperational = errors.New("connection not operational")

// Transport is the narrow interface to the underlying duplex channel.
// Production connections wrap a WebSocket; tests substitute recorders.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}

// Connection is one physical duplex channel to one client. It owns the
// lifecycle state for that channel and refuses sends from any state other
// than StateProcessingReady.
type Connection struct {
	ID        string
	UserID    string
	SessionID string
	CreatedAt time.Time

	mu              sync.Mutex
	state           State
	lastActivity    time.Time
	transport       Transport
	transportClosed bool
	logger          *slog.Logger
}

// New creates a Connection in StateConnecting.
func New(id, userID, sessionID string, transport Transport, logger *slog.Logger) *Connection {
	now := time.Now()
	return &Connection{
		ID:           id,
		UserID:       userID,
		SessionID:    sessionID,
		CreatedAt:    now,
		state:        StateConnecting,
		lastActivity: now,
		transport:    transport,
		logger:       logger,
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transition moves the connection to target, enforcing the state machine.
func (c *Connection) Transition(target State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(target)
}

func (c *Connection) transitionLocked(target State) error {
	next, err := Transition(c.state, target)
	if err != nil {
		return err
	}
	if next != c.state {
		c.logger.Debug("connection state change",
			"connection_id", c.ID,
			"from", string(c.state),
			"to", string(next),
		)
		c.state = next
	}
	return nil
}

// Send writes payload to the transport if and only if the connection is
// operational. The operational check and the write happen under the same
// lock, so the close path cannot slip between them. Returns
// ErrNotOperational (wrapped with the observed state) when the send is
// refused; the transport sees nothing in that case.
func (c *Connection) Send(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !IsOperational(c.state) {
		return fmt.Errorf("%w: state %s", ErrNotOperational, c.state)
	}

	if err := c.transport.WriteJSON(payload); err != nil {
		return fmt.Errorf("transport write: %w", err)
	}
	c.lastActivity = time.Now()
	return nil
}

// Close drives the connection through StateClosing to StateClosed and closes
// the transport exactly once. Safe to call multiple times and from any state.
func (c *Connection) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateClosed {
		// Closing is a courtesy waypoint; the terminal move is always legal.
		_ = c.transitionLocked(StateClosing)
		_ = c.transitionLocked(StateClosed)
		c.logger.Debug("connection closed", "connection_id", c.ID, "reason", reason)
	}
	return c.closeTransportLocked()
}

// Fail marks the connection failed and closes the transport. Used when the
// transport reported an error rather than the application choosing to close.
func (c *Connection) Fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateFailed {
		_ = c.transitionLocked(StateFailed)
		c.logger.Debug("connection failed", "connection_id", c.ID, "reason", reason)
	}
	_ = c.closeTransportLocked()
}

func (c *Connection) closeTransportLocked() error {
	if c.transportClosed {
		return nil
	}
	c.transportClosed = true
	return c.transport.Close()
}

// Touch records inbound activity on the connection.
func (c *Connection) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// LastActivity returns the time of the most recent send or Touch.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}
