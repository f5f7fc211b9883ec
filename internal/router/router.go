// ABOUTME: Canonical message router: ordered handler registry with first-match-wins dispatch.
// ABOUTME: One instance per process, constructed at startup and injected everywhere.

package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/2389/switchboard/internal/conn"
)

// Message is the inbound envelope consumed from the transport. It exists
// only for the duration of one dispatch call.
type Message struct {
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
	ThreadID string         `json:"thread_id,omitempty"`
	RunID    string         `json:"run_id,omitempty"`
}

// Handler processes inbound messages of the types it accepts.
type Handler interface {
	// Accepts reports whether this handler processes the given message type.
	Accepts(msgType string) bool
	// Handle processes one message for one user. Errors are recorded by the
	// router; they never abort the dispatch loop.
	Handle(ctx context.Context, userID string, c *conn.Connection, msg *Message) error
}

// Stats is a point-in-time snapshot of router counters.
type Stats struct {
	HandlerCount    int
	MessagesRouted  uint64
	Unroutable      uint64
	HandlerErrors   uint64
	HandlerPanics   uint64
}

// Router dispatches each inbound message to the first registered handler
// that accepts its type. The handler list is read-mostly: registration takes
// the write lock, dispatch reads a snapshot.
type Router struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger

	routed     atomic.Uint64
	unroutable atomic.Uint64
	errors     atomic.Uint64
	panics     atomic.Uint64
}

// New creates an empty Router.
func New(logger *slog.Logger) *Router {
	return &Router{logger: logger}
}

// Add appends a handler. Registration order is significant: earlier handlers
// win ties. Safe to call at runtime; subsequent Route calls observe it.
func (r *Router) Add(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Remove deletes a previously added handler, preserving the order of the
// rest. Removing a handler that was never added is a no-op.
func (r *Router) Remove(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.handlers {
		if existing == h {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return
		}
	}
}

// Route dispatches msg to the first handler accepting its type and reports
// whether any handler accepted it. Unknown types are recorded and return
// false; they never raise. Handler errors and panics are contained and
// counted so one user's failure cannot take down the dispatch loop.
func (r *Router) Route(ctx context.Context, userID string, c *conn.Connection, msg *Message) bool {
	if msg == nil || msg.Type == "" {
		r.unroutable.Add(1)
		r.logger.Warn("message missing type", "user_id", userID)
		return false
	}

	r.mu.RLock()
	handlers := make([]Handler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, h := range handlers {
		if !h.Accepts(msg.Type) {
			continue
		}
		r.invoke(ctx, h, userID, c, msg)
		r.routed.Add(1)
		return true
	}

	r.unroutable.Add(1)
	r.logger.Debug("no handler for message type",
		"type", msg.Type,
		"user_id", userID,
	)
	return false
}

// invoke runs one handler with panic containment.
func (r *Router) invoke(ctx context.Context, h Handler, userID string, c *conn.Connection, msg *Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.logger.Error("handler panic",
				"type", msg.Type,
				"user_id", userID,
				"panic", rec,
			)
		}
	}()

	if err := h.Handle(ctx, userID, c, msg); err != nil {
		r.errors.Add(1)
		r.logger.Warn("handler error",
			"type", msg.Type,
			"user_id", userID,
			"error", err,
		)
	}
}

// Stats returns current counter values.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	count := len(r.handlers)
	r.mu.RUnlock()

	return Stats{
		HandlerCount:   count,
		MessagesRouted: r.routed.Load(),
		Unroutable:     r.unroutable.Load(),
		HandlerErrors:  r.errors.Load(),
		HandlerPanics:  r.panics.Load(),
	}
}
