// ABOUTME: Built-in message handlers registered on the canonical router.
// ABOUTME: Chat submission to the execution engine, ping/pong, and a typed func adapter.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/switchboard/internal/conn"
	"github.com/2389/switchboard/internal/router"
)

// Engine is the narrow interface to the agent execution backend. The engine
// runs the agent work and reports progress back through the critical event
// emitter; this package never sees those events.
type Engine interface {
	Submit(ctx context.Context, userID string, msg *router.Message) error
}

// ErrEmptyContent indicates a chat message with no content to execute.
var ErrEmptyContent = errors.New("chat message has no content")

// Typed adapts a function to the router.Handler interface for a fixed set of
// message types. Used to register new message types at runtime without a new
// handler type.
type Typed struct {
	types map[string]bool
	fn    func(ctx context.Context, userID string, c *conn.Connection, msg *router.Message) error
}

// NewTyped creates a handler accepting exactly the given types.
func NewTyped(fn func(ctx context.Context, userID string, c *conn.Connection, msg *router.Message) error, types ...string) *Typed {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return &Typed{types: set, fn: fn}
}

// Accepts implements router.Handler.
func (h *Typed) Accepts(msgType string) bool {
	return h.types[msgType]
}

// Handle implements router.Handler.
func (h *Typed) Handle(ctx context.Context, userID string, c *conn.Connection, msg *router.Message) error {
	return h.fn(ctx, userID, c, msg)
}

// Ping answers ping frames on the same connection. Keeps intermediaries and
// client keepalive logic honest without touching the engine.
type Ping struct{}

// Accepts implements router.Handler.
func (Ping) Accepts(msgType string) bool {
	return msgType == "ping"
}

// Handle implements router.Handler.
func (Ping) Handle(_ context.Context, _ string, c *conn.Connection, _ *router.Message) error {
	if c == nil {
		return nil
	}
	return c.Send(map[string]any{"type": "pong"})
}

// Chat forwards chat messages to the execution engine, preserving
// thread/run correlation fields.
type Chat struct {
	engine Engine
	logger *slog.Logger
}

// NewChat creates the chat handler.
func NewChat(engine Engine, logger *slog.Logger) *Chat {
	return &Chat{engine: engine, logger: logger}
}

// Accepts implements router.Handler.
func (h *Chat) Accepts(msgType string) bool {
	return msgType == "chat.message"
}

// Handle implements router.Handler.
func (h *Chat) Handle(ctx context.Context, userID string, _ *conn.Connection, msg *router.Message) error {
	content, _ := msg.Payload["content"].(string)
	if content == "" {
		return ErrEmptyContent
	}

	if err := h.engine.Submit(ctx, userID, msg); err != nil {
		return fmt.Errorf("submitting to engine: %w", err)
	}

	h.logger.Debug("chat message submitted",
		"user_id", userID,
		"thread_id", msg.ThreadID,
		"run_id", msg.RunID,
	)
	return nil
}
