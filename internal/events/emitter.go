// ABOUTME: Builds and delivers critical lifecycle events to the owning user's live connection.
// ABOUTME: Business fields stay top-level in the envelope; delivery is best-effort, drops are counted.

package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/2389/switchboard/internal/conn"
)

// The critical event vocabulary. Per agent run, emission order among those
// emitted is: agent_started, agent_thinking (zero or more),
// tool_executing/tool_completed pairs (zero or more), agent_completed.
const (
	AgentStarted   = "agent_started"
	AgentThinking  = "agent_thinking"
	ToolExecuting  = "tool_executing"
	ToolCompleted  = "tool_completed"
	AgentCompleted = "agent_completed"
)

// criticalTypes is the closed set of event types Emit accepts.
var criticalTypes = map[string]bool{
	AgentStarted:   true,
	AgentThinking:  true,
	ToolExecuting:  true,
	ToolCompleted:  true,
	AgentCompleted: true,
}

// Protocol-reserved envelope keys. Caller-supplied fields may not collide
// with these; silent overwrite would corrupt the wire contract.
const (
	keyType      = "type"
	keyTimestamp = "timestamp"
	keyCritical  = "critical"
)

// Emitter errors. These indicate caller bugs; delivery problems are never
// surfaced as errors.
var (
	ErrUnknownEventType = errors.New("unknown critical event type")
	ErrReservedField    = errors.New("business field collides with reserved envelope key")
)

// Resolver finds a user's current connection. Implemented by the registry.
type Resolver interface {
	Resolve(userID string) *conn.Connection
}

// DropRecorder receives a record of every event that could not be delivered.
// Implementations must not block; recording is best-effort.
type DropRecorder interface {
	RecordEventDrop(ctx context.Context, userID, eventType, reason string)
}

// Stats is a snapshot of emitter counters.
type Stats struct {
	Delivered             uint64
	DroppedNoConnection   uint64
	DroppedNotOperational uint64
	TransportFailures     uint64
}

// Emitter delivers critical events. Events for a user without a live
// connection, or whose connection is not operational, are dropped with a
// recorded reason; the originating agent run is never failed by delivery.
type Emitter struct {
	resolver Resolver
	drops    DropRecorder
	logger   *slog.Logger
	now      func() time.Time

	delivered      atomic.Uint64
	noConnection   atomic.Uint64
	notOperational atomic.Uint64
	transportFails atomic.Uint64
}

// NewEmitter creates an Emitter. drops may be nil when no audit sink exists.
func NewEmitter(resolver Resolver, drops DropRecorder, logger *slog.Logger) *Emitter {
	return &Emitter{
		resolver: resolver,
		drops:    drops,
		logger:   logger,
		now:      time.Now,
	}
}

// Emit sends one critical event to userID's live connection.
//
// The outbound envelope is the union of fields spread at the top level plus
// exactly three protocol keys: type, timestamp (ISO-8601 UTC), and
// critical=true. Fields are never nested under a wrapper key; consumers
// address them by name.
//
// Returns an error only for caller bugs (unknown event type, reserved field
// collision). Undeliverable events are recorded drops and return nil.
func (e *Emitter) Emit(ctx context.Context, userID, eventType string, fields map[string]any) error {
	if !criticalTypes[eventType] {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	for key := range fields {
		if key == keyType || key == keyTimestamp || key == keyCritical {
			return fmt.Errorf("%w: %q", ErrReservedField, key)
		}
	}

	c := e.resolver.Resolve(userID)
	if c == nil {
		e.noConnection.Add(1)
		e.recordDrop(ctx, userID, eventType, "no active connection")
		return nil
	}

	envelope := make(map[string]any, len(fields)+3)
	for key, value := range fields {
		envelope[key] = value
	}
	envelope[keyType] = eventType
	envelope[keyTimestamp] = e.now().UTC().Format(time.RFC3339Nano)
	envelope[keyCritical] = true

	// Send performs the operational-state check and the write atomically
	// with respect to that connection's close path.
	if err := c.Send(envelope); err != nil {
		if errors.Is(err, conn.ErrNotOperational) {
			e.notOperational.Add(1)
			e.recordDrop(ctx, userID, eventType, "connection not operational")
			return nil
		}
		e.transportFails.Add(1)
		e.recordDrop(ctx, userID, eventType, "transport write failed")
		e.logger.Warn("critical event write failed",
			"user_id", userID,
			"event_type", eventType,
			"connection_id", c.ID,
			"error", err,
		)
		return nil
	}

	e.delivered.Add(1)
	return nil
}

func (e *Emitter) recordDrop(ctx context.Context, userID, eventType, reason string) {
	e.logger.Debug("critical event dropped",
		"user_id", userID,
		"event_type", eventType,
		"reason", reason,
	)
	if e.drops != nil {
		e.drops.RecordEventDrop(ctx, userID, eventType, reason)
	}
}

// Stats returns current counter values.
func (e *Emitter) Stats() Stats {
	return Stats{
		Delivered:             e.delivered.Load(),
		DroppedNoConnection:   e.noConnection.Load(),
		DroppedNotOperational: e.notOperational.Load(),
		TransportFailures:     e.transportFails.Load(),
	}
}
