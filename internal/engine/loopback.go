// ABOUTME: Loopback execution engine for development and end-to-end testing.
// ABOUTME: Echoes each submission back through the full critical event lifecycle.

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/switchboard/internal/events"
	"github.com/2389/switchboard/internal/router"
)

// Loopback is a stand-in execution backend. For every submission it emits
// the critical lifecycle a real agent run would produce: agent_started, one
// agent_thinking, one tool_executing/tool_completed pair, agent_completed.
// Useful for exercising clients without a real agent backend attached.
type Loopback struct {
	emitter *events.Emitter
	logger  *slog.Logger
}

// NewLoopback creates a Loopback engine reporting through emitter.
func NewLoopback(emitter *events.Emitter, logger *slog.Logger) *Loopback {
	return &Loopback{emitter: emitter, logger: logger}
}

// Submit runs the echo lifecycle asynchronously. The inbound dispatch
// returns immediately; event delivery is best-effort like any engine's.
func (l *Loopback) Submit(ctx context.Context, userID string, msg *router.Message) error {
	content, _ := msg.Payload["content"].(string)
	runID := msg.RunID

	go func() {
		// Detached from the request context: the run outlives the dispatch.
		ctx := context.WithoutCancel(ctx)

		emit := func(eventType string, fields map[string]any) {
			if err := l.emitter.Emit(ctx, userID, eventType, fields); err != nil {
				l.logger.Error("loopback emit", "event_type", eventType, "error", err)
			}
		}

		emit(events.AgentStarted, map[string]any{
			"agent_type": "Loopback",
			"run_id":     runID,
		})
		emit(events.AgentThinking, map[string]any{
			"run_id":  runID,
			"content": "echoing request",
		})
		emit(events.ToolExecuting, map[string]any{
			"run_id":    runID,
			"tool_name": "echo",
		})
		emit(events.ToolCompleted, map[string]any{
			"run_id":    runID,
			"tool_name": "echo",
			"output":    fmt.Sprintf("echo: %s", content),
		})
		emit(events.AgentCompleted, map[string]any{
			"run_id":   runID,
			"response": fmt.Sprintf("echo: %s", content),
		})
	}()

	return nil
}
