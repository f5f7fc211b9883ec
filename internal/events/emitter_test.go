// ABOUTME: Tests for critical event envelope construction and delivery gating.
// ABOUTME: Asserts flattening, reserved key rejection, drop accounting, and user isolation.

package events

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/conn"
	"github.com/2389/switchboard/internal/registry"
)

// recordingTransport captures envelopes written to it.
type recordingTransport struct {
	mu     sync.Mutex
	writes []map[string]any
}

func (r *recordingTransport) WriteJSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	envelope, ok := v.(map[string]any)
	if ok {
		r.writes = append(r.writes, envelope)
	}
	return nil
}

func (r *recordingTransport) Close() error { return nil }

func (r *recordingTransport) envelopes() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, len(r.writes))
	copy(out, r.writes)
	return out
}

// dropLog records drop notifications.
type dropLog struct {
	mu    sync.Mutex
	drops []string
}

func (d *dropLog) RecordEventDrop(_ context.Context, userID, eventType, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drops = append(d.drops, userID+"/"+eventType+"/"+reason)
}

func (d *dropLog) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.drops)
}

func readyConn(t *testing.T, id, userID string, tr conn.Transport) *conn.Connection {
	t.Helper()
	c := conn.New(id, userID, "sess_"+userID+"_web_1_deadbeef", tr, slog.Default())
	require.NoError(t, c.Transition(conn.StateAccepted))
	require.NoError(t, c.Transition(conn.StateProcessingReady))
	return c
}

func TestEnvelopeFlattening(t *testing.T) {
	reg := registry.New(slog.Default())
	e := NewEmitter(reg, nil, slog.Default())

	fields := map[string]any{"tool_name": "X", "execution_id": "Y"}

	for _, eventType := range []string{AgentStarted, AgentThinking, ToolExecuting, ToolCompleted, AgentCompleted} {
		t.Run(eventType, func(t *testing.T) {
			tr := &recordingTransport{}
			c := readyConn(t, "ws_1_1_aaaaaaaa", "user_1", tr)
			reg.Register("user_1", c)

			require.NoError(t, e.Emit(context.Background(), "user_1", eventType, fields))

			envelopes := tr.envelopes()
			require.Len(t, envelopes, 1)
			env := envelopes[0]

			// Business fields are addressable at the top level.
			assert.Equal(t, "X", env["tool_name"])
			assert.Equal(t, "Y", env["execution_id"])
			assert.NotContains(t, env, "data", "no wrapper key may reappear")

			// Exactly three protocol keys are added.
			assert.Equal(t, eventType, env["type"])
			assert.Equal(t, true, env["critical"])
			ts, ok := env["timestamp"].(string)
			require.True(t, ok)
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			require.NoError(t, err)
			assert.Equal(t, time.UTC, parsed.Location())
			assert.Len(t, env, 5)
		})
	}
}

func TestAgentStartedScenario(t *testing.T) {
	reg := registry.New(slog.Default())
	e := NewEmitter(reg, nil, slog.Default())

	tr := &recordingTransport{}
	reg.Register("user_1", readyConn(t, "ws_1_1_aaaaaaaa", "user_1", tr))

	require.NoError(t, e.Emit(context.Background(), "user_1", AgentStarted,
		map[string]any{"agent_type": "Supervisor"}))

	envelopes := tr.envelopes()
	require.Len(t, envelopes, 1)
	env := envelopes[0]
	assert.Equal(t, "agent_started", env["type"])
	assert.Equal(t, "Supervisor", env["agent_type"])
	assert.Equal(t, true, env["critical"])
	assert.NotEmpty(t, env["timestamp"])
}

func TestUnknownEventTypeRejected(t *testing.T) {
	reg := registry.New(slog.Default())
	e := NewEmitter(reg, nil, slog.Default())

	err := e.Emit(context.Background(), "user_1", "agent_paused", nil)
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestReservedFieldRejected(t *testing.T) {
	reg := registry.New(slog.Default())
	e := NewEmitter(reg, nil, slog.Default())

	tr := &recordingTransport{}
	reg.Register("user_1", readyConn(t, "ws_1_1_aaaaaaaa", "user_1", tr))

	for _, key := range []string{"type", "timestamp", "critical"} {
		err := e.Emit(context.Background(), "user_1", AgentStarted, map[string]any{key: "spoofed"})
		assert.ErrorIs(t, err, ErrReservedField, "key %q", key)
	}
	assert.Empty(t, tr.envelopes(), "rejected events must not reach the transport")
}

func TestNoConnectionIsRecordedNoOp(t *testing.T) {
	reg := registry.New(slog.Default())
	drops := &dropLog{}
	e := NewEmitter(reg, drops, slog.Default())

	require.NoError(t, e.Emit(context.Background(), "user_absent", AgentCompleted, nil))

	assert.Equal(t, 1, drops.count())
	assert.Equal(t, uint64(1), e.Stats().DroppedNoConnection)
}

func TestClosingConnectionDropsWithoutWrite(t *testing.T) {
	reg := registry.New(slog.Default())
	drops := &dropLog{}
	e := NewEmitter(reg, drops, slog.Default())

	tr := &recordingTransport{}
	c := readyConn(t, "ws_1_1_aaaaaaaa", "user_1", tr)
	reg.Register("user_1", c)

	// Mid-run the connection starts closing.
	require.NoError(t, c.Transition(conn.StateClosing))

	require.NoError(t, e.Emit(context.Background(), "user_1", ToolCompleted,
		map[string]any{"tool_name": "search"}))

	assert.Empty(t, tr.envelopes(), "no transport write after CLOSING")
	assert.Equal(t, uint64(1), e.Stats().DroppedNotOperational)
	assert.Equal(t, 1, drops.count())
}

func TestEmissionOrderPreserved(t *testing.T) {
	reg := registry.New(slog.Default())
	e := NewEmitter(reg, nil, slog.Default())

	tr := &recordingTransport{}
	reg.Register("user_1", readyConn(t, "ws_1_1_aaaaaaaa", "user_1", tr))

	sequence := []string{AgentStarted, AgentThinking, ToolExecuting, ToolCompleted, AgentCompleted}
	for _, eventType := range sequence {
		require.NoError(t, e.Emit(context.Background(), "user_1", eventType, nil))
	}

	envelopes := tr.envelopes()
	require.Len(t, envelopes, len(sequence))
	for i, eventType := range sequence {
		assert.Equal(t, eventType, envelopes[i]["type"])
	}
}

func TestCrossUserIsolationUnderConcurrency(t *testing.T) {
	reg := registry.New(slog.Default())
	e := NewEmitter(reg, nil, slog.Default())

	trA := &recordingTransport{}
	trB := &recordingTransport{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reg.Register("user_a", readyConn(t, "ws_1_1_aaaaaaaa", "user_a", trA))
		for i := 0; i < 100; i++ {
			require.NoError(t, e.Emit(context.Background(), "user_a", AgentThinking,
				map[string]any{"owner": "a"}))
		}
	}()
	go func() {
		defer wg.Done()
		reg.Register("user_b", readyConn(t, "ws_1_2_bbbbbbbb", "user_b", trB))
		for i := 0; i < 100; i++ {
			require.NoError(t, e.Emit(context.Background(), "user_b", AgentThinking,
				map[string]any{"owner": "b"}))
		}
	}()
	wg.Wait()

	for _, env := range trA.envelopes() {
		assert.Equal(t, "a", env["owner"], "user_a's connection received another user's event")
	}
	for _, env := range trB.envelopes() {
		assert.Equal(t, "b", env["owner"], "user_b's connection received another user's event")
	}
	assert.Len(t, trA.envelopes(), 100)
	assert.Len(t, trB.envelopes(), 100)
}
