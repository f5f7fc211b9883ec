// ABOUTME: Connection lifecycle state machine gating all send operations.
// ABOUTME: Transitions are monotonic forward; close/fail is always allowed and idempotent.

package conn

import (
	"errors"
	"fmt"
)

// State is a connection's lifecycle state.
type State string

// Connection states. Only StateProcessingReady permits application sends.
const (
	StateConnecting      State = "connecting"
	StateAccepted        State = "accepted"
	StateProcessingReady State = "processing_ready"
	StateClosing         State = "closing"
	StateClosed          State = "closed"
	StateFailed          State = "failed"
	StateReconnecting    State = "reconnecting"
)

// ErrInvalidTransition indicates an illegal state machine move. This is a
// programming error: callers are expected to know their current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// IsOperational reports whether application messages may be sent from s.
func IsOperational(s State) bool {
	return s == StateProcessingReady
}

// isTerminal reports whether s is a resting state that any state may reach.
func isTerminal(s State) bool {
	return s == StateClosed || s == StateFailed
}

// forward enumerates the legal non-terminal transitions.
var forward = map[State][]State{
	StateConnecting:      {StateAccepted},
	StateAccepted:        {StateProcessingReady, StateClosing},
	StateProcessingReady: {StateClosing, StateReconnecting},
	StateClosing:         {},
	StateClosed:          {StateReconnecting},
	StateFailed:          {StateReconnecting},
	StateReconnecting:    {StateConnecting},
}

// Transition validates a move from current to target and returns the new
// state. Any state may move to StateClosed or StateFailed, and repeating a
// terminal state is an idempotent no-op. Everything else must follow the
// forward table; illegal moves return ErrInvalidTransition.
func Transition(current, target State) (State, error) {
	if isTerminal(target) {
		return target, nil
	}
	for _, next := range forward[current] {
		if next == target {
			return target, nil
		}
	}
	return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}
