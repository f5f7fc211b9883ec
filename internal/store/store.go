// ABOUTME: Store interface and record types for session and audit persistence.
// ABOUTME: Message/thread content is an external collaborator's concern and is not stored here.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound indicates the requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Audit record kinds.
const (
	AuditRouted     = "routed"
	AuditUnroutable = "unroutable"
	AuditEventDrop  = "event-drop"
)

// Session is the logical unit of a user's continuous interaction. A session
// may outlive individual connections across reconnects; expiry policy lives
// with the caller.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// AuditRecord captures one routing or delivery outcome for later correlation
// via its structured identifier.
type AuditRecord struct {
	ID           string
	Kind         string
	UserID       string
	ConnectionID string
	Subject      string // message type or event type
	Detail       string
	CreatedAt    time.Time
}

// Store persists sessions and audit records.
type Store interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	SaveAuditRecord(ctx context.Context, record *AuditRecord) error
	ListAuditRecords(ctx context.Context, userID string, limit int) ([]*AuditRecord, error)

	Close() error
}
