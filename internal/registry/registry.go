// ABOUTME: Owns the user-to-connection mapping and enforces per-user isolation.
// ABOUTME: Last-registered wins on reconnect; stale unregisters cannot evict newer connections.

package registry

import (
	"log/slog"
	"sync"

	"github.com/2389/switchboard/internal/conn"
)

// Registry maps each user to their single current connection for event
// delivery. It is the exclusive owner of connections; everything else holds
// references resolved through it. All operations on the map are mutually
// exclusive, so two concurrent reconnects for one user cannot produce an
// inconsistent mapping.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]*conn.Connection
	logger *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*conn.Connection),
		logger: logger,
	}
}

// Register makes c the current connection for userID. If another connection
// was registered for that user it is displaced and closed: the newest
// registration always wins.
func (r *Registry) Register(userID string, c *conn.Connection) {
	r.mu.Lock()
	previous := r.conns[userID]
	r.conns[userID] = c
	total := len(r.conns)
	r.mu.Unlock()

	if previous != nil && previous != c {
		_ = previous.Close("displaced by reconnect")
		r.logger.Info("connection displaced by reconnect",
			"user_id", userID,
			"old_connection_id", previous.ID,
			"new_connection_id", c.ID,
		)
	}

	r.logger.Info("connection registered",
		"user_id", userID,
		"connection_id", c.ID,
		"total_users", total,
	)
}

// Resolve returns the user's current connection, or nil if none is active.
func (r *Registry) Resolve(userID string) *conn.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[userID]
}

// Unregister removes c from the mapping. The entry is dropped only when it
// still points at this exact connection, so a slow close of a displaced
// connection never evicts its replacement. The connection's state is owned
// by the caller; Unregister only severs the mapping.
func (r *Registry) Unregister(c *conn.Connection) {
	r.mu.Lock()
	current, ok := r.conns[c.UserID]
	if ok && current == c {
		delete(r.conns, c.UserID)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if ok && current == c {
		r.logger.Info("connection unregistered",
			"user_id", c.UserID,
			"connection_id", c.ID,
			"total_users", total,
		)
	}
}

// Count returns the number of users with an active connection.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes and drops every registered connection. Used on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	conns := make([]*conn.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*conn.Connection)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(reason)
	}
}
