// ABOUTME: Audit record creation for routing outcomes and dropped critical events.
// ABOUTME: Implements events.DropRecorder; all writes are best-effort.

package gateway

import (
	"context"

	"github.com/2389/switchboard/internal/conn"
	"github.com/2389/switchboard/internal/store"
)

// recordRouting writes one audit record for an inbound message dispatch.
func (g *Gateway) recordRouting(ctx context.Context, c *conn.Connection, msgType string, routed bool) {
	kind := store.AuditRouted
	if !routed {
		kind = store.AuditUnroutable
	}

	record := &store.AuditRecord{
		ID:           g.idgen.Audit(kind, c.UserID),
		Kind:         kind,
		UserID:       c.UserID,
		ConnectionID: c.ID,
		Subject:      msgType,
	}
	if err := g.store.SaveAuditRecord(ctx, record); err != nil {
		g.logger.Warn("audit record write failed", "kind", kind, "error", err)
	}
}

// RecordEventDrop implements events.DropRecorder for the emitter.
func (g *Gateway) RecordEventDrop(ctx context.Context, userID, eventType, reason string) {
	record := &store.AuditRecord{
		ID:      g.idgen.Audit(store.AuditEventDrop, userID),
		Kind:    store.AuditEventDrop,
		UserID:  userID,
		Subject: eventType,
		Detail:  reason,
	}
	if err := g.store.SaveAuditRecord(ctx, record); err != nil {
		g.logger.Warn("audit record write failed", "kind", store.AuditEventDrop, "error", err)
	}
}
