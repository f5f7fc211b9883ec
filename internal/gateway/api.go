// ABOUTME: Health and introspection HTTP endpoints.
// ABOUTME: Stats expose router, emitter, and connection counters as JSON.

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the gateway is serving. Includes the
// number of connected users for operators.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ready":           true,
		"connected_users": g.registry.Count(),
	})
}

// handleStats returns router and emitter counters.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	routerStats := g.router.Stats()
	emitterStats := g.emitter.Stats()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"router": map[string]any{
			"handler_count":   routerStats.HandlerCount,
			"messages_routed": routerStats.MessagesRouted,
			"unroutable":      routerStats.Unroutable,
			"handler_errors":  routerStats.HandlerErrors,
			"handler_panics":  routerStats.HandlerPanics,
		},
		"emitter": map[string]any{
			"delivered":               emitterStats.Delivered,
			"dropped_no_connection":   emitterStats.DroppedNoConnection,
			"dropped_not_operational": emitterStats.DroppedNotOperational,
			"transport_failures":      emitterStats.TransportFailures,
		},
		"connected_users": g.registry.Count(),
	})
}

// handleAudit returns recent audit records for a user.
func (g *Gateway) handleAudit(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := g.store.ListAuditRecords(r.Context(), userID, limit)
	if err != nil {
		g.logger.Error("listing audit records", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	type auditEntry struct {
		ID           string `json:"id"`
		Kind         string `json:"kind"`
		ConnectionID string `json:"connection_id,omitempty"`
		Subject      string `json:"subject"`
		Detail       string `json:"detail,omitempty"`
		CreatedAt    string `json:"created_at"`
	}

	entries := make([]auditEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, auditEntry{
			ID:           rec.ID,
			Kind:         rec.Kind,
			ConnectionID: rec.ConnectionID,
			Subject:      rec.Subject,
			Detail:       rec.Detail,
			CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"user_id": userID,
		"records": entries,
	})
}
