// ABOUTME: WebSocket handshake, connection lifecycle, and the per-connection read loop.
// ABOUTME: Each connection's inbound stream has at most one in-flight dispatch at a time.

package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/conn"
	"github.com/2389/switchboard/internal/router"
	"github.com/2389/switchboard/internal/store"
)

// handleWS upgrades the request, authenticates the user, and services the
// connection until the client goes away or the server shuts down.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := g.authenticateHandshake(r)
	if err != nil {
		g.logger.Warn("handshake rejected", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		g.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	if g.config.Gateway.MaxMessageBytes > 0 {
		ws.SetReadLimit(g.config.Gateway.MaxMessageBytes)
	}

	connID := g.idgen.Connection()
	sessionID := g.idgen.Session(userID, "ws")

	c := conn.New(connID, userID, sessionID,
		conn.NewWebSocketTransport(ws, g.config.Gateway.WriteTimeout),
		g.logger.With("component", "connection"),
	)

	if err := c.Transition(conn.StateAccepted); err != nil {
		c.Fail("accept transition failed")
		return
	}

	// Session records are best-effort; a storage hiccup must not refuse the
	// connection.
	if err := g.store.CreateSession(r.Context(), &store.Session{ID: sessionID, UserID: userID}); err != nil {
		g.logger.Warn("session persist failed", "session_id", sessionID, "error", err)
	}

	g.registry.Register(userID, c)
	defer g.registry.Unregister(c)

	if err := c.Transition(conn.StateProcessingReady); err != nil {
		c.Fail("ready transition failed")
		return
	}

	if err := c.Send(map[string]any{
		"type":          "connection.ready",
		"connection_id": connID,
		"session_id":    sessionID,
	}); err != nil {
		c.Fail("welcome write failed")
		return
	}

	g.logger.Info("client connected",
		"user_id", userID,
		"connection_id", connID,
		"session_id", sessionID,
	)

	g.readLoop(r.Context(), ws, c)
}

// authenticateHandshake resolves the user identity for an upgrade request.
// With a verifier configured the bearer token decides; without one (dev
// mode) the client names itself via the user_id query parameter.
func (g *Gateway) authenticateHandshake(r *http.Request) (string, error) {
	if g.verifier != nil {
		return auth.Authenticate(r, g.verifier)
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return "", errors.New("user_id query parameter required when auth is disabled")
	}
	return userID, nil
}

// readLoop decodes and dispatches inbound messages one at a time. The loop
// itself is the per-connection serialization point: the next read does not
// start until the previous dispatch returned.
func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, c *conn.Connection) {
	for {
		var msg router.Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				_ = c.Close("client closed")
			} else {
				c.Fail("read error: " + err.Error())
			}
			g.logger.Info("client disconnected",
				"user_id", c.UserID,
				"connection_id", c.ID,
				"state", string(c.State()),
			)
			return
		}
		c.Touch()

		if msg.RunID != "" && g.replays.Duplicate(c.UserID+"/"+msg.ThreadID+"/"+msg.RunID) {
			g.logger.Debug("duplicate message suppressed",
				"user_id", c.UserID,
				"thread_id", msg.ThreadID,
				"run_id", msg.RunID,
			)
			continue
		}

		routed := g.router.Route(ctx, c.UserID, c, &msg)
		g.recordRouting(ctx, c, msg.Type, routed)

		if !routed {
			// The transport protocol defines an explicit unsupported
			// acknowledgment; best-effort, the connection may be closing.
			_ = c.Send(map[string]any{
				"type":             "error",
				"error":            "unsupported message type",
				"unsupported_type": msg.Type,
			})
		}
	}
}
