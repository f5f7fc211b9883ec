// ABOUTME: WebSocket-backed Transport implementation with write deadlines.
// ABOUTME: The Connection send lock provides the single-writer guarantee gorilla requires.

package conn

import (
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport adapts a gorilla WebSocket connection to the Transport
// interface. Writes are serialized by the owning Connection's send lock.
type wsTransport struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketTransport wraps ws as a Transport. A writeTimeout of zero
// disables write deadlines.
func NewWebSocketTransport(ws *websocket.Conn, writeTimeout time.Duration) Transport {
	return &wsTransport{ws: ws, writeTimeout: writeTimeout}
}

func (t *wsTransport) WriteJSON(v any) error {
	if t.writeTimeout > 0 {
		_ = t.ws.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.ws.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}
