// Package livestream exposes a capture session's live event feed over
// websockets. It owns connection upgrades, per-connection write
// serialization and the control-message read loop; distribution policy
// (throttling, filtering, snapshots) lives in the broadcaster.
package livestream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// ClientConn adapts one *websocket.Conn to the broadcaster's Client
// interface. gorilla/websocket allows only one concurrent writer per
// connection, so every write goes through the mutex.
type ClientConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClientConn wraps an upgraded websocket connection.
func NewClientConn(conn *websocket.Conn) *ClientConn {
	return &ClientConn{conn: conn}
}

// Send writes a JSON message to the client.
func (c *ClientConn) Send(message any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	return c.conn.WriteJSON(message)
}

// Close sends a close control frame with the given code and reason, then
// tears down the underlying connection.
func (c *ClientConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)

	return c.conn.Close()
}

// RemoteAddr reports the peer address for logging.
func (c *ClientConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
