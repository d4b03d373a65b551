package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/pkg/logger"
)

// ProtocolMessage is one frame of debugger traffic: events carry Method
// and Params, command replies carry ID and Result or Error.
type ProtocolMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ProtocolError  `json:"error,omitempty"`
}

// ProtocolError is the error object of a rejected command.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client speaks the debugger wire protocol over a websocket. It implements
// CommandSender; reads happen in Run's internal loop.
type Client struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex
	nextID  int64
}

// Dial connects to a browser debugger endpoint.
func Dial(ctx context.Context, debuggerURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, debuggerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial debugger at %s: %w", debuggerURL, err)
	}

	return &Client{
		conn: conn,
		log:  logger.WithComponent("debugger"),
	}, nil
}

// Send issues one command and returns the id its reply will carry.
func (c *Client) Send(method string, params any) (int64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.nextID++
	msg := map[string]any{"id": c.nextID, "method": method}

	if params != nil {
		msg["params"] = params
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		return 0, fmt.Errorf("failed to send %s: %w", method, err)
	}

	return c.nextID, nil
}

// Close tears down the debugger connection, which also ends Run.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run drives a session until the context ends or the connection drops. It
// installs the monitors, then dispatches events and command replies from a
// single loop; window properties are polled on pollInterval. All session
// access happens on this goroutine.
func (c *Client) Run(ctx context.Context, session *Session, pollInterval time.Duration) error {
	session.Setup()

	frames := make(chan *ProtocolMessage, 256)
	readErr := make(chan error, 1)

	go func() {
		defer close(frames)

		for {
			var msg ProtocolMessage
			if err := c.conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}

			frames <- &msg
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			return fmt.Errorf("debugger connection lost: %w", err)
		case <-ticker.C:
			session.PollWindowProperties()
		case msg, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}

			c.dispatch(session, msg)
		}
	}
}

func (c *Client) dispatch(session *Session, msg *ProtocolMessage) {
	if msg.Method != "" {
		session.DispatchMessage(msg.Method, msg.Params)
		return
	}

	var cmdErr string
	if msg.Error != nil {
		cmdErr = msg.Error.Message
	}

	if !session.DispatchCommandReply(msg.ID, msg.Result, cmdErr) {
		c.log.Debug().Int64("id", msg.ID).Msg("reply for unknown command")
	}
}
