package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 128 * 1024
)

// Client is one live connection. The gateway goroutine reads from the socket
// while writePump drains the bounded send queue, so a slow peer never blocks
// a broadcaster.
type Client struct {
	UserID string

	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	logger *logger.Logger
}

// newClient wraps a websocket connection. conn may be nil in tests; the
// send queue still works and close remains safe.
func newClient(userID string, conn *websocket.Conn, sendBuffer int, log *logger.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
		logger: log,
	}
}

// enqueue places a pre-marshalled frame on the send queue without blocking.
// Reports false when the queue is full or the connection is closed.
func (c *Client) enqueue(raw []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

// sendEvent marshals and enqueues one event for this connection only.
func (c *Client) sendEvent(event string, data any) {
	raw, err := json.Marshal(model.Envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	if !c.enqueue(raw) {
		c.logger.Warn("send queue full, dropping event",
			zap.String("event", event), zap.String("user_id", c.UserID))
	}
}

// sendError emits the scoped error event for a failed action.
func (c *Client) sendError(kind, message string) {
	c.sendEvent(model.EventError, model.ErrorPayload{Kind: kind, Message: message})
}

// close shuts the connection down once. Safe to call from any goroutine.
func (c *Client) close() {
	c.once.Do(func() {
		close(c.closed)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writePump drains the send queue onto the socket, pinging on an interval to
// detect dead peers.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readLoop reads event envelopes until the transport fails, passing each to
// handle. A malformed frame is a validation error, not a disconnect.
func (c *Client) readLoop(handle func(model.Envelope)) {
	defer c.close()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}
		var env model.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.sendError("validation", "malformed event")
			continue
		}
		handle(env)
	}
}
