package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write an event to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size in bytes.
	maxMessageSize = 4096

	// Outbound queue per connection; slow consumers are dropped.
	sendQueueSize = 64
)

// Conn is one live client connection. The broadcaster and session registry
// only see this interface so tests can substitute recording fakes.
type Conn interface {
	// UserID returns the identity attached at admission.
	UserID() string

	// Send enqueues an event for delivery. Best-effort: events to a closed
	// or saturated connection are dropped.
	Send(event Event)

	// Close tears the connection down. Idempotent.
	Close()
}

// wsConn wraps a gorilla websocket connection with a buffered outbound
// queue drained by a single writer goroutine.
type wsConn struct {
	userID string
	ws     *websocket.Conn
	send   chan Event

	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(userID string, ws *websocket.Conn) *wsConn {
	return &wsConn{
		userID: userID,
		ws:     ws,
		send:   make(chan Event, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *wsConn) UserID() string {
	return c.userID
}

func (c *wsConn) Send(event Event) {
	select {
	case <-c.done:
	case c.send <- event:
	default:
		// Queue full: the peer is too slow to matter.
		slog.Warn("dropping event for slow consumer", "user", c.userID, "event", event.Type)
	}
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with pings. One writer per connection; gorilla allows at
// most one concurrent writer.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case event := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound envelopes and hands them to the dispatcher. It
// returns when the peer goes away; the caller runs the disconnect path.
func (c *wsConn) readPump(dispatch func(Request)) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var event Request
		if err := c.ws.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("read error", "user", c.userID, "err", err)
			}
			return
		}
		dispatch(event)
	}
}
