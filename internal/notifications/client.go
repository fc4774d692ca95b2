package notifications

import (
	"log/slog"
	"sync"
	"time"

	"knot/internal/middleware"
	"knot/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 256
)

// Client is the middleman between one socket and the hub. The feed is
// server-push only; inbound frames are read to service pings and closes.
type Client struct {
	hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	UserID string

	closeOnce  sync.Once
	done       chan struct{}
	closeFrame []byte
	writerDone chan struct{}
}

// NewClient creates a Client with a buffered outbound queue.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),

		writerDone: make(chan struct{}),
	}
}

// Serve runs the write pump alongside ReadPump and returns once both are
// done, so the connection is not handed back while still being written.
func (c *Client) Serve() {
	go c.WritePump()
	c.ReadPump()
	select {
	case <-c.writerDone:
	case <-time.After(writeWait):
	}
}

// ReadPump drains the socket until it closes, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.stop()
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.Logger.Warn("feed socket read failed", slog.String("user_id", c.UserID), slog.String("error", err.Error()))
			}
			return
		}
	}
}

// WritePump writes queued messages and pings until the socket fails or the
// client is stopped. It is the only goroutine that writes to Conn, including
// the final close frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case <-c.done:
			frame := c.closeFrame
			if frame == nil {
				frame = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			}
			_ = c.Conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(writeWait))
			return
		case message := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) stop() {
	c.closeWith(nil)
}

// closeWith stops the client; the write pump sends frame as its close
// message. Only the first call has an effect.
func (c *Client) closeWith(frame []byte) {
	c.closeOnce.Do(func() {
		c.closeFrame = frame
		close(c.done)
	})
}

// TrySend queues a message without blocking. A full buffer drops the message
// and the client is told so it can re-fetch.
func (c *Client) TrySend(message []byte) bool {
	select {
	case <-c.done:
		observability.WebSocketDrops.WithLabelValues("closed").Inc()
		return false
	default:
	}

	select {
	case c.Send <- message:
		return true
	default:
	}

	observability.WebSocketDrops.WithLabelValues("full").Inc()
	middleware.Logger.Warn("feed buffer full, dropped message", slog.String("user_id", c.UserID))
	select {
	case c.Send <- []byte(droppedNotice):
	default:
	}
	return false
}
