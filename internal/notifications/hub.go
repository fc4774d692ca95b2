// Package notifications fans feed events out to WebSocket clients across instances.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"knot/internal/middleware"
	"knot/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerFull  = errors.New("server connection limit reached")
	ErrUserFull    = errors.New("user connection limit reached")
	ErrHubShutdown = errors.New("hub is shutting down")
)

// Hub maps user id to the set of that user's open feed sockets.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool

	maxPerUser int
	maxTotal   int
}

// NewHub creates an empty hub with the default connection caps.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]map[*Client]struct{}),
		maxPerUser: maxConnsPerUser,
		maxTotal:   maxTotalConns,
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "feed hub" }

// Register adds a connection for userID. It fails when a cap is reached.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubShutdown
	}
	if h.totalConns >= h.maxTotal {
		return nil, ErrServerFull
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= h.maxPerUser {
		if len(m) == 0 {
			delete(h.conns, userID)
		}
		return nil, ErrUserFull
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnections.Inc()
	return client, nil
}

// UnregisterClient removes a client. Removing an unknown client is a no-op.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; exists {
		delete(m, client)
		h.totalConns--
		observability.WebSocketConnections.Dec()
	}
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
}

// Broadcast sends message to all connections for userID.
func (h *Hub) Broadcast(userID string, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for c := range h.conns[userID] {
		c.TrySend(data)
	}
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// IsOnline reports whether a user has at least one open connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// StartWiring subscribes the hub to the Redis feed channels.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, h.dispatch)
}

func (h *Hub) dispatch(channel, payload string) {
	if channel == BroadcastChannel {
		h.BroadcastAll(payload)
		return
	}
	userID, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok || userID == "" {
		middleware.Logger.Warn("invalid feed channel", slog.String("channel", channel))
		return
	}
	h.Broadcast(userID, payload)
}

// Shutdown stops every client. Each write pump then sends a going-away close
// frame and closes its socket.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	frame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
	for _, userConns := range h.conns {
		for client := range userConns {
			client.closeWith(frame)
		}
	}
	observability.WebSocketConnections.Sub(float64(h.totalConns))
	h.conns = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
