package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"facefeed/internal/middleware"
	"facefeed/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrTooManyConnections     = errors.New("server connection limit reached")
	ErrTooManyUserConnections = errors.New("user connection limit reached")
)

// Hub maps user ids to their websocket clients. With a Notifier attached,
// published events go through Redis so every instance delivers them.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[*Client]struct{}
	total    int
	notifier *Notifier
	closed   bool
}

// NewHub returns a Hub. notifier may be nil for single-instance delivery.
func NewHub(notifier *Notifier) *Hub {
	return &Hub{
		conns:    make(map[string]map[*Client]struct{}),
		notifier: notifier,
	}
}

// Register adds a connection for userID. Anonymous viewers register with an
// empty user id and only receive broadcast events.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.total >= maxTotalConns {
		return nil, ErrTooManyConnections
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if userID != "" && len(m) >= maxConnsPerUser {
		return nil, ErrTooManyUserConnections
	}

	client := newClient(h, conn, userID)
	m[client] = struct{}{}
	h.total++
	observability.WebSocketConnections.Inc()
	return client, nil
}

// Unregister removes the client and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	close(client.Send)
	h.total--
	observability.WebSocketConnections.Dec()
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
}

// Connections returns the number of registered clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Publish implements Publisher.
func (h *Hub) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to encode event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
		return
	}

	if h.notifier != nil {
		err := h.notifier.Publish(ctx, event.Recipient, data)
		if err == nil {
			return
		}
		middleware.Logger.WarnContext(ctx, "redis publish failed, delivering locally",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
	}
	h.deliver(event.Recipient, data)
}

// deliver sends data to recipient's clients, or to every client when recipient is empty.
func (h *Hub) deliver(recipient string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if recipient != "" {
		for c := range h.conns[recipient] {
			c.TrySend(data)
		}
		return
	}
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// Run forwards events received from Redis to local clients until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	if h.notifier == nil {
		return nil
	}
	return h.notifier.Subscribe(ctx, h.deliver)
}

// Shutdown closes every client's send channel; each WritePump then sends a
// close frame and closes its connection.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true

	for _, clients := range h.conns {
		for client := range clients {
			close(client.Send)
			observability.WebSocketConnections.Dec()
		}
	}
	h.conns = make(map[string]map[*Client]struct{})
	h.total = 0
	return nil
}
