// Package ws holds the connection registry: one live WebSocket per identity,
// with best-effort non-blocking delivery of outbound events.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/protocol"
)

// supersededNotice is the last message a replaced connection receives
var supersededNotice, _ = json.Marshal(protocol.Error{
	Type:    protocol.EvtError,
	Code:    protocol.CodeDuplicateSession,
	Message: "Connection replaced by a newer session",
})

// Hub maps each identity to its single live client.
// Send channels are only ever closed while holding mu, together with removal
// from clients, so a sender holding the read lock never sees a closed channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[model.Identity]*Client
	closed  bool
	logger  *slog.Logger
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[model.Identity]*Client),
		logger:  logger.With(slog.String("component", "ws-hub")),
	}
}

// Register binds the client to its identity. Any client previously bound to
// the same identity gets a DUPLICATE_SESSION error and is closed. Registering
// on a closed hub closes the client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		c.closeSend()
		return
	}

	if prior, ok := h.clients[c.id]; ok && prior != c {
		select {
		case prior.send <- supersededNotice:
		default:
		}
		prior.closeSend()
		h.logger.Info("superseded connection", slog.String("identity", string(c.id)))
	}
	h.clients[c.id] = c
}

// Unregister removes the binding if c is still the bound client for its
// identity. Returns false if c was already superseded or removed.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.clients[c.id]
	if !ok || current != c {
		return false
	}
	delete(h.clients, c.id)
	c.closeSend()
	return true
}

// Send encodes the event and enqueues it for the identity's client. Offline
// identities and full buffers drop the event.
func (h *Hub) Send(id model.Identity, event any) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("identity", string(id)), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.enqueue(id, msg)
}

// Broadcast sends the event to every listed identity that is online
func (h *Hub) Broadcast(ids []model.Identity, event any) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range ids {
		h.enqueue(id, msg)
	}
}

// enqueue must be called with at least the read lock held
func (h *Hub) enqueue(id model.Identity, msg []byte) {
	c, ok := h.clients[id]
	if !ok {
		h.logger.Debug("dropping event for offline identity", slog.String("identity", string(id)))
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("send buffer full, dropping event", slog.String("identity", string(id)))
	}
}

// Online returns true if the identity has a bound client
func (h *Hub) Online(id model.Identity) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

// Count returns the number of bound clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes every client and rejects later registrations
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, c := range h.clients {
		c.closeSend()
		delete(h.clients, id)
	}
	h.logger.Info("hub closed")
}
