package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/coinvault/internal/events"
)

// Message is a live ledger notification pushed to dashboards.
type Message struct {
	Type      string         `json:"type"`
	Entity    string         `json:"entity"`
	Action    string         `json:"action"`
	ID        int64          `json:"id,omitempty"`
	CompanyID int64          `json:"companyId,omitempty"`
	UserID    int64          `json:"userId,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// FromEvent converts a committed ledger event into a dashboard message.
func FromEvent(e events.LedgerEvent) Message {
	m := NewMessage("ledger", string(e.Type), 0, map[string]any{
		"eventId": e.ID,
		"amount":  e.Amount,
	})
	m.CompanyID = e.CompanyID
	m.UserID = e.UserID
	if e.CampaignID != 0 {
		m.Extra["campaignId"] = e.CampaignID
	}
	if e.VoucherID != 0 {
		m.Extra["voucherId"] = e.VoucherID
	}
	return m
}

// Hub tracks connected clients and routes messages by tenant. A message
// reaches its owning user, the admins of its company, and every
// superadmin.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client entitled to see it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.sees(msg) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Slow client: drop rather than block the ledger.
		}
	}
}

// Publish lets the hub sit behind events.Fanout.
func (h *Hub) Publish(_ context.Context, e events.LedgerEvent) error {
	h.Broadcast(FromEvent(e))
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
