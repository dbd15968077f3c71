package websocket

import (
	"encoding/json"
	"sync"

	"marketplace/internal/market"
)

// EventUpdate is what a subscriber receives for each committed event that concerns it.
type EventUpdate struct {
	Seq     int64           `json:"seq"`
	Kind    string          `json:"kind"`
	Owner   string          `json:"owner"`
	Payload json.RawMessage `json:"payload"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(owner string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[owner] == nil {
		h.clients[owner] = make(map[*Client]struct{})
	}
	h.clients[owner][client] = struct{}{}
}

func (h *Hub) Unregister(owner string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[owner] == nil {
		return
	}
	delete(h.clients[owner], client)
	if len(h.clients[owner]) == 0 {
		delete(h.clients, owner)
	}
}

// BroadcastEvent delivers event to every connection of owner. Slow clients drop messages.
func (h *Hub) BroadcastEvent(owner market.Owner, event market.Event) {
	payload, _ := json.Marshal(EventUpdate{
		Seq:     event.Seq,
		Kind:    string(event.Kind),
		Owner:   string(event.Owner),
		Payload: event.Payload,
	})
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[string(owner)] {
		select {
		case client.send <- payload:
		default:
		}
	}
}

func (h *Hub) Subscribers(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[owner])
}
