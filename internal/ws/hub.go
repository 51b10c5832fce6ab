// Package ws streams ledger events to browsers watching a customer's account.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is one message on a customer's ledger stream.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

type customerEvent struct {
	customerID uuid.UUID
	event      Event
}

// Hub fans events out to the clients subscribed to each customer.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *customerEvent
	// done is closed when Run returns.
	done chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *customerEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.rooms {
				for c := range clients {
					close(c.send)
				}
				delete(h.rooms, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.customerID] == nil {
				h.rooms[client.customerID] = make(map[*Client]bool)
			}
			h.rooms[client.customerID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			message, err := json.Marshal(ev.event)
			if err != nil {
				log.Error().Err(err).Str("type", ev.event.Type).Msg("failed to marshal ledger event")
				continue
			}
			h.mu.Lock()
			for client := range h.rooms[ev.customerID] {
				select {
				case client.send <- message:
				default:
					// slow consumer
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register subscribes c to its customer's room. It reports false once the
// hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister drops c. After shutdown it returns immediately; Run has already
// closed every client.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// remove must be called with mu held.
func (h *Hub) remove(c *Client) {
	clients, ok := h.rooms[c.customerID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.customerID)
	}
}

// Publish queues an event for the customer's subscribers. Events are dropped
// when the broadcast queue is full so ledger writes never block on clients.
func (h *Hub) Publish(customerID uuid.UUID, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to marshal ledger event payload")
		return
	}
	ev := &customerEvent{
		customerID: customerID,
		event:      Event{Type: eventType, Payload: payload, SentAt: time.Now().UTC()},
	}
	select {
	case h.broadcast <- ev:
	default:
		log.Warn().Str("customer_id", customerID.String()).Str("type", eventType).Msg("ledger event queue full, dropping event")
	}
}

// Subscribers returns the number of clients watching the customer.
func (h *Hub) Subscribers(customerID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[customerID])
}
