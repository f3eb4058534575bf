package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/pkg/logger"
)

const (
	EventCartUpdated = "cart.updated"

	sendBufferSize = 16
)

// CartEvent is the only message pushed on the cart stream.
type CartEvent struct {
	Type string      `json:"type"`
	Cart *model.Cart `json:"cart"`
}

// Client is one websocket session of an identity. An identity may hold several.
type Client struct {
	Hub     *Hub
	Conn    *Conn
	OwnerID string
	Send    chan []byte
}

func NewClient(hub *Hub, conn *Conn, ownerID string) *Client {
	return &Client{
		Hub:     hub,
		Conn:    conn,
		OwnerID: ownerID,
		Send:    make(chan []byte, sendBufferSize),
	}
}

type delivery struct {
	ownerID string
	data    []byte
}

// Hub fans committed cart snapshots out to every open session of their owner.
type Hub struct {
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		deliver:    make(chan delivery, 1024),
	}
}

// Run processes registrations and deliveries until ctx is done, then closes
// every remaining session.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for ownerID, list := range h.clients {
				for _, c := range list {
					close(c.Send)
				}
				delete(h.clients, ownerID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.OwnerID] = append(h.clients[client.OwnerID], client)
			sessions := len(h.clients[client.OwnerID])
			h.mu.Unlock()
			logger.Debug("Cart stream client registered", map[string]interface{}{
				"owner_id": client.OwnerID,
				"sessions": sessions,
			})

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.deliver:
			h.mu.RLock()
			list := h.clients[d.ownerID]
			h.mu.RUnlock()
			for _, client := range list {
				select {
				case client.Send <- d.data:
				default:
					// Slow reader; it will refetch on reconnect
					logger.Warn("Cart stream buffer full, disconnecting", map[string]interface{}{
						"owner_id": d.ownerID,
					})
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list, ok := h.clients[client.OwnerID]
	if !ok {
		return
	}
	kept := make([]*Client, 0, len(list))
	found := false
	for _, c := range list {
		if c == client {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return
	}
	if len(kept) == 0 {
		delete(h.clients, client.OwnerID)
	} else {
		h.clients[client.OwnerID] = kept
	}
	close(client.Send)
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// CartChanged pushes cart to its owner's local sessions.
func (h *Hub) CartChanged(_ context.Context, cart *model.Cart) {
	data, err := EncodeCartEvent(cart)
	if err != nil {
		logger.Error("Failed to encode cart event", err, map[string]interface{}{
			"owner_id": cart.OwnerID,
		})
		return
	}
	h.Deliver(cart.OwnerID, data)
}

// Deliver queues an encoded event for ownerID. Used directly by the redis
// subscriber, which receives events already encoded.
func (h *Hub) Deliver(ownerID string, data []byte) {
	select {
	case h.deliver <- delivery{ownerID: ownerID, data: data}:
	default:
		logger.Warn("Cart stream delivery queue full, event dropped", map[string]interface{}{
			"owner_id": ownerID,
		})
	}
}

func (h *Hub) IsOnline(ownerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[ownerID]
	return ok
}

func EncodeCartEvent(cart *model.Cart) ([]byte, error) {
	return json.Marshal(CartEvent{Type: EventCartUpdated, Cart: cart})
}
