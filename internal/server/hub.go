package server

import (
	"sync"

	"github.com/codefionn/taskpilot/internal/logger"
)

// Hub maintains the set of active websocket clients and broadcasts events
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	quit       chan struct{}
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	logger.Info("WebSocket hub started")
	defer logger.Info("WebSocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Debug("Client registered: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Debug("Client unregistered: %s", client.ID)

		case event := <-h.broadcast:
			h.mu.RLock()
			var stalled []*Client
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					stalled = append(stalled, client)
				}
			}
			h.mu.RUnlock()

			// Clients with a full send buffer are dropped. The map is
			// only mutated under the write lock.
			if len(stalled) > 0 {
				h.mu.Lock()
				for _, client := range stalled {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
			}

		case <-h.quit:
			return
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	close(h.quit)
}

// Register registers a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast broadcasts an event to all clients
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		logger.Warn("Broadcast channel full, dropping event")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
