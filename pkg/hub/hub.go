// Package hub fans tick telemetry out to websocket dashboard clients using
// the channel-based broadcast pattern.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/tarmac-rally/codriver/internal/log"
)

// Hub tracks connected dashboard clients and broadcasts telemetry frames.
// Slow clients are disconnected rather than allowed to stall the loop.
type Hub struct {
	name string

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}

	mu sync.RWMutex
}

func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run is the hub's main loop; call it in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("hub: client connected", "hub", h.name, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("hub: client disconnected", "hub", h.name, "clients", count)

		case frame := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// Client buffer full; it is too far behind to keep.
					close(client.send)
					delete(h.clients, client)
					log.Warn("hub: dropped slow client", "hub", h.name)
				}
			}
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends the loop.
func (h *Hub) Stop() {
	close(h.stop)
}

// Broadcast queues a frame for every client. Never blocks; frames are shed
// when the broadcast buffer is full.
func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	default:
		log.Warn("hub: broadcast buffer full, frame dropped", "hub", h.name)
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
