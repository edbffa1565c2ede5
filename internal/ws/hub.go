// Package ws pushes conversation-updated hints to connected dashboards so
// their pollers can tick early. Hints are best-effort and carry no message
// data; the polling endpoints remain the source of truth, so a dropped
// connection only costs latency, never correctness.
package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub manages active dashboard WebSocket connections and broadcasts
// conversation hints to all of them. Each connection carries its own write
// mutex: gorilla/websocket does not allow concurrent writers on one
// connection, and hints arrive from concurrent request goroutines.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Register adds a connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = &sync.Mutex{}
}

// Unregister removes a connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// ConversationUpdated notifies all connected dashboards that the
// conversation has new state worth fetching. Implements service.Notifier.
func (h *Hub) ConversationUpdated(conversationID int64) {
	payload := map[string]any{
		"type":            "conversation_updated",
		"conversation_id": conversationID,
	}

	h.mu.RLock()
	targets := make(map[*websocket.Conn]*sync.Mutex, len(h.conns))
	for conn, wmu := range h.conns {
		targets[conn] = wmu
	}
	h.mu.RUnlock()

	for conn, wmu := range targets {
		wmu.Lock()
		err := conn.WriteJSON(payload)
		wmu.Unlock()
		if err != nil {
			conn.Close()
			// actual removal happens when the read loop exits
		}
	}
}
