// Package hub manages WebSocket watchers subscribed to run updates.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection represents a single WebSocket watcher.
type Connection struct {
	ID    string
	RunID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub fans applied events out to run watchers.
type Hub struct {
	connections map[string]*Connection
	runs        map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *runMessage

	mu sync.RWMutex
}

type runMessage struct {
	runID string
	data  []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		runs:        make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *runMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.runs[conn.RunID] == nil {
				h.runs[conn.RunID] = make(map[string]bool)
			}
			h.runs[conn.RunID][conn.ID] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if h.runs[conn.RunID] != nil {
					delete(h.runs[conn.RunID], conn.ID)
					if len(h.runs[conn.RunID]) == 0 {
						delete(h.runs, conn.RunID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.runs[msg.runID] {
				if conn, ok := h.connections[connID]; ok {
					select {
					case conn.Send <- msg.data:
					default:
						// Buffer full, drop the watcher.
						log.Printf("WARN: watcher %s buffer full, closing", connID)
						go h.Unregister(conn)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a watcher for a run.
func (h *Hub) NewConnection(ws *websocket.Conn, runID string) *Connection {
	return &Connection{
		ID:    uuid.New().String(),
		RunID: runID,
		Conn:  ws,
		Send:  make(chan []byte, 256),
	}
}

// Register registers a watcher with the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a watcher from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastJSON sends a JSON message to all watchers of a run.
func (h *Hub) BroadcastJSON(runID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.broadcast <- &runMessage{runID: runID, data: data}
	return nil
}

// WatcherCount returns the number of active watchers.
func (h *Hub) WatcherCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
