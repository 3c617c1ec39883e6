// Package wsevents broadcasts cache events (the eviction loop's
// pattern-tier eviction records and the admin server's cache-clear
// notices) to connected WebSocket clients, the same
// hub-and-broadcast-channel shape used elsewhere in the corpus for
// pushing server-side events to a browser without polling. Leak
// warnings are not published here; they go only to the diagnostics
// sink chain.
package wsevents

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is one cache event pushed to subscribers.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub manages WebSocket connections and fans events out to all of them.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub builds a Hub. Run it with Start before accepting connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Start runs the hub's event loop until ctx is canceled.
func (h *Hub) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				go h.send(conn, event)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, event Event) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(event); err != nil {
		h.logger.Warn("ws client write failed, dropping", "error", err)
		h.unregister <- conn
	}
}

// Publish queues an event for broadcast. Non-blocking: a full channel
// drops the event rather than stalling the caller (the eviction loop).
func (h *Hub) Publish(eventType string, data interface{}) {
	select {
	case h.broadcast <- Event{Type: eventType, Data: data, Timestamp: time.Now()}:
	default:
		h.logger.Warn("ws broadcast channel full, dropping event", "type", eventType)
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection. The connection is read-only from the client's
// perspective; incoming messages are discarded (read pump exists only
// to notice disconnects).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	h.register <- conn

	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
