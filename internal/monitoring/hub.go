package monitoring

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/parser"
)

// ProgressHub fans parse progress events out to websocket subscribers.
type ProgressHub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]chan parser.Progress
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewProgressHub creates the hub.
func NewProgressHub(logger logging.Logger) *ProgressHub {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &ProgressHub{
		clients: map[*websocket.Conn]chan parser.Progress{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.WithComponent("progress-hub"),
	}
}

// Broadcast queues an event for every subscriber. Slow subscribers drop
// events rather than blocking ingestion.
func (h *ProgressHub) Broadcast(p parser.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- p:
		default:
		}
	}
}

// Subscribers reports the connected client count.
func (h *ProgressHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams progress events as JSON
// frames until the client disconnects.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := make(chan parser.Progress, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	// Reader goroutine detects client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case p := <-ch:
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		}
	}
}
