// Package feed broadcasts mint events to WebSocket subscribers.
package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hades-registry/internal/domain"
	"hades-registry/internal/registry"
)

// Compile-time interface check.
var _ registry.EventSink = (*Hub)(nil)

const (
	// writeWait is the max time allowed to write a message to a peer.
	writeWait = 10 * time.Second

	// pingPeriod is how often pings go out to keep connections alive.
	pingPeriod = 30 * time.Second

	// pongWait is how long to wait for a pong before dropping a peer.
	pongWait = 60 * time.Second

	// sendBuffer is the per-client queue. Clients that fall this far
	// behind get disconnected rather than block the broadcaster.
	sendBuffer = 16
)

// gauge is the subset of prometheus.Gauge the hub needs.
type gauge interface {
	Inc()
	Dec()
}

// Hub fans out mint events to connected WebSocket clients. It implements
// registry.EventSink, so it can be wired directly into the minting engine.
type Hub struct {
	upgrader    websocket.Upgrader
	logger      *log.Logger
	subscribers gauge

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithSubscriberGauge tracks the live subscriber count in a metric.
func WithSubscriberGauge(g gauge) Option {
	return func(h *Hub) { h.subscribers = g }
}

// NewHub creates a hub with no connected clients.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed is read-only public data, no origin restriction.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  log.New(os.Stderr, "[feed] ", log.LstdFlags),
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish sends a mint event to every connected client. Clients whose
// queue is full are dropped. Never blocks the caller.
func (h *Hub) Publish(e *domain.MintEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Printf("marshal mint event %s: %v", e.TokenID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Printf("dropping slow feed client")
			h.removeLocked(c)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and streams
// mint events until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade feed connection: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.subscribers != nil {
		h.subscribers.Inc()
	}

	go h.writeLoop(c)
	go h.readLoop(c)
}

// SubscriberCount reports the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients. The hub accepts no new connections after.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// removeLocked drops a client. Caller holds h.mu.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.subscribers != nil {
		h.subscribers.Dec()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// writeLoop pushes queued events and pings to one client.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards inbound messages. The feed is one-way; reading is
// only needed to process pongs and notice disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
