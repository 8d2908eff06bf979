package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Hub fans scan results out to WebSocket clients. The most recent
// message is replayed to every new client.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
	latest  []byte
	seq     int64
	onCount func(int)
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:     logger.With("component", "ws_hub"),
		clients: make(map[*client]bool),
	}
}

// OnClientCount installs a callback invoked with the client count after
// every connect/disconnect (used for the ws clients gauge).
func (h *Hub) OnClientCount(fn func(int)) {
	h.mu.Lock()
	h.onCount = fn
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast wraps data in a typed envelope and queues it for every client.
// Slow clients drop messages rather than block the hub.
func (h *Hub) Broadcast(msgType string, data any) error {
	h.mu.Lock()
	h.seq++
	envelope, err := json.Marshal(map[string]any{
		"type": msgType,
		"seq":  h.seq,
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
		"data": data,
	})
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.latest = envelope
	for c := range h.clients {
		select {
		case c.send <- envelope:
		default:
			h.log.Warn("ws client slow, message dropped")
		}
	}
	h.mu.Unlock()
	return nil
}

// ServeHTTP upgrades the connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), hub: h}

	h.mu.Lock()
	h.clients[c] = true
	if h.latest != nil {
		c.send <- h.latest
	}
	count := len(h.clients)
	onCount := h.onCount
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", count)
	if onCount != nil {
		onCount(count)
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	onCount := h.onCount
	h.mu.Unlock()

	h.log.Info("ws client disconnected", "clients", count)
	if onCount != nil {
		onCount(count)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.remove(c)
	}
}

// client is a single WebSocket peer.
type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; clients do not send commands.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
