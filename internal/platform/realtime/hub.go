// Package realtime pushes JSON messages to connected websocket clients,
// keyed by user id.
package realtime

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type Observer interface {
	ClientConnected()
	ClientDisconnected()
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan Message
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	observer Observer
}

// NewHub accepts connections from the listed origins. An empty list accepts
// same-host requests only.
func NewHub(allowedOrigins []string, observer Observer) *Hub {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	h := &Hub{clients: make(map[string]map[*client]struct{}), observer: observer}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(allowed) == 0 {
				return origin == "http://"+r.Host || origin == "https://"+r.Host
			}
			_, ok := allowed[origin]
			return ok
		},
	}
	return h
}

// Publish queues msg for every connection of userID. Slow clients whose
// buffer is full are dropped.
func (h *Hub) Publish(userID string, msg Message) int {
	if h == nil {
		return 0
	}
	// Sends happen under the read lock so unregister cannot close a channel
	// mid-send.
	h.mu.RLock()
	delivered := 0
	var slow []*client
	for c := range h.clients[userID] {
		select {
		case c.send <- msg:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("realtime client too slow, disconnecting", "userId", userID)
		h.unregister(c)
	}
	return delivered
}

func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve upgrades the request and blocks until the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &client{userID: userID, conn: conn, send: make(chan Message, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()
	if h.observer != nil {
		h.observer.ClientConnected()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if ok {
		if _, present := set[c]; !present {
			ok = false
		} else {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.userID)
			}
			close(c.send)
		}
	}
	h.mu.Unlock()
	if ok && h.observer != nil {
		h.observer.ClientDisconnected()
	}
}

// readPump drains client frames so pong handlers fire; inbound payloads are
// ignored.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "userId", c.userID, "err", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	if err := c.write(Message{Type: "connected"}); err != nil {
		return
	}
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(msg); err != nil {
				slog.Warn("websocket write failed", "userId", c.userID, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(msg Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}
