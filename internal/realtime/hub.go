// Package realtime pushes events to connected WebSocket clients. Events are
// fanned out across gateway instances through Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dermalink-api/internal/middleware"
	"dermalink-api/internal/model"
	"dermalink-api/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks the open connections of this instance, keyed by user id.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHub(l zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// mobile clients send no Origin; browsers are authenticated by token
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: l.With().Str("component", "realtime").Logger(),
	}
}

// ServeWS upgrades an authenticated request. It must sit behind
// middleware.HTTPAuth.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.Caller(r.Context())
	if uid == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(uid, c)
	go h.writePump(c)
	h.readPump(uid, c)
}

func (h *Hub) add(uid string, c *client) {
	h.mu.Lock()
	set, ok := h.clients[uid]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[uid] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	observability.RealtimeClients.Inc()
}

func (h *Hub) remove(uid string, c *client) {
	h.mu.Lock()
	if set, ok := h.clients[uid]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			observability.RealtimeClients.Dec()
		}
		if len(set) == 0 {
			delete(h.clients, uid)
		}
	}
	h.mu.Unlock()
	c.close()
}

// readPump drains the connection so control frames are processed. Clients
// are not expected to send anything.
func (h *Hub) readPump(uid string, c *client) {
	defer func() {
		h.remove(uid, c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	t := time.NewTicker(pingPeriod)
	defer func() {
		t.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-t.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Deliver queues payload on every local connection of userID and returns how
// many received it. A connection whose buffer is full is dropped.
func (h *Hub) Deliver(userID string, payload []byte) int {
	h.mu.RLock()
	var slow []*client
	n := 0
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			n++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn().Str("user_id", userID).Msg("dropping slow client")
		h.remove(userID, c)
	}
	return n
}

// Publish delivers ev to the local connections of userID only. It is used
// when no Redis broker is configured.
func (h *Hub) Publish(_ context.Context, userID string, ev model.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Deliver(userID, b)
	return nil
}

// Clients returns the number of open connections for userID.
func (h *Hub) Clients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()
	for _, set := range all {
		for c := range set {
			observability.RealtimeClients.Dec()
			c.close()
		}
	}
}
