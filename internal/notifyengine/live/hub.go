// Package live implements the WebSocket hub the in-app channel adapter
// publishes through, adapted from WebSocketHub
// (src/server/service/websocket_hub.go), generalized from int user/admin
// IDs and a fixed "notification" message type to a single push-event
// stream keyed by opaque user ID strings.
package live

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is one event pushed to a connected client.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client represents one connected WebSocket client subscribed to a user's
// live notification stream.
type Client struct {
	UserID   string
	Conn     *websocket.Conn
	Hub      *Hub
	Send     chan []byte
	LastPing time.Time
}

// Hub manages all connected clients and routes per-user pushes, mirroring
// WebSocketHub's register/unregister/broadcast channel loop.
type Hub struct {
	clientsMux sync.RWMutex
	clients    map[string][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates an empty Hub; call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
	}
}

// Run drives registration, unregistration, and periodic stale-connection
// cleanup until Stop is called.
func (h *Hub) Run() {
	cleanupTicker := time.NewTicker(5 * time.Minute)
	defer cleanupTicker.Stop()

	for {
		select {
		case c := <-h.register:
			h.clientsMux.Lock()
			h.clients[c.UserID] = append(h.clients[c.UserID], c)
			h.clientsMux.Unlock()
			log.Printf("live: client registered for user %s", c.UserID)

		case c := <-h.unregister:
			h.clientsMux.Lock()
			h.removeLocked(c)
			h.clientsMux.Unlock()

		case <-cleanupTicker.C:
			h.cleanupStale()

		case <-h.done:
			log.Println("live: hub shutting down")
			return
		}
	}
}

// Stop closes every connection and halts the hub loop.
func (h *Hub) Stop() {
	close(h.done)
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for _, clients := range h.clients {
		for _, c := range clients {
			c.Conn.Close()
		}
	}
}

// Register adds a connected client to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

func (h *Hub) removeLocked(c *Client) {
	clients := h.clients[c.UserID]
	for i, existing := range clients {
		if existing == c {
			h.clients[c.UserID] = append(clients[:i], clients[i+1:]...)
			close(c.Send)
			break
		}
	}
	if len(h.clients[c.UserID]) == 0 {
		delete(h.clients, c.UserID)
	}
}

// Publish pushes a notification event to every client currently connected
// for userID. It is a no-op (not an error) when the user has no live
// connection, matching "best-effort, never blocks dispatch."
func (h *Hub) Publish(userID string, data interface{}) {
	h.clientsMux.RLock()
	clients := append([]*Client(nil), h.clients[userID]...)
	h.clientsMux.RUnlock()

	if len(clients) == 0 {
		return
	}

	msg := &Message{Type: "new_notification", Data: data}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("live: failed to marshal push event: %v", err)
		return
	}

	for _, c := range clients {
		select {
		case c.Send <- payload:
		default:
			h.Unregister(c)
			c.Conn.Close()
		}
	}
}

// IsConnected reports whether userID currently has a live connection.
func (h *Hub) IsConnected(userID string) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectedCount returns the number of clients currently connected.
func (h *Hub) ConnectedCount() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

func (h *Hub) cleanupStale() {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	now := time.Now()
	for userID, clients := range h.clients {
		kept := clients[:0]
		for _, c := range clients {
			if now.Sub(c.LastPing) > 2*time.Minute {
				close(c.Send)
				c.Conn.Close()
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(h.clients, userID)
		} else {
			h.clients[userID] = kept
		}
	}
}

// WritePump relays queued Send messages to the underlying connection,
// coalescing pending messages and pinging on idle, mirroring
// WebSocketClient.WritePump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump drains incoming frames (pongs) to keep the connection alive,
// unregistering on any read error.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("live: read error for user %s: %v", c.UserID, err)
			}
			return
		}
	}
}
