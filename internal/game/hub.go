package game

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	hubBufferSize = 256
	writeDeadline = 10 * time.Second
)

// Client is one subscribed websocket connection.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

// Hub fans engine events out to every connected client. Publish is
// non-blocking: when the buffer is full the event is dropped, the next
// state update supersedes it.
type Hub struct {
	clients    map[*Client]bool
	events     chan interface{}
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		events:     make(chan interface{}, hubBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run processes registrations and event fan-out until Close.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				client.conn.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] Session %s connected (%d total)", client.sessionID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] Session %s disconnected (%d total)", client.sessionID, total)

		case event := <-h.events:
			payload, err := json.Marshal(event)
			if err != nil {
				log.Printf("[WS] Marshal error: %v", err)
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				go client.write(payload)
			}
			h.mu.RUnlock()
		}
	}
}

// Publish implements Broadcaster. Never blocks the caller.
func (h *Hub) Publish(event interface{}) {
	select {
	case h.events <- event:
	default:
		log.Println("[WS] Event buffer full, dropping event")
	}
}

// Close shuts the hub down and disconnects every client.
func (h *Hub) Close() {
	close(h.stop)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register attaches a connection and returns its client handle. The handle
// is also used for direct per-connection replies.
func (h *Hub) Register(conn *websocket.Conn, sessionID string) *Client {
	client := &Client{conn: conn, sessionID: sessionID}
	h.register <- client
	return client
}

// Unregister detaches a client and closes its connection.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Send delivers one message to this client only.
func (c *Client) Send(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Send marshal error: %v", err)
		return
	}
	c.write(payload)
}

func (c *Client) write(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("[WS] Write error for session %s: %v", c.sessionID, err)
	}
}
