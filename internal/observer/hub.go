package observer

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub fans runtime events out to WebSocket-connected observers, subscribed
// per instance ID: one event stream per instance, with no further
// subscription dimension.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool // instanceID -> clients

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg

	log zerolog.Logger
}

type broadcastMsg struct {
	instanceID string
	payload    []byte
}

// Client wraps one WebSocket connection subscribed to a single instance.
type Client struct {
	conn       *websocket.Conn
	instanceID string
	send       chan []byte
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 256),
		log:        log,
	}
}

// Run drives the hub's event loop; call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.instanceID] == nil {
				h.clients[c.instanceID] = make(map[*Client]bool)
			}
			h.clients[c.instanceID][c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.instanceID]; ok {
				delete(set, c)
				close(c.send)
				if len(set) == 0 {
					delete(h.clients, c.instanceID)
				}
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients[msg.instanceID] {
				select {
				case c.send <- msg.payload:
				default:
					h.log.Warn().Str("instance_id", msg.instanceID).Msg("client send buffer full, dropping event")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register attaches a new WebSocket connection to the hub and starts its
// write pump; returns the Client so the caller's read loop can Unregister
// it on disconnect.
func (h *Hub) Register(conn *websocket.Conn, instanceID string) *Client {
	c := &Client{conn: conn, instanceID: instanceID, send: make(chan []byte, 64)}
	h.register <- c
	go c.writePump()
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Broadcast pushes a pre-serialized event to every client subscribed to
// instanceID.
func (h *Hub) Broadcast(instanceID string, payload []byte) {
	h.broadcast <- broadcastMsg{instanceID: instanceID, payload: payload}
}

func (c *Client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.Close()
}

// HubObserver adapts a Hub into an Observer that broadcasts every event to
// its instance's subscribers.
type HubObserver struct {
	hub        *Hub
	instanceID string
}

func NewHubObserver(hub *Hub, instanceID string) *HubObserver {
	return &HubObserver{hub: hub, instanceID: instanceID}
}

func (o *HubObserver) OnEvent(ev EventLike) {
	payload, err := ev.ToJSON()
	if err != nil {
		return
	}
	o.hub.Broadcast(o.instanceID, payload)
}
