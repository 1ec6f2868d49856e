package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Event is a realtime message fanned out to connected clients. AssetID is
// set for events tied to a single asset so clients can scope refreshes.
type Event struct {
	Type    string      `json:"type"`
	AssetID string      `json:"assetId,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// adminOnly lists event types that must not reach officer connections.
// Pending-queue churn is an admin concern; decisions and announcements
// are visible to everyone.
var adminOnly = map[string]bool{
	"update_requested": true,
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	// Redis pub/sub channel carrying events across API replicas.
	eventsChannel = "asset_events"
)

var connectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ws_connected_clients",
	Help: "Number of connected WebSocket clients",
})

func init() { prometheus.MustRegister(connectedClients) }

// PublishEvent publishes ev for every API replica's hub. Best effort: a nil
// or unreachable Redis drops the event.
func PublishEvent(ctx context.Context, rdb *redis.Client, ev Event) {
	if rdb == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = rdb.Publish(ctx, eventsChannel, b).Err()
}

// Hub tracks local connections and fans Redis-published events out to them.
type Hub struct {
	rdb        *redis.Client
	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
	broadcast  chan Event
}

// NewHub constructs a Hub. rdb may be nil, which limits delivery to events
// broadcast in-process.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		rdb:        rdb,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 16),
	}
}

// Run owns the client set until ctx is cancelled. Visibility is decided
// here so a slow officer socket never buffers admin-only traffic.
func (h *Hub) Run(ctx context.Context) {
	var ch <-chan *redis.Message
	if h.rdb != nil {
		sub := h.rdb.Subscribe(ctx, eventsChannel)
		ch = sub.Channel()
		go func() {
			<-ctx.Done()
			_ = sub.Close()
		}()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if ok && msg != nil {
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err == nil {
					h.deliver(ev)
				}
			}
		case c := <-h.register:
			h.clients[c] = true
			connectedClients.Inc()
		case c := <-h.unregister:
			h.drop(c)
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev Event) {
	restricted := adminOnly[ev.Type]
	for c := range h.clients {
		if restricted && !c.isAdmin {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		connectedClients.Dec()
	}
}

// Broadcast enqueues an event for clients on this replica only.
func (h *Hub) Broadcast(ev Event) { h.broadcast <- ev }

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Client is one WebSocket connection and its outbound queue.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan Event
	isAdmin bool
}

// NewClient constructs a client.
func NewClient(h *Hub, conn *websocket.Conn, isAdmin bool) *Client {
	return &Client{hub: h, conn: conn, send: make(chan Event, 8), isAdmin: isAdmin}
}

// ReadPump drains inbound frames to detect disconnects and keep pongs flowing.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump writes queued events and periodic pings until the connection
// fails or ctx is cancelled.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

// Upgrader is permissive on origin; auth middleware gates the route.
var Upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
