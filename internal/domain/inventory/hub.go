package inventory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const stockChannel = "inventory:stock"

// StockEvent is pushed to every client with an open booking form when a
// refresh observes stock movement.
type StockEvent struct {
	Type    string        `json:"type"`
	Changes []StockChange `json:"changes"`
}

// Connection represents one subscribed WebSocket client.
type Connection struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub fans stock events out to connected clients. With Redis configured the
// event travels through Pub/Sub so every API instance delivers it; without
// Redis delivery is local only.
type Hub struct {
	connections map[*Connection]bool
	redis       *redis.Client
	pubsub      *redis.PubSub

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a stock hub.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
	}

	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, stockChannel)
	}

	return h
}

// Run starts the hub (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("stock watch connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("stock watch disconnected")
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcastLocal([]byte(msg.Payload))
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Publish delivers the stock diff to all watching clients.
func (h *Hub) Publish(changes []StockChange) {
	if len(changes) == 0 {
		return
	}

	data, err := json.Marshal(StockEvent{Type: "stock_changed", Changes: changes})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal stock event")
		return
	}

	if h.redis != nil {
		if err := h.redis.Publish(h.ctx, stockChannel, data).Err(); err != nil {
			log.Error().Err(err).Msg("stock event publish failed, delivering locally")
			h.broadcastLocal(data)
		}
		return
	}
	h.broadcastLocal(data)
}

func (h *Hub) broadcastLocal(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.connections {
		select {
		case conn.Send <- data:
		default:
			// Buffer full, skip this client
			log.Warn().Str("user_id", conn.UserID.String()).Msg("stock watch send buffer full")
		}
	}
}

// ConnectionCount returns the number of local watchers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
