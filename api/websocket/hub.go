package websocket

import (
	"sync"
	"time"

	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/pkg/config"
)

const defaultBroadcastBuffer = 256

// Hub fans events out to connected WebSocket clients. Clients may narrow
// what they receive to a set of topics; an empty filter means everything.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan broadcastMsg
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	settings   Settings
}

type broadcastMsg struct {
	topic   string
	payload []byte
}

// Settings are the per-connection timing knobs, resolved from config.
type Settings struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	ClientBuffer   int
}

func newSettings(cfg *config.WebSocketConfig) Settings {
	s := Settings{
		PingInterval:   54 * time.Second,
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		MaxMessageSize: 512,
		ClientBuffer:   256,
	}
	if cfg == nil {
		return s
	}
	if cfg.PingInterval > 0 {
		s.PingInterval = cfg.PingInterval
	}
	if cfg.WriteTimeout > 0 {
		s.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.PongTimeout > 0 {
		s.PongTimeout = cfg.PongTimeout
	}
	if cfg.MaxMessageSize > 0 {
		s.MaxMessageSize = cfg.MaxMessageSize
	}
	if cfg.ClientBuffer > 0 {
		s.ClientBuffer = cfg.ClientBuffer
	}
	return s
}

func NewHub(cfg *config.WebSocketConfig) *Hub {
	broadcastBuffer := defaultBroadcastBuffer
	if cfg != nil && cfg.BroadcastBuffer > 0 {
		broadcastBuffer = cfg.BroadcastBuffer
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcastMsg, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		settings:   newSettings(cfg),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Infof("WebSocket client connected (total: %d)", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Infof("WebSocket client disconnected (total: %d)", h.ClientCount())

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg broadcastMsg) {
	var stalled []*Client

	h.mu.RLock()
	for client := range h.clients {
		if !client.wants(msg.topic) {
			continue
		}
		select {
		case client.send <- msg.payload:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}

	h.mu.Lock()
	for _, client := range stalled {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
	}
	h.mu.Unlock()
}

// Broadcast queues a message for every client subscribed to topic. Messages
// are dropped rather than blocking the caller when the hub is saturated.
func (h *Hub) Broadcast(topic string, payload []byte) {
	select {
	case h.broadcast <- broadcastMsg{topic: topic, payload: payload}:
	default:
		logger.Warn("Broadcast channel full, dropping message")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
