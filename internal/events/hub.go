// Package events streams engine lifecycle notifications (scrambled,
// restored, expired) to dashboard clients over WebSocket. Payloads carry
// session ids and counts only; matched text and original values never enter
// this package.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks belong to the deployment's reverse proxy.
		return true
	},
}

// Config controls which lifecycle events are broadcast.
type Config struct {
	Enabled            bool `yaml:"enabled" mapstructure:"enabled"`
	BroadcastScrambles bool `yaml:"broadcast_scrambles" mapstructure:"broadcast_scrambles"`
	BroadcastRestores  bool `yaml:"broadcast_restores" mapstructure:"broadcast_restores"`
	BroadcastExpiries  bool `yaml:"broadcast_expiries" mapstructure:"broadcast_expiries"`
	MaxConnections     int  `yaml:"max_connections" mapstructure:"max_connections"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan engine.Event
}

// Hub maintains the set of connected clients and fans engine events out to
// them. It implements engine.EventSink.
type Hub struct {
	cfg        Config
	clients    map[*client]bool
	broadcast  chan engine.Event
	register   chan *client
	unregister chan *client
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewHub creates an event hub.
func NewHub(cfg Config, logger *zap.Logger) *Hub {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 100
	}
	return &Hub{
		cfg:        cfg,
		clients:    make(map[*client]bool),
		broadcast:  make(chan engine.Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
	}
}

// Run services registration and broadcast channels until the process exits.
func (h *Hub) Run() {
	h.logger.Info("Starting event hub")
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Event client connected",
				zap.String("client_id", c.id),
				zap.Int("active", n),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Event client disconnected",
				zap.String("client_id", c.id),
				zap.Int("active", n),
			)

		case evt := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- evt:
				default:
					// Slow consumer, drop the connection rather than block.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for broadcast, dropping it when the hub is
// disabled, the event type is filtered, or the queue is full.
func (h *Hub) Publish(evt engine.Event) {
	if !h.cfg.Enabled || !h.wantType(evt.Type) {
		return
	}
	select {
	case h.broadcast <- evt:
	default:
		h.logger.Warn("Event queue full, dropping event", zap.String("type", evt.Type))
	}
}

func (h *Hub) wantType(t string) bool {
	switch t {
	case "scrambled":
		return h.cfg.BroadcastScrambles
	case "restored":
		return h.cfg.BroadcastRestores
	case "expired":
		return h.cfg.BroadcastExpiries
	default:
		return false
	}
}

// HandleWebSocket upgrades the connection and starts the client pumps.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	full := len(h.clients) >= h.cfg.MaxConnections
	h.mu.RUnlock()
	if full {
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan engine.Event, 64),
	}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
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

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// Clients only listen; any read error ends the connection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
