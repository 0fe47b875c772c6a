package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // front desk dashboards are served from other origins
	},
}

// Client is one websocket subscriber. Filters are optional.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
	outcome  string
}

func (c *Client) wants(ev *dto.WSEvent) bool {
	if c.outcome != "" && string(ev.Data.Outcome) != c.outcome {
		return false
	}
	if c.clientID != "" && (ev.Data.ClientID == nil || ev.Data.ClientID.String() != c.clientID) {
		return false
	}
	return true
}

type message struct {
	event *dto.WSEvent
	data  []byte
}

// Hub fans access events out to connected websocket clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop; it returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.dropLocked(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "client_id", c.clientID, "outcome", c.outcome)

		case c := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg.event) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Slow consumer.
					h.dropLocked(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	observability.WSConnections.Dec()
	slog.Debug("ws client disconnected")
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues an access event for broadcast. It never blocks; events are
// dropped when the hub is saturated.
func (h *Hub) Publish(ev models.AccessEvent) {
	evt := &dto.WSEvent{Type: "access_" + string(ev.Outcome), Data: dto.NewAccessEventResponse(&ev)}
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{event: evt, data: data}:
	default:
		slog.Warn("ws broadcast queue full, dropping event", "event_id", ev.ID)
	}
}

// HandleWS upgrades the request. Optional query filters: client_id, outcome.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 64),
		clientID: c.Query("client_id"),
		outcome:  c.Query("outcome"),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump only watches for disconnects; subscribers send nothing.
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
