// Package live fans moderation events out to connected moderators over
// WebSocket.
package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

// Hub maintains active moderator connections
type Hub struct {
	// Registered clients by moderator ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

// Client is one moderator connection
type Client struct {
	ModeratorID string
	Conn        WSConn
	Send        chan []byte
	Hub         *Hub
}

// WSConn is the part of a WebSocket connection the hub needs
type WSConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case data := <-h.broadcast:
			h.broadcastAll(data)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.ModeratorID] == nil {
		h.clients[client.ModeratorID] = make(map[*Client]bool)
	}
	h.clients[client.ModeratorID][client] = true

	h.logger.Info("moderator connected", zap.String("moderator_id", client.ModeratorID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.ModeratorID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.ModeratorID)
	}
	close(client.Send)

	h.logger.Info("moderator disconnected", zap.String("moderator_id", client.ModeratorID))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, clients := range h.clients {
		for client := range clients {
			close(client.Send)
		}
		delete(h.clients, id)
	}
}

func (h *Hub) broadcastAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, clients := range h.clients {
		for client := range clients {
			select {
			case client.Send <- data:
			default:
				h.logger.Warn("moderator send buffer full, dropping event",
					zap.String("moderator_id", client.ModeratorID),
				)
			}
		}
	}
}

// Publish queues an event for every connected moderator. It never blocks;
// when the broadcast buffer is full the event is dropped.
func (h *Hub) Publish(ctx context.Context, event *highlights.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal live event", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("live broadcast buffer full, dropping event",
			zap.String("type", event.Type),
			zap.String("item_id", event.ItemID),
		)
	}
}

// ClientCount is the number of open moderator connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// Register attaches a client; it reports false once the hub has stopped
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
