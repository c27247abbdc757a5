package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
	datasync "github.com/xelth-com/datalake/internal/sync"
)

// EventMessage wraps a sync event on the wire
type EventMessage struct {
	Type  string         `json:"type"`
	Event datasync.Event `json:"event"`
}

type outbound struct {
	connectionID string
	payload      []byte
}

// Hub maintains the set of active clients and fans sync events out to them
type Hub struct {
	// Registered clients map: client ID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}

	// Mutex for thread-safe access to clients map
	mu  sync.RWMutex
	log logrus.FieldLogger
}

// NewHub creates a new Hub instance
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		log:        logger.WithField("component", "ws"),
	}
}

// Run starts the hub's main loop; it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.WithField("client", client.ID).Debug("🔌 Client connected")

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for _, c := range h.clients {
				if !c.wants(msg.connectionID) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.log.WithField("client", c.ID).Warn("⚠️ Dropping slow client")
				h.remove(c)
			}
		}
	}
}

// enqueue hands a register or unregister request to Run unless it has exited
func (h *Hub) enqueue(ch chan *Client, client *Client) bool {
	select {
	case ch <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.send)
		h.log.WithField("client", client.ID).Debug("📴 Client disconnected")
	}
}

// Publish implements sync.EventPublisher. It never blocks: events are
// dropped when the broadcast queue is full.
func (h *Hub) Publish(e datasync.Event) {
	payload, err := json.Marshal(EventMessage{Type: "SYNC_EVENT", Event: e})
	if err != nil {
		h.log.WithError(err).Error("marshal sync event")
		return
	}
	select {
	case h.broadcast <- outbound{connectionID: e.ConnectionID, payload: payload}:
	default:
		h.log.WithField("event", e.Type).Warn("⚠️ Broadcast queue full, event dropped")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var _ datasync.EventPublisher = (*Hub)(nil)
