package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from other origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID string

	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Connections the client subscribed to; empty means all
	mu     sync.RWMutex
	filter map[string]bool
}

// ClientMessage is what a client may send
type ClientMessage struct {
	Type          string   `json:"type"`
	MsgID         string   `json:"msgId,omitempty"`
	ConnectionID  string   `json:"connectionId,omitempty"`
	ConnectionIDs []string `json:"connectionIds,omitempty"`
}

func (c *Client) wants(connectionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filter) == 0 || c.filter[connectionID]
}

func (c *Client) subscribe(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			c.filter[id] = true
		}
	}
}

func (c *Client) subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.filter))
	for id := range c.filter {
		out = append(out, id)
	}
	return out
}

// handle answers one protocol message; it reports whether the message was understood
func (c *Client) handle(msg ClientMessage) bool {
	switch msg.Type {
	case "SUBSCRIBE":
		ids := msg.ConnectionIDs
		if msg.ConnectionID != "" {
			ids = append(ids, msg.ConnectionID)
		}
		c.subscribe(ids)
		c.SendJSON(map[string]interface{}{
			"type":          "ACK",
			"msgId":         msg.MsgID,
			"status":        "subscribed",
			"connectionIds": c.subscriptions(),
		})
	case "UNSUBSCRIBE":
		c.subscribe(nil)
		c.SendJSON(map[string]string{"type": "ACK", "msgId": msg.MsgID, "status": "unsubscribed"})
	case "PING":
		c.SendJSON(map[string]string{"type": "PONG", "msgId": msg.MsgID})
	default:
		return false
	}
	return true
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.enqueue(c.hub.unregister, c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("client", c.ID).Warn("WS error")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil || !c.handle(msg) {
			c.SendJSON(map[string]string{"type": "ERROR", "msgId": msg.MsgID, "error": "unsupported message"})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

// SendJSON queues a JSON message for the client; it drops the message
// when the send buffer is full
func (c *Client) SendJSON(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	defer func() {
		// send was closed by the hub
		recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
	return nil
}

// ServeWs upgrades the request and registers the client. A connectionId
// query parameter pre-subscribes the client to that connection.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := &Client{
		ID:   "web_" + uuid.New().String(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	if id := r.URL.Query().Get("connectionId"); id != "" {
		client.subscribe([]string{id})
	}
	if !hub.enqueue(hub.register, client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
