package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 16
)

// Client is one push channel connection.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// rooms is guarded by hub.mu
	rooms map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:    uuid.NewString(),
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, sendQueueSize),
		rooms: make(map[string]struct{}),
	}
}

// readPump handles inbound frames until the connection fails or closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.log.Debugw("push client read failed", "client_id", c.ID, "error", err)
			}
			return
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.hub.deliver(c, errorFrame("malformed message"))
		return
	}

	switch msg.Event {
	case EventJoin, EventLeave:
		var p roomPayload
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &p)
		}
		room := p.room()
		if room == "" {
			c.hub.deliver(c, errorFrame("sessionId is required"))
			return
		}
		if msg.Event == EventJoin {
			c.join(room)
			return
		}
		c.hub.Leave(c, room)
		if frame, err := encode(EventLeft, map[string]string{"room": room}); err == nil {
			c.hub.deliver(c, frame)
		}
	default:
		c.hub.deliver(c, errorFrame("unknown event: "+msg.Event))
	}
}

func (c *Client) join(room string) {
	c.hub.Join(c, room)
	c.hub.log.Debugw("push client joined room", "client_id", c.ID, "room", room)
	if frame, err := encode(EventJoined, map[string]string{"room": room}); err == nil {
		c.hub.deliver(c, frame)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
