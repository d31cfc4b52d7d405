package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"matcha/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// WebSocketClient implements Client over a gorilla websocket.
type WebSocketClient struct {
	ConnID string
	Conn   *websocket.Conn
	Hub    *Hub

	send   chan models.Event
	closed chan struct{}
	once   sync.Once
	log    *logrus.Entry
}

// NewWebSocketClient wraps conn. buffer is the number of outbound events that
// may be queued before the client counts as too slow.
func NewWebSocketClient(connID string, conn *websocket.Conn, hub *Hub, buffer int) *WebSocketClient {
	if buffer <= 0 {
		buffer = 256
	}
	return &WebSocketClient{
		ConnID: connID,
		Conn:   conn,
		Hub:    hub,
		send:   make(chan models.Event, buffer),
		closed: make(chan struct{}),
		log:    hub.Log.WithField("conn_id", connID),
	}
}

func (c *WebSocketClient) Send(ev models.Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *WebSocketClient) Close() {
	c.once.Do(func() { close(c.closed) })
}

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// readPump passes every event read from the socket to the hub and
// unregisters the connection when the socket goes away.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c.ConnID)
		c.Close()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("error reading message")
			}
			return
		}

		var ev models.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			c.log.WithError(err).Debug("dropping undecodable message")
			continue
		}
		ev.SenderID = c.ConnID
		c.Hub.Deliver(c.ConnID, ev)
	}
}

// writePump writes queued events to the socket and keeps it alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(ev); err != nil {
				c.log.WithError(err).Debug("write failed")
				return
			}

		case <-c.closed:
			c.drain()
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain flushes what was queued before Close, such as a final
// session-terminated or ban notice.
func (c *WebSocketClient) drain() {
	for {
		select {
		case ev := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}
