package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB
)

type Role string

const (
	RoleNone   Role = ""
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Client is one live WebSocket connection. Its room binding (RoomID, Role,
// Name) is owned by the hub loop.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte

	mu     sync.Mutex
	closed bool

	RoomID string
	Role   Role
	Name   string
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   uuid.New().String(),
		send: make(chan []byte, 256),
	}
}

// ConnID identifies the connection for the lifetime of the socket.
func (c *Client) ConnID() string { return c.id }

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("websocket read error")
			}
			break
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Str("conn_id", c.id).Msg("unparseable client message")
			c.SendError("Invalid message format")
			continue
		}

		c.hub.HandleMessage <- &ClientMessage{
			Client:  c,
			Message: msg,
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			n := len(c.send)
			for range n {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

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

// Send queues an outbound event; a connection too slow to drain its buffer
// loses the message rather than stalling the room. After the connection has
// been unregistered Send is a no-op.
func (c *Client) Send(msg protocol.Outgoing) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("conn_id", c.id).Msg("marshal outbound message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("conn_id", c.id).Str("event", string(msg.Type)).Msg("send buffer full, dropping message")
	}
}

// close shuts the send channel exactly once and marks the connection dead
// for any Send still in flight.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) SendError(message string) {
	c.Send(protocol.Outgoing{
		Type:    protocol.EventError,
		Payload: protocol.ErrorPayload{Message: message},
	})
}
