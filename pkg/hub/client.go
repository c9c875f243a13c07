package hub

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound client messages
	maxMessageSize = 64 * 1024

	sendBuffer = 64
)

// Conn is the subset of a websocket connection the client uses.
// *websocket.Conn from gofiber/websocket satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Handler receives text messages sent by a client.
type Handler func(c *Client, data []byte)

// Client represents a single websocket connection
type Client struct {
	ID string

	hub     *Hub
	conn    Conn
	handler Handler

	send   chan Message // broadcasts, closed by the hub
	direct chan Message // replies to this client only

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client and registers it with the hub. handler may be
// nil for receive-only viewers.
func NewClient(hub *Hub, conn Conn, handler Handler) *Client {
	client := &Client{
		ID:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		handler: handler,
		send:    make(chan Message, sendBuffer),
		direct:  make(chan Message, 8),
		closed:  make(chan struct{}),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		close(client.send)
	}
	return client
}

// Run starts the client's read and write pumps
// This should be called in the websocket handler
func (c *Client) Run() {
	go c.writePump()
	c.readPump() // Blocks until connection closes
}

// Send queues a message for this client only. It reports false when the
// client is gone or its queue is full.
func (c *Client) Send(msg Message) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.direct <- msg:
		return true
	default:
		return false
	}
}

// SendJSON encodes v and sends it to this client only.
func (c *Client) SendJSON(v any) bool {
	msg, err := EncodeJSON(v)
	if err != nil {
		return false
	}
	return c.Send(msg)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// readPump reads messages from the websocket connection until it fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt == websocket.TextMessage && c.handler != nil {
			c.handler(c, data)
		}
	}
}

// writePump writes messages to the websocket connection
// Only this goroutine writes to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel - send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(message); err != nil {
				return
			}

		case message := <-c.direct:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.write(message); err != nil {
				return
			}

		case <-c.closed:
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(m Message) error {
	wsType := websocket.TextMessage
	if m.Type == BinaryMessage {
		wsType = websocket.BinaryMessage
	}
	return c.conn.WriteMessage(wsType, m.Data)
}
