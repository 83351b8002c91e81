package ws

import (
	"sync"
	"time"

	"clusterfeed/internal/hub"
	"clusterfeed/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client is one websocket connection as a hub subscriber handle. All frames
// go through a buffered channel drained by a single writer goroutine; Send
// never blocks and reports false when the buffer is full.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

var _ hub.Subscriber = (*Client)(nil)

func newClient(conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 128
	}
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues a frame for delivery. A full buffer means this subscriber is
// lagging; the frame is dropped for it and delivery to others is unaffected.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// writePump is the connection's only writer.
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debugf("[ws] write to %s failed: %v", c.id, err)
				c.close()
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
