package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a WebSocket with a single writer goroutine. All outbound
// traffic funnels through the send channel; gorilla/websocket permits only
// one concurrent writer, so the loop is the one place that touches the
// socket for writes and pings.
type Connection struct {
	conn   *websocket.Conn
	userID string

	send         chan []byte
	writeTimeout time.Duration
	pingInterval time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded socket and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, userID string, bufferSize int, writeTimeout, pingInterval time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		userID:       userID,
		send:         make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.closeFromWriter()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.closeFromWriter()
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.closeFromWriter()
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeFromWriter()
				return
			}

		case <-c.ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func (c *Connection) closeFromWriter() {
	if err := c.Close(); err != nil {
		log.Printf("Failed to close connection for user %s: %v", c.userID, err)
	}
}

// UserID returns the authenticated user behind this socket.
func (c *Connection) UserID() string {
	return c.userID
}

// TrySend queues a message without blocking. It returns false if the
// connection is closed or its buffer is full; callers treat false as a
// dropped delivery.
func (c *Connection) TrySend(v interface{}) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal outbound message for user %s: %v", c.userID, err)
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// WriteJSON queues a message, waiting up to the write timeout for buffer
// space. Used for direct replies where dropping would confuse the client.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.send <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts the connection down. Safe to call multiple times; the read
// loop, the writer goroutine, and supersession all funnel through here.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
