// internal/websocket/client.go
package websocket

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrSendBufferFull reports a client whose outbound queue is at capacity.
var ErrSendBufferFull = errors.New("websocket: client send buffer full")

const sendQueueSize = 256

// Client is one connected frontend. Outbound frames are queued and drained
// by a single writer goroutine, so a slow connection never stalls the daemon.
type Client struct {
	ID   string
	conn *websocket.Conn

	send      chan []byte
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// Enqueue marshals a frame and queues it for delivery. When the queue is
// full the frame is dropped rather than blocking the caller.
func (c *Client) Enqueue(msg *WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// writePump drains queued frames onto the wire. It owns the connection's
// write side and closes the socket once the queue is shut.
func (c *Client) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readFrame blocks for the next frame from the client.
func (c *Client) readFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close shuts the outbound queue, which stops the writer and closes the
// socket. Safe to call from both the read loop and server shutdown.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}
