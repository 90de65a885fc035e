package services

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum control message size allowed from peer
	maxMessageSize = 4 * 1024

	// Send buffer size
	sendBufferSize = 256
)

var (
	// ErrClientClosed is returned by Send after the client connection
	// has been torn down.
	ErrClientClosed = errors.New("websocket client closed")

	// ErrSendBufferFull is returned when the peer is too slow to
	// drain its buffer; the hub treats it as a disconnect.
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

// WSClient adapts a WebSocket connection to the Subscriber
// capability. Sends are bounded: a full buffer fails immediately
// instead of blocking the broadcast path.
type WSClient struct {
	ID         string
	conn       *websocket.Conn
	send       chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	remoteAddr string
	detach     func(*WSClient)
}

// NewWSClient wraps a WebSocket connection. detach is called exactly
// once when the connection goes away, so the owner can remove the
// client from its registry.
func NewWSClient(conn *websocket.Conn, remoteAddr string, detach func(*WSClient)) *WSClient {
	return &WSClient{
		ID:         uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		closed:     make(chan struct{}),
		remoteAddr: remoteAddr,
		detach:     detach,
	}
}

// RemoteAddr reports the peer address recorded at upgrade time.
func (c *WSClient) RemoteAddr() string {
	return c.remoteAddr
}

// Send queues a message for delivery. It never blocks; a closed
// connection or full buffer is reported as an error.
func (c *WSClient) Send(message []byte) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- message:
		return nil
	case <-c.closed:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// Close tears the connection down; idempotent.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
		if c.detach != nil {
			c.detach(c)
		}
	})
}

// ReadPump consumes control messages from the peer until the
// connection drops. Run in its own goroutine.
func (c *WSClient) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WebSocket error from %s: %v", c.remoteAddr, err)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(map[string]string{"type": "pong"})
			c.Send(pong)
		}
	}
}

// WritePump drains the send buffer to the peer and keeps the
// connection alive with pings. Run in its own goroutine.
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
