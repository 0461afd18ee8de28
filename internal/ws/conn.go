package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
)

const (
	// authWait bounds how long an unauthenticated socket may sit in the
	// Authenticating state before being closed.
	authWait = 10 * time.Second

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 4096
	sendBuffer   = 32
)

// conn wraps one websocket with a buffered outbound queue. All socket
// writes happen on the writePump goroutine, so frames never interleave.
type conn struct {
	id        string
	sock      *websocket.Conn
	send      chan models.DeliveryEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, sock *websocket.Conn) *conn {
	return &conn{
		id:   id,
		sock: sock,
		send: make(chan models.DeliveryEvent, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *conn) ID() string {
	return c.id
}

// TrySend queues an event without blocking. A full buffer or a closed
// connection drops the event; the client catches up over HTTP.
func (c *conn) TrySend(event models.DeliveryEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Close tears the socket down exactly once and stops further sends.
func (c *conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with pings.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case event := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
