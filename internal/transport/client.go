package transport

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"firefly-live/internal/dispatch"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.

	sendBuffer = 256
)

var errSessionClosed = errors.New("transport: session closed")

// Client is one live WebSocket session. It implements registry.Session;
// the dispatcher routes payloads to it through Send.
type Client struct {
	id     string
	userID int64
	conn   *websocket.Conn
	send   chan []byte
	disp   *dispatch.Dispatcher
	closed atomic.Bool
	log    *logrus.Entry
}

func (c *Client) ID() string    { return c.id }
func (c *Client) UserID() int64 { return c.userID }
func (c *Client) IsOpen() bool  { return !c.closed.Load() }

// Send queues a payload for the write pump. A full buffer means the
// client cannot keep up: the session is evicted rather than blocking a
// broker worker or the heartbeat, or silently dropping frames while
// still counting as online.
func (c *Client) Send(payload []byte) error {
	if c.closed.Load() {
		return errSessionClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.evict()
		return errors.New("transport: send buffer full, session evicted")
	}
}

// evict closes the underlying connection exactly once. The pumps unwind
// on the closed conn and the read pump's cleanup unregisters the session.
func (c *Client) evict() {
	if c.closed.CompareAndSwap(false, true) {
		c.log.Warn("slow client, evicting session")
		c.conn.Close()
	}
}

// readPump pumps messages from the websocket connection to the dispatcher.
func (c *Client) readPump() {
	defer func() {
		c.closed.Store(true)
		c.disp.OnConnectionClosed(c.id)
		c.conn.Close()
	}()

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
				c.log.WithError(err).Warn("read failed")
			}
			break
		}
		c.disp.OnClientMessage(c.id, message)
	}
}

// writePump pumps queued payloads to the websocket connection and keeps
// the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closed.Store(true)
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush any queued frames into the same writer so a burst
			// costs one syscall instead of one per frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
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
