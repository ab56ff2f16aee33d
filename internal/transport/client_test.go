package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"firefly-live/internal/bloom"
	"firefly-live/internal/cache"
	"firefly-live/internal/danmu"
	"firefly-live/internal/dispatch"
	"firefly-live/internal/registry"
)

// newSocketPair upgrades a real connection and hands back both ends, so a
// Client can be driven directly without the HTTP handler in the way.
func newSocketPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	clientConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	select {
	case serverConn := <-connCh:
		t.Cleanup(func() { serverConn.Close() })
		return serverConn, clientConn
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the socket pair never arrived")
		return nil, nil
	}
}

func TestSendOverflowEvictsSlowSession(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := cache.NewMemory()
	reg := registry.New(log)
	history := danmu.NewHistory(store, bloom.New(store, 0), nopDurable{}, log)
	disp := dispatch.NewDispatcher(reg, &capturingPublisher{}, history, nopDurable{}, dispatch.Options{}, log)

	serverConn, _ := newSocketPair(t)
	c := &Client{
		id:   "slow",
		conn: serverConn,
		send: make(chan []byte, 4),
		disp: disp,
		log:  log.WithField("session", "slow"),
	}
	disp.OnConnectionOpened(c)
	require.Equal(t, int64(1), reg.Count())

	// No write pump running, so the handshake ack plus three payloads
	// fill the buffer.
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Send([]byte("payload")))
	}
	go c.readPump()

	err := c.Send([]byte("overflow"))
	require.Error(t, err)
	require.False(t, c.IsOpen(), "a session that overflowed its buffer must not stay open")
	require.ErrorIs(t, c.Send([]byte("after")), errSessionClosed)

	// The closed conn unwinds the read pump, which unregisters the session.
	require.Eventually(t, func() bool { return reg.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWritePumpCoalescesQueuedFrames(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	serverConn, clientConn := newSocketPair(t)
	c := &Client{
		id:   "burst",
		conn: serverConn,
		send: make(chan []byte, 8),
		log:  log.WithField("session", "burst"),
	}
	c.send <- []byte("first")
	c.send <- []byte("second")
	c.send <- []byte("third")
	go c.writePump()

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := clientConn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\nthird", string(frame))
}
