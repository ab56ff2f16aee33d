package transport

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"firefly-live/internal/dispatch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// TokenVerifier maps a handshake token to a principal id.
type TokenVerifier interface {
	Verify(tokenString string) (int64, error)
}

// Handler upgrades HTTP requests to live WebSocket sessions and hands
// them to the dispatcher.
type Handler struct {
	disp     *dispatch.Dispatcher
	verifier TokenVerifier
	log      *logrus.Entry
}

func NewHandler(disp *dispatch.Dispatcher, verifier TokenVerifier, log *logrus.Logger) *Handler {
	return &Handler{
		disp:     disp,
		verifier: verifier,
		log:      log.WithField("component", "transport"),
	}
}

// ServeWS handles the handshake. An invalid or missing token does not
// reject the connection: the session proceeds as a guest (userID 0),
// which can receive broadcasts but whose comments are never persisted.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if token := r.URL.Query().Get("token"); token != "" {
		uid, err := h.verifier.Verify(token)
		if err != nil {
			h.log.WithError(err).Debug("invalid token, continuing as guest")
		} else {
			userID = uid
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}

	sessionID := uuid.NewString()
	client := &Client{
		id:     sessionID,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		disp:   h.disp,
		log:    h.log.WithField("session", sessionID),
	}

	h.disp.OnConnectionOpened(client)

	go client.writePump()
	go client.readPump()
}
