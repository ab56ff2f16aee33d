package registry

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Session is one live duplex channel to a client. The transport layer owns
// the underlying connection; the registry only routes payloads to it.
type Session interface {
	ID() string
	// UserID is the authenticated principal, 0 for guests.
	UserID() int64
	IsOpen() bool
	Send(payload []byte) error
}

// Registry is the in-memory map of live sessions plus the online counter.
// Safe for concurrent use from the transport callbacks, the broker
// consumers and the heartbeat without external locking.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	online   atomic.Int64
	log      *logrus.Entry
}

func New(log *logrus.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		log:      log.WithField("component", "registry"),
	}
}

// Register inserts the session and bumps the online count. If the session
// id is already present (a reconnect) the handle is replaced in place and
// the count is not incremented again.
func (r *Registry) Register(sess Session) {
	r.mu.Lock()
	_, replaced := r.sessions[sess.ID()]
	r.sessions[sess.ID()] = sess
	if !replaced {
		r.online.Add(1)
	}
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{"session": sess.ID(), "online": r.Count()}).Info("session registered")
}

// Unregister removes the session and decrements the count. Duplicate close
// notifications are a no-op, so the count is decremented exactly once.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	_, present := r.sessions[sessionID]
	if present {
		delete(r.sessions, sessionID)
		r.online.Add(-1)
	}
	r.mu.Unlock()
	if !present {
		return
	}
	r.log.WithFields(logrus.Fields{"session": sessionID, "online": r.Count()}).Info("session unregistered")
}

func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sessionID]
	return sess, ok
}

// Snapshot returns the currently registered sessions. The slice is a copy;
// sessions may close between the snapshot and any use of it.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Count is the number of registered sessions. Never negative.
func (r *Registry) Count() int64 {
	return r.online.Load()
}

// Broadcast attempts delivery to every open session. Per-session failures
// are logged and skipped; partial delivery is accepted.
func (r *Registry) Broadcast(payload []byte) {
	for _, sess := range r.Snapshot() {
		if !sess.IsOpen() {
			continue
		}
		if err := sess.Send(payload); err != nil {
			r.log.WithError(err).WithField("session", sess.ID()).Warn("broadcast delivery failed")
		}
	}
}
