package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"firefly-live/internal/registry"
)

// DefaultHeartbeatInterval matches the reference cadence for the
// online-count push.
const DefaultHeartbeatInterval = 5 * time.Second

// Heartbeat periodically broadcasts the current online count to every
// live session. Best-effort telemetry: send failures are absorbed by the
// registry's broadcast.
type Heartbeat struct {
	reg      *registry.Registry
	interval time.Duration
	log      *logrus.Entry
}

func NewHeartbeat(reg *registry.Registry, interval time.Duration, log *logrus.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{reg: reg, interval: interval, log: log.WithField("component", "heartbeat")}
}

// Run blocks until the context is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.log.Info("heartbeat stopped")
			return
		case <-ticker.C:
			h.reg.Broadcast(h.payload())
		}
	}
}

func (h *Heartbeat) payload() []byte {
	n := h.reg.Count()
	buf, _ := json.Marshal(map[string]any{
		"onlineCount": n,
		"msg":         fmt.Sprintf("%d viewers online", n),
	})
	return buf
}
