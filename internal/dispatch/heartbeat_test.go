package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"firefly-live/internal/registry"
)

func TestHeartbeatBroadcastsOnlineCount(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	reg := registry.New(log)

	a := &fakeSession{id: "a", open: true}
	b := &fakeSession{id: "b", open: true}
	reg.Register(a)
	reg.Register(b)

	hb := NewHeartbeat(reg, 10*time.Millisecond, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(a.frames()) > 0 && len(b.frames()) > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop on cancellation")
	}

	var payload struct {
		OnlineCount int64  `json:"onlineCount"`
		Msg         string `json:"msg"`
	}
	require.NoError(t, json.Unmarshal(a.frames()[0], &payload))
	require.Equal(t, int64(2), payload.OnlineCount)
	require.NotEmpty(t, payload.Msg)
}

func TestHeartbeatSkipsClosedSessions(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	reg := registry.New(log)

	open := &fakeSession{id: "a", open: true}
	closed := &fakeSession{id: "b", open: false}
	reg.Register(open)
	reg.Register(closed)

	hb := NewHeartbeat(reg, 10*time.Millisecond, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.Run(ctx)

	require.Eventually(t, func() bool { return len(open.frames()) > 0 }, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, closed.frames())
}
