package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"firefly-live/internal/bloom"
	"firefly-live/internal/broker"
	"firefly-live/internal/cache"
	"firefly-live/internal/danmu"
	"firefly-live/internal/registry"
)

type fakeSession struct {
	id      string
	userID  int64
	open    bool
	sendErr error

	mu       sync.Mutex
	received [][]byte
}

func (f *fakeSession) ID() string    { return f.id }
func (f *fakeSession) UserID() int64 { return f.userID }
func (f *fakeSession) IsOpen() bool  { return f.open }

func (f *fakeSession) Send(payload []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.received = append(f.received, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.received))
	copy(out, f.received)
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	published []danmu.Frame
}

func (f *fakePublisher) PublishAsync(_ context.Context, routingKey string, body []byte) {
	var frame danmu.Frame
	if err := json.Unmarshal(body, &frame); err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.published = append(f.published, frame)
	f.mu.Unlock()
}

func (f *fakePublisher) frames() []danmu.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]danmu.Frame, len(f.published))
	copy(out, f.published)
	return out
}

type recordingDurable struct {
	saved chan danmu.Danmu
}

func (r *recordingDurable) SaveDanmu(_ context.Context, d *danmu.Danmu) error {
	r.saved <- *d
	return nil
}

func (r *recordingDurable) GetDanmus(context.Context, int64, time.Time, time.Time) ([]danmu.Danmu, error) {
	return nil, nil
}

type fixture struct {
	reg      *registry.Registry
	producer *fakePublisher
	durable  *recordingDurable
	history  *danmu.History
	disp     *Dispatcher
}

func newFixture(opts Options) *fixture {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	store := cache.NewMemory()
	reg := registry.New(log)
	producer := &fakePublisher{}
	durable := &recordingDurable{saved: make(chan danmu.Danmu, 8)}
	history := danmu.NewHistory(store, bloom.New(store, 0), durable, log)
	return &fixture{
		reg:      reg,
		producer: producer,
		durable:  durable,
		history:  history,
		disp:     NewDispatcher(reg, producer, history, durable, opts, log),
	}
}

func TestOnClientMessagePublishesOneFramePerSession(t *testing.T) {
	f := newFixture(Options{})
	a := &fakeSession{id: "a", open: true}
	b := &fakeSession{id: "b", open: true}
	c := &fakeSession{id: "c", open: true}
	f.disp.OnConnectionOpened(a)
	f.disp.OnConnectionOpened(b)
	f.disp.OnConnectionOpened(c)

	f.disp.OnClientMessage("a", []byte(`{"videoId":7,"content":"gg"}`))

	frames := f.producer.frames()
	require.Len(t, frames, 3)
	targets := map[string]bool{}
	for _, frame := range frames {
		targets[frame.SessionID] = true
		require.JSONEq(t, `{"videoId":7,"content":"gg"}`, frame.Message)
	}
	require.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, targets)
}

func TestOnClientMessageEmptyPayloadIsIgnored(t *testing.T) {
	f := newFixture(Options{})
	f.disp.OnConnectionOpened(&fakeSession{id: "a", open: true})
	f.disp.OnClientMessage("a", nil)
	require.Empty(t, f.producer.frames())
}

func TestAuthenticatedMessageIsPersistedAndCached(t *testing.T) {
	f := newFixture(Options{})
	f.disp.OnConnectionOpened(&fakeSession{id: "a", userID: 99, open: true})

	f.disp.OnClientMessage("a", []byte(`{"videoId":7,"content":"gg"}`))

	select {
	case saved := <-f.durable.saved:
		require.Equal(t, int64(99), saved.UserID)
		require.Equal(t, int64(7), saved.VideoID)
		require.Equal(t, "gg", saved.Content)
		require.False(t, saved.CreateTime.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("async durable write never happened")
	}

	list, err := f.history.Query(context.Background(), 7, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "gg", list[0].Content)
}

func TestGuestMessageIsBroadcastButNotPersisted(t *testing.T) {
	f := newFixture(Options{})
	f.disp.OnConnectionOpened(&fakeSession{id: "a", userID: 0, open: true})

	f.disp.OnClientMessage("a", []byte(`{"videoId":7,"content":"gg"}`))

	require.Len(t, f.producer.frames(), 1)
	select {
	case <-f.durable.saved:
		t.Fatal("guest comment must not be persisted")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleDanmuDeliveryToOpenSession(t *testing.T) {
	f := newFixture(Options{})
	sess := &fakeSession{id: "a", open: true}
	f.reg.Register(sess)

	body, _ := json.Marshal(danmu.Frame{SessionID: "a", Message: "hello"})
	require.NoError(t, f.disp.HandleDanmuDelivery(context.Background(), body))

	frames := sess.frames()
	require.Len(t, frames, 1)
	require.Equal(t, "hello", string(frames[0]))
}

func TestHandleDanmuDeliveryUnknownSessionDropsByDefault(t *testing.T) {
	f := newFixture(Options{})
	body, _ := json.Marshal(danmu.Frame{SessionID: "gone", Message: "hello"})
	require.NoError(t, f.disp.HandleDanmuDelivery(context.Background(), body))
}

func TestHandleDanmuDeliveryUnknownSessionRequeuePolicy(t *testing.T) {
	f := newFixture(Options{RequeueUnknownSession: true})
	body, _ := json.Marshal(danmu.Frame{SessionID: "gone", Message: "hello"})
	err := f.disp.HandleDanmuDelivery(context.Background(), body)
	require.Error(t, err)
	require.NotErrorIs(t, err, broker.ErrDrop, "requeue signal must not look like poison")
}

func TestHandleDanmuDeliveryClosedSessionTreatedAsGone(t *testing.T) {
	f := newFixture(Options{})
	f.reg.Register(&fakeSession{id: "a", open: false})
	body, _ := json.Marshal(danmu.Frame{SessionID: "a", Message: "hello"})
	require.NoError(t, f.disp.HandleDanmuDelivery(context.Background(), body))
}

func TestHandleDanmuDeliverySendFailureIsAbsorbed(t *testing.T) {
	f := newFixture(Options{})
	f.reg.Register(&fakeSession{id: "a", open: true, sendErr: errors.New("broken pipe")})
	body, _ := json.Marshal(danmu.Frame{SessionID: "a", Message: "hello"})
	require.NoError(t, f.disp.HandleDanmuDelivery(context.Background(), body))
}

func TestHandleDanmuDeliveryBadPayloadIsDropped(t *testing.T) {
	f := newFixture(Options{})
	err := f.disp.HandleDanmuDelivery(context.Background(), []byte("{not-json"))
	require.ErrorIs(t, err, broker.ErrDrop)
}
