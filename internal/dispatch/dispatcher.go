package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"firefly-live/internal/broker"
	"firefly-live/internal/danmu"
	"firefly-live/internal/registry"
)

// AsyncPublisher is the fire-and-forget producer side of one event class.
type AsyncPublisher interface {
	PublishAsync(ctx context.Context, routingKey string, body []byte)
}

type Options struct {
	// RequeueUnknownSession controls what happens when a danmu delivery
	// targets a session this instance does not hold: drop it (default, the
	// recipient most likely disconnected) or hand it back to the broker
	// for redelivery.
	RequeueUnknownSession bool
}

// Dispatcher orchestrates the danmu pipeline: inbound client messages are
// fanned out through the broker, broker deliveries are resolved against
// the registry and pushed to their target session. Constructed once and
// handed to the transport layer; every collaborator is an explicit
// reference, nothing is looked up globally.
type Dispatcher struct {
	reg      *registry.Registry
	producer AsyncPublisher
	history  *danmu.History
	durable  danmu.DurableStore
	opts     Options
	log      *logrus.Entry
}

func NewDispatcher(reg *registry.Registry, producer AsyncPublisher, history *danmu.History, durable danmu.DurableStore, opts Options, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		producer: producer,
		history:  history,
		durable:  durable,
		opts:     opts,
		log:      log.WithField("component", "dispatcher"),
	}
}

// OnConnectionOpened registers the session and sends the initial ack
// frame. Send failures on the ack are logged, never fatal to the session.
func (d *Dispatcher) OnConnectionOpened(sess registry.Session) {
	d.reg.Register(sess)
	if err := sess.Send([]byte("0")); err != nil {
		d.log.WithError(err).WithField("session", sess.ID()).Warn("initial ack failed")
	}
}

// OnConnectionClosed is idempotent; duplicate notifications are absorbed
// by the registry.
func (d *Dispatcher) OnConnectionClosed(sessionID string) {
	d.reg.Unregister(sessionID)
}

// OnClientMessage takes one inbound live comment and publishes one broker
// message per currently registered session, each addressed to that
// session. Delivery happens on the consumer side, possibly in another
// process. If the sender is authenticated the comment is also persisted:
// durable write async, cache append synchronous.
func (d *Dispatcher) OnClientMessage(sessionID string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	ctx := context.Background()

	for _, sess := range d.reg.Snapshot() {
		body, err := json.Marshal(danmu.Frame{SessionID: sess.ID(), Message: string(payload)})
		if err != nil {
			d.log.WithError(err).Warn("encode danmu frame failed")
			continue
		}
		d.producer.PublishAsync(ctx, broker.RouteDanmu, body)
	}

	origin, ok := d.reg.Get(sessionID)
	if !ok || origin.UserID() == 0 {
		return
	}

	var dm danmu.Danmu
	if err := json.Unmarshal(payload, &dm); err != nil {
		d.log.WithError(err).WithField("session", sessionID).Warn("unparseable danmu payload, not persisted")
		return
	}
	dm.UserID = origin.UserID()
	dm.CreateTime = time.Now()

	go func() {
		if err := d.durable.SaveDanmu(context.Background(), &dm); err != nil {
			d.log.WithError(err).WithField("video", dm.VideoID).Error("durable danmu write failed")
		}
	}()

	if err := d.history.Append(ctx, dm); err != nil {
		d.log.WithError(err).WithField("video", dm.VideoID).Error("cache danmu append failed")
	}
}

// HandleDanmuDelivery is the broker handler for the danmu queue: resolve
// the target session and push the payload verbatim. Transport-level send
// failures are logged and skipped, never surfaced to the broker.
func (d *Dispatcher) HandleDanmuDelivery(_ context.Context, body []byte) error {
	var frame danmu.Frame
	if err := json.Unmarshal(body, &frame); err != nil {
		return fmt.Errorf("decode danmu frame: %w", broker.ErrDrop)
	}

	sess, ok := d.reg.Get(frame.SessionID)
	if !ok || !sess.IsOpen() {
		if d.opts.RequeueUnknownSession {
			return fmt.Errorf("session %s not available", frame.SessionID)
		}
		d.log.WithField("session", frame.SessionID).Debug("target session gone, dropping")
		return nil
	}

	if err := sess.Send([]byte(frame.Message)); err != nil {
		d.log.WithError(err).WithField("session", frame.SessionID).Warn("delivery send failed")
	}
	return nil
}
