package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const confirmTimeout = 5 * time.Second

// Producer publishes one event class to the topic exchange over its own
// confirm-mode channel.
type Producer struct {
	mu  sync.Mutex
	ch  *amqp.Channel
	log *logrus.Entry
}

func NewProducer(conn *amqp.Connection, name string, log *logrus.Logger) (*Producer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open producer channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Producer{ch: ch, log: log.WithField("component", "producer-"+name)}, nil
}

// Publish sends synchronously and waits for the broker confirm.
func (p *Producer) Publish(ctx context.Context, routingKey string, body []byte) error {
	confirm, err := p.publish(ctx, routingKey, body)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	select {
	case <-confirm.Done():
		if !confirm.Acked() {
			return fmt.Errorf("publish %s: nacked by broker", routingKey)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", routingKey, ctx.Err())
	case <-time.After(confirmTimeout):
		return fmt.Errorf("publish %s: confirm timeout", routingKey)
	}
}

// PublishAsync is fire-and-forget from the caller's perspective: the
// confirm outcome is only logged. The dispatcher does not retry; broker
// buffering and redelivery are the fault boundary.
func (p *Producer) PublishAsync(ctx context.Context, routingKey string, body []byte) {
	go func() {
		confirm, err := p.publish(ctx, routingKey, body)
		if err != nil {
			p.log.WithError(err).WithField("key", routingKey).Warn("async publish failed")
			return
		}
		select {
		case <-confirm.Done():
			if !confirm.Acked() {
				p.log.WithField("key", routingKey).Warn("async publish nacked by broker")
				return
			}
			p.log.WithField("key", routingKey).Debug("async publish confirmed")
		case <-time.After(confirmTimeout):
			p.log.WithField("key", routingKey).Warn("async publish confirm timeout")
		}
	}()
}

func (p *Producer) publish(ctx context.Context, routingKey string, body []byte) (*amqp.DeferredConfirmation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithDeferredConfirmWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
