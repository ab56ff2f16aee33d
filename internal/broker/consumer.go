package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Handler processes one delivery body. A nil return acks the delivery; an
// error wrapping ErrDrop discards it; any other error follows the
// consumer's requeue policy.
type Handler func(ctx context.Context, body []byte) error

type ConsumerConfig struct {
	Queue      string
	RoutingKey string
	Tag        string
	Workers    int
	Prefetch   int
	// RequeueOnError redelivers failed messages. Redelivery implies
	// duplicates; handlers are expected to tolerate them.
	RequeueOnError bool
}

func (c ConsumerConfig) validate() error {
	if c.Queue == "" {
		return fmt.Errorf("consumer queue is required")
	}
	if c.RoutingKey == "" {
		return fmt.Errorf("consumer routing key is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("consumer workers must be >= 1")
	}
	if c.Prefetch < 1 {
		return fmt.Errorf("consumer prefetch must be >= 1")
	}
	return nil
}

// Consumer drains one queue with a bounded pool of concurrent workers and
// manual acknowledgement.
type Consumer struct {
	cfg     ConsumerConfig
	handler Handler
	conn    *amqp.Connection
	ch      *amqp.Channel
	deliver <-chan amqp.Delivery
	ops     chan amqp.Delivery
	closed  chan struct{}
	wg      sync.WaitGroup
	log     *logrus.Entry
}

func NewConsumer(conn *amqp.Connection, cfg ConsumerConfig, handler Handler, log *logrus.Logger) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("consumer handler is required")
	}
	if cfg.Tag == "" {
		cfg.Tag = "firefly-" + cfg.Queue
	}
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		conn:    conn,
		ops:     make(chan amqp.Delivery, cfg.Prefetch),
		closed:  make(chan struct{}),
		log:     log.WithField("component", "consumer-"+cfg.Queue),
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set prefetch: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(c.cfg.Queue, c.cfg.RoutingKey, Exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}
	c.ch, c.deliver = ch, deliveries

	c.wg.Add(1)
	go c.readLoop(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.workerLoop(ctx)
	}
	c.log.WithFields(logrus.Fields{"workers": c.cfg.Workers, "prefetch": c.cfg.Prefetch}).Info("consumer started")
	return nil
}

func (c *Consumer) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}
	if c.ch != nil {
		_ = c.ch.Cancel(c.cfg.Tag, false)
	}
	c.wg.Wait()
	if c.ch != nil {
		return c.ch.Close()
	}
	return nil
}

func (c *Consumer) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case d, ok := <-c.deliver:
			if !ok {
				return
			}
			select {
			case c.ops <- d:
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			}
		}
	}
}

func (c *Consumer) workerLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case d := <-c.ops:
			c.processDelivery(ctx, d)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery) {
	err := c.handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.WithError(ackErr).Warn("ack failed")
		}
		return
	}
	if errors.Is(err, ErrDrop) {
		c.log.WithError(err).Warn("dropping poison delivery")
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.log.WithError(nackErr).Warn("nack failed")
		}
		return
	}
	c.log.WithError(err).WithField("requeue", c.cfg.RequeueOnError).Warn("delivery failed")
	if nackErr := d.Nack(false, c.cfg.RequeueOnError); nackErr != nil {
		c.log.WithError(nackErr).Warn("nack failed")
	}
}
