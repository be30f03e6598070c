package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/r14dd/matchsentinel/internal/config"
	"github.com/r14dd/matchsentinel/internal/metrics"
)

const (
	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10
	handlerTimeout       = 30 * time.Second
)

// ErrDropMessage tells the consumer the message is malformed beyond
// retry; it is rejected without requeueing.
var ErrDropMessage = errors.New("drop message")

// HandlerFunc processes one delivery body. A nil return acks, an
// ErrDropMessage return rejects without requeue, any other error
// requeues for redelivery. Handlers must be safe to re-invoke with the
// same payload at any time.
type HandlerFunc func(ctx context.Context, body []byte) error

// Binding declares one durable queue bound to a producing exchange with a
// fixed routing key, served by its own worker pool.
type Binding struct {
	Exchange   string
	RoutingKey string
	Queue      string
	Handler    HandlerFunc
}

type Consumer struct {
	cfg      config.RabbitConfig
	log      *logrus.Logger
	bindings []Binding

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.RabbitConfig, log *logrus.Logger, bindings ...Binding) (*Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Consumer{
		cfg:      cfg,
		log:      log,
		bindings: bindings,
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := c.connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return c, nil
}

func (c *Consumer) connect() error {
	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.cfg.User, c.cfg.Password, c.cfg.Host, c.cfg.Port, c.cfg.VHost)

	conn, err := amqp.Dial(dsn)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	for _, b := range c.bindings {
		if err := ch.ExchangeDeclare(
			b.Exchange,
			"direct",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,   // arguments
		); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("failed to declare exchange %s: %w", b.Exchange, err)
		}

		if _, err := ch.QueueDeclare(
			b.Queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("failed to declare queue %s: %w", b.Queue, err)
		}

		if err := ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("failed to bind queue %s: %w", b.Queue, err)
		}
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"host":   c.cfg.Host,
		"queues": len(c.bindings),
	}).Info("connected to RabbitMQ")

	// Monitor connection for errors
	go c.monitorConnection()

	return nil
}

func (c *Consumer) monitorConnection() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return
	}

	notifyClose := conn.NotifyClose(make(chan *amqp.Error))

	select {
	case err := <-notifyClose:
		if err != nil {
			c.log.WithError(err).Error("RabbitMQ connection closed unexpectedly")
			c.reconnect()
		}
	case <-c.ctx.Done():
		return
	}
}

func (c *Consumer) reconnect() {
	c.mu.Lock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		c.log.WithField("attempt", attempt).Info("attempting to reconnect to RabbitMQ")

		if err := c.connect(); err == nil {
			c.log.Info("successfully reconnected to RabbitMQ")
			go func() {
				if err := c.Start(c.ctx); err != nil && c.ctx.Err() == nil {
					c.log.WithError(err).Error("failed to restart consumer after reconnect")
				}
			}()
			return
		}

		delay := reconnectDelay * time.Duration(attempt)
		c.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("reconnection failed, retrying")

		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return
		}
	}

	c.log.Error("max reconnection attempts reached, giving up")
}

// Start consumes every bound queue until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()

	if channel == nil {
		return fmt.Errorf("channel is not initialized")
	}

	for _, b := range c.bindings {
		msgs, err := channel.Consume(
			b.Queue,
			"",    // consumer tag
			false, // auto-ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to start consuming %s: %w", b.Queue, err)
		}

		c.log.WithFields(logrus.Fields{
			"queue":   b.Queue,
			"workers": c.cfg.Workers,
		}).Info("starting consumer workers")

		for i := 0; i < c.cfg.Workers; i++ {
			c.wg.Add(1)
			go c.worker(ctx, b, msgs, i)
		}
	}

	<-ctx.Done()
	c.log.Info("stopping consumer workers")
	c.wg.Wait()

	return nil
}

func (c *Consumer) worker(ctx context.Context, b Binding, msgs <-chan amqp.Delivery, workerID int) {
	defer c.wg.Done()

	c.log.WithFields(logrus.Fields{
		"queue":     b.Queue,
		"worker_id": workerID,
	}).Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				c.log.WithField("queue", b.Queue).Warn("message channel closed")
				return
			}

			c.handleDelivery(ctx, b, msg)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, b Binding, msg amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	err := b.Handler(ctx, msg.Body)
	switch {
	case err == nil:
		if err := msg.Ack(false); err != nil {
			c.log.WithError(err).Warn("failed to ack message")
		}
		metrics.EventsConsumed.WithLabelValues(b.Queue, "ok").Inc()

	case errors.Is(err, ErrDropMessage):
		c.log.WithFields(logrus.Fields{
			"queue": b.Queue,
			"error": err,
			"body":  string(msg.Body),
		}).Error("dropping malformed message")
		_ = msg.Nack(false, false)
		metrics.EventsConsumed.WithLabelValues(b.Queue, "dropped").Inc()

	default:
		c.log.WithFields(logrus.Fields{
			"queue": b.Queue,
			"error": err,
		}).Error("handler failed, requeueing message")
		_ = msg.Nack(false, true)
		metrics.EventsConsumed.WithLabelValues(b.Queue, "requeued").Inc()
	}
}

func (c *Consumer) Close() {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.log.Info("consumer closed")
}
