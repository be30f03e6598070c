package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/r14dd/matchsentinel/internal/config"
	"github.com/r14dd/matchsentinel/internal/metrics"
)

// Publisher sends persistent JSON messages to direct exchanges. Declared
// exchanges are redeclared after a reconnect.
type Publisher struct {
	cfg       config.RabbitConfig
	log       *logrus.Logger
	exchanges []string

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

func New(cfg config.RabbitConfig, log *logrus.Logger, exchanges ...string) (*Publisher, error) {
	p := &Publisher{
		cfg:       cfg,
		log:       log,
		exchanges: exchanges,
	}

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return p, nil
}

func (p *Publisher) connect() error {
	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		p.cfg.User, p.cfg.Password, p.cfg.Host, p.cfg.Port, p.cfg.VHost)

	conn, err := amqp.Dial(dsn)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	for _, exchange := range p.exchanges {
		if err := ch.ExchangeDeclare(
			exchange,
			"direct",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,   // arguments
		); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	p.conn = conn
	p.channel = ch

	p.log.WithFields(logrus.Fields{
		"host":      p.cfg.Host,
		"exchanges": p.exchanges,
	}).Info("publisher connected to RabbitMQ")

	return nil
}

// Publish marshals payload and sends it with the given routing key. A dead
// channel is reopened once before failing.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		p.log.Warn("publisher channel closed, reconnecting")
		p.closeLocked()
		if err := p.connect(); err != nil {
			metrics.PublishFailures.WithLabelValues(exchange).Inc()
			return err
		}
	}

	err = p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		metrics.PublishFailures.WithLabelValues(exchange).Inc()
		return fmt.Errorf("failed to publish to %s/%s: %w", exchange, routingKey, err)
	}

	return nil
}

func (p *Publisher) closeLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	p.log.Info("publisher closed")
}
