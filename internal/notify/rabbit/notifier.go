// Package rabbit implements the notify.Notifier interface on RabbitMQ.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/everylotbot/everylot/internal/everylot"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Config holds the RabbitMQ destination settings.
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// channel is the subset of *amqp.Channel the notifier uses. Tests
// substitute a fake.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Notifier publishes post-completion events to a topic exchange.
type Notifier struct {
	conn   *amqp.Connection
	ch     channel
	cfg    Config
	logger *zap.Logger
}

// New dials the broker, opens a channel and declares the exchange.
func New(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbit url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	n, err := NewWithChannel(ch, cfg, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	n.conn = conn
	return n, nil
}

// NewWithChannel builds a Notifier on an already-open channel and
// declares the exchange. Close leaves the connection the channel came
// from alone.
func NewWithChannel(ch channel, cfg Config, logger *zap.Logger) (*Notifier, error) {
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("rabbit exchange is required")
	}
	if cfg.RoutingKey == "" {
		return nil, fmt.Errorf("rabbit routing key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %q: %w", cfg.Exchange, err)
	}

	return &Notifier{
		ch:     ch,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Notify publishes the event as a persistent JSON message.
func (n *Notifier) Notify(ctx context.Context, event everylot.PostEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode post event: %w", err)
	}

	err = n.ch.PublishWithContext(
		ctx,
		n.cfg.Exchange,
		n.cfg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.RunID,
			Timestamp:    event.PostedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish post event: %w", err)
	}

	n.logger.Debug("Published post event",
		zap.String("exchange", n.cfg.Exchange),
		zap.String("routing_key", n.cfg.RoutingKey),
		zap.Int64("lot_id", event.LotID),
	)
	return nil
}

// Close closes the channel and, when this Notifier dialed it, the
// underlying connection.
func (n *Notifier) Close() error {
	var firstErr error
	if err := n.ch.Close(); err != nil {
		firstErr = err
	}
	if n.conn != nil {
		if err := n.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
