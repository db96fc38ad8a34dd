package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/architeacher/svc-event-outbox/internal/config"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
)

type (
	// Publisher sends event payloads to a message broker.
	Publisher interface {
		Publish(ctx context.Context, routingKey string, payload any) error
		Close() error
	}

	// AMQPPublisher publishes to a topic exchange, one routing key per
	// event name.
	AMQPPublisher struct {
		cfg    config.QueueConfig
		logger infrastructure.Logger

		mu      sync.Mutex
		conn    *amqp.Connection
		channel *amqp.Channel
	}
)

func NewAMQPPublisher(cfg config.QueueConfig, logger infrastructure.Logger) (*AMQPPublisher, error) {
	publisher := &AMQPPublisher{
		cfg:    cfg,
		logger: logger,
	}

	if err := publisher.connect(); err != nil {
		return nil, err
	}

	return publisher, nil
}

func (p *AMQPPublisher) connect() error {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		p.cfg.Username, p.cfg.Password, p.cfg.Host, p.cfg.Port, p.cfg.VirtualHost)

	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: p.cfg.Heartbeat,
		Dial:      amqp.DefaultDial(p.cfg.ConnectTimeout),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to queue: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		p.cfg.ExchangeName,
		"topic",
		p.cfg.Durable,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()

		return fmt.Errorf("failed to declare exchange %q: %w", p.cfg.ExchangeName, err)
	}

	p.conn = conn
	p.channel = channel

	p.logger.Info().
		Str("exchange", p.cfg.ExchangeName).
		Msg("queue publisher connected")

	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	deliveryMode := amqp.Transient
	if p.cfg.Durable {
		deliveryMode = amqp.Persistent
	}

	if err := p.channel.PublishWithContext(ctx,
		p.cfg.ExchangeName,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: deliveryMode,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", routingKey, err)
	}

	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
	}

	if p.conn != nil {
		return p.conn.Close()
	}

	return nil
}
