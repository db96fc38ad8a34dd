package redislisten

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/ports"
)

// Ensure Listener implements the NotificationListener interface
var _ ports.NotificationListener = (*Listener)(nil)

// Listener wakes the poller through a Redis Pub/Sub channel, for setups
// where emitters and pollers share a cache but not a Postgres listener
// connection. go-redis resubscribes automatically on connection loss.
type Listener struct {
	client  *redis.Client
	channel string
	logger  infrastructure.Logger

	mu        sync.Mutex
	pubsub    *redis.PubSub
	events    chan string
	done      chan struct{}
	connected bool
}

func New(client *redis.Client, channel string, logger infrastructure.Logger) *Listener {
	return &Listener{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func (l *Listener) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return nil
	}

	pubsub := l.client.Subscribe(ctx, l.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()

		return err
	}

	l.pubsub = pubsub
	l.events = make(chan string, 32)
	l.done = make(chan struct{})
	l.connected = true

	go l.forward(pubsub, l.events, l.done)

	l.logger.Info().Str("channel", l.channel).Msg("subscribed to outbox notifications")

	return nil
}

func (l *Listener) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return nil
	}

	l.connected = false
	close(l.done)

	return l.pubsub.Close()
}

func (l *Listener) Events() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.events
}

func (l *Listener) forward(pubsub *redis.PubSub, events chan string, done chan struct{}) {
	defer close(events)

	messages := pubsub.Channel()

	for {
		select {
		case <-done:
			return

		case message, ok := <-messages:
			if !ok {
				return
			}

			select {
			case events <- message.Payload:
			default:
			}
		}
	}
}
