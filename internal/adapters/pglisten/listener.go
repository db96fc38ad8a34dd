package pglisten

import (
	"context"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/ports"
)

// Ensure Listener implements the NotificationListener interface
var _ ports.NotificationListener = (*Listener)(nil)

// Listener wakes the poller through Postgres LISTEN/NOTIFY. The payload is
// the inserted row's id, but consumers treat any signal as a wake-up.
type Listener struct {
	dsn          string
	channel      string
	minReconnect time.Duration
	maxReconnect time.Duration
	logger       infrastructure.Logger

	mu        sync.Mutex
	pql       *pq.Listener
	events    chan string
	done      chan struct{}
	connected bool
}

func New(dsn, channel string, minReconnect, maxReconnect time.Duration, logger infrastructure.Logger) *Listener {
	return &Listener{
		dsn:          dsn,
		channel:      channel,
		minReconnect: minReconnect,
		maxReconnect: maxReconnect,
		logger:       logger,
	}
}

// Connect starts listening. Repeated calls on a connected listener are
// no-ops. lib/pq reconnects on its own within the configured interval
// bounds until Disconnect is called.
func (l *Listener) Connect(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return nil
	}

	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn().Err(err).Int("event", int(ev)).Msg("notification listener problem")
		}
	}

	pql := pq.NewListener(l.dsn, l.minReconnect, l.maxReconnect, reportProblem)
	if err := pql.Listen(l.channel); err != nil {
		_ = pql.Close()

		return err
	}

	l.pql = pql
	l.events = make(chan string, 32)
	l.done = make(chan struct{})
	l.connected = true

	go l.forward(pql, l.events, l.done)

	l.logger.Info().Str("channel", l.channel).Msg("listening for outbox notifications")

	return nil
}

// Disconnect stops the reconnect loop and completes the events stream.
func (l *Listener) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return nil
	}

	l.connected = false
	close(l.done)

	return l.pql.Close()
}

// Events yields one message per notification. The channel is closed on
// Disconnect.
func (l *Listener) Events() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.events
}

func (l *Listener) forward(pql *pq.Listener, events chan string, done chan struct{}) {
	defer close(events)

	for {
		select {
		case <-done:
			return

		case notification := <-pql.Notify:
			// A nil notification signals a reconnect; the poller does not
			// care about payloads, so nothing is forwarded.
			if notification == nil {
				continue
			}

			select {
			case events <- notification.Extra:
			default:
				// The poller throttles wake-ups anyway; dropping under
				// backpressure loses nothing.
			}
		}
	}
}
