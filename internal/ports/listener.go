package ports

import (
	"context"
)

type (
	// Listener handles delivered outbox events. Implementations must be
	// safe for concurrent use, the engine invokes listeners in parallel.
	Listener interface {
		// Name identifies the listener in delivery tracking. It must be
		// unique and stable across restarts.
		Name() string

		// Handle processes one delivery attempt. A non-nil error schedules
		// the record for retry with this listener.
		Handle(ctx context.Context, payload any, eventName string) error
	}

	// NotificationListener receives push notifications that new outbox
	// records were committed, so the poller can wake up before its next
	// scheduled tick.
	NotificationListener interface {
		Connect(ctx context.Context) error
		Disconnect() error

		// Events yields one message per notification. The channel is
		// closed on Disconnect.
		Events() <-chan string
	}
)
