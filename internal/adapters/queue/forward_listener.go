package queue

import (
	"context"

	"github.com/architeacher/svc-event-outbox/internal/ports"
)

// ForwardListenerName is the identity recorded in delivered_to_listeners.
const ForwardListenerName = "queue-forwarder"

// Ensure ForwardListener implements the Listener interface
var _ ports.Listener = (*ForwardListener)(nil)

// ForwardListener republishes delivered outbox events to the message
// broker, using the event name as routing key. It turns the outbox into a
// reliable bridge between a database transaction and the queue.
type ForwardListener struct {
	publisher Publisher
}

func NewForwardListener(publisher Publisher) *ForwardListener {
	return &ForwardListener{
		publisher: publisher,
	}
}

func (l *ForwardListener) Name() string {
	return ForwardListenerName
}

func (l *ForwardListener) Handle(ctx context.Context, payload any, eventName string) error {
	return l.publisher.Publish(ctx, eventName, payload)
}
