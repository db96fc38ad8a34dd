package outbox

import (
	"fmt"
	"slices"
	"sync"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/ports"
)

// ListenerRegistry maps event names to their listeners. It may be mutated
// at runtime; readers always get a stable snapshot.
type ListenerRegistry struct {
	mu        sync.RWMutex
	listeners map[string][]ports.Listener
}

func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{
		listeners: make(map[string][]ports.Listener),
	}
}

// Add registers a listener for an event, keeping registration order. A
// second listener with the same name for the same event is rejected.
func (r *ListenerRegistry) Add(eventName string, listener ports.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.listeners[eventName] {
		if existing.Name() == listener.Name() {
			return fmt.Errorf("%w: %q for event %q", domain.ErrDuplicateListenerName, listener.Name(), eventName)
		}
	}

	r.listeners[eventName] = append(r.listeners[eventName], listener)

	return nil
}

// RemoveAll unregisters every listener of an event.
func (r *ListenerRegistry) RemoveAll(eventName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.listeners, eventName)
}

// Get returns the listeners of an event in registration order.
func (r *ListenerRegistry) Get(eventName string) []ports.Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.listeners[eventName])
}

// EventNames lists the events that currently have listeners.
func (r *ListenerRegistry) EventNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.listeners))
	for name := range r.listeners {
		names = append(names, name)
	}

	return names
}
