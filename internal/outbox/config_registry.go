package outbox

import (
	"fmt"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/ports"
)

// Ensure ConfigRegistry implements the ConfigResolver interface
var _ ports.ConfigResolver = (*ConfigRegistry)(nil)

// ConfigRegistry holds the delivery policy per event name. It is immutable
// after construction, which lets the emitter, poller and driver read it
// without locking.
type ConfigRegistry struct {
	configs map[string]domain.EventConfig
}

func NewConfigRegistry(configs ...domain.EventConfig) (*ConfigRegistry, error) {
	registry := &ConfigRegistry{
		configs: make(map[string]domain.EventConfig, len(configs)),
	}

	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("event config requires a name")
		}

		if _, exists := registry.configs[cfg.Name]; exists {
			return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateEventName, cfg.Name)
		}

		registry.configs[cfg.Name] = cfg
	}

	return registry, nil
}

// Resolve returns the configuration for an event name.
func (r *ConfigRegistry) Resolve(eventName string) (domain.EventConfig, error) {
	cfg, ok := r.configs[eventName]
	if !ok {
		return domain.EventConfig{}, fmt.Errorf("%w: %q", domain.ErrUnknownEvent, eventName)
	}

	return cfg, nil
}

// EventNames lists all configured event names.
func (r *ConfigRegistry) EventNames() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}

	return names
}
