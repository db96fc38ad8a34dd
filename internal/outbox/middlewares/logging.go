package middlewares

import (
	"context"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/outbox"
)

var (
	_ outbox.EmitHook          = (*Logging)(nil)
	_ outbox.BeforeProcessHook = (*Logging)(nil)
	_ outbox.AfterProcessHook  = (*Logging)(nil)
	_ outbox.ErrorHook         = (*Logging)(nil)
	_ outbox.DeadLetterHook    = (*Logging)(nil)
)

// Logging traces every stage of an event's life through the pipeline.
type Logging struct {
	logger infrastructure.Logger
}

func NewLogging(logger infrastructure.Logger) *Logging {
	return &Logging{
		logger: logger,
	}
}

func (m *Logging) BeforeEmit(_ context.Context, event domain.Event) (domain.Event, error) {
	m.logger.Debug().
		Str("event_name", event.Name).
		Msg("emitting outbox event")

	return event, nil
}

func (m *Logging) BeforeProcess(_ context.Context, eventCtx domain.EventContext) error {
	m.logger.Debug().
		Int64("record_id", eventCtx.EventID).
		Str("event_name", eventCtx.EventName).
		Str("listener", eventCtx.ListenerName).
		Msg("dispatching to listener")

	return nil
}

func (m *Logging) AfterProcess(_ context.Context, eventCtx domain.EventContext, result domain.ExecutionResult) error {
	event := m.logger.Debug()
	if !result.Success {
		event = m.logger.Warn().Err(result.Err)
	}

	event.
		Int64("record_id", eventCtx.EventID).
		Str("event_name", eventCtx.EventName).
		Str("listener", eventCtx.ListenerName).
		Bool("success", result.Success).
		Dur("duration", result.Duration).
		Msg("listener settled")

	return nil
}

func (m *Logging) OnError(_ context.Context, eventCtx domain.EventContext, handleErr error) error {
	m.logger.Warn().
		Err(handleErr).
		Int64("record_id", eventCtx.EventID).
		Str("event_name", eventCtx.EventName).
		Str("listener", eventCtx.ListenerName).
		Msg("listener failed")

	return nil
}

func (m *Logging) OnDeadLetter(_ context.Context, deadLetterCtx domain.DeadLetterContext) error {
	m.logger.Error().
		Int64("record_id", deadLetterCtx.EventID).
		Str("event_name", deadLetterCtx.EventName).
		Int("retry_count", deadLetterCtx.RetryCount).
		Strs("delivered_to", deadLetterCtx.DeliveredTo).
		Msg("event exhausted its retry budget")

	return nil
}
