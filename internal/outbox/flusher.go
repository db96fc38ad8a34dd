package outbox

import (
	"context"
	"fmt"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/ports"
)

// DefaultFlushLimit bounds a manual flush when the caller passes no limit.
const DefaultFlushLimit = 1000

// Flusher synchronously drains pending records, due or not. It exists for
// administrative tooling and tests; regular delivery belongs to the poller.
type Flusher struct {
	driver    ports.Driver
	configs   ports.ConfigResolver
	listeners *ListenerRegistry
	processor *Processor
	logger    infrastructure.Logger
}

func NewFlusher(
	driver ports.Driver,
	configs ports.ConfigResolver,
	listeners *ListenerRegistry,
	processor *Processor,
	logger infrastructure.Logger,
) *Flusher {
	return &Flusher{
		driver:    driver,
		configs:   configs,
		listeners: listeners,
		processor: processor,
		logger:    logger,
	}
}

// ProcessAllPending dispatches up to limit pending records through the
// processor and reports how many settled cleanly.
func (f *Flusher) ProcessAllPending(ctx context.Context, limit int) (domain.FlushResult, error) {
	if limit <= 0 {
		limit = DefaultFlushLimit
	}

	records, err := f.driver.FindPending(ctx, limit)
	if err != nil {
		return domain.FlushResult{}, fmt.Errorf("failed to find pending records: %w", err)
	}

	result := domain.FlushResult{}

	for _, record := range records {
		if err := f.flush(ctx, record); err != nil {
			f.logger.Warn().
				Err(err).
				Int64("record_id", record.ID).
				Str("event_name", record.EventName).
				Msg("manual flush failed for record")

			result.Failed++

			continue
		}

		result.Processed++
	}

	return result, nil
}

func (f *Flusher) flush(ctx context.Context, record *domain.OutboxRecord) error {
	eventConfig, err := f.configs.Resolve(record.EventName)
	if err != nil {
		return err
	}

	listeners := f.listeners.Get(record.EventName)

	remainder := make([]ports.Listener, 0, len(listeners))
	for _, listener := range listeners {
		if !record.IsDeliveredTo(listener.Name()) {
			remainder = append(remainder, listener)
		}
	}

	return f.processor.Process(ctx, eventConfig, record, remainder)
}
