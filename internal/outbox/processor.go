package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/ports"
)

type (
	// Processor delivers one outbox record to its listeners and persists
	// the outcome. Listeners run in parallel, each under the event's
	// execution timeout.
	Processor struct {
		driver   ports.Driver
		pipeline *Pipeline
		filters  *FilterChain
		metrics  infrastructure.Metrics
		logger   infrastructure.Logger
	}

	listenerOutcome struct {
		listenerName string
		err          error
	}
)

func NewProcessor(
	driver ports.Driver,
	pipeline *Pipeline,
	filters *FilterChain,
	metrics infrastructure.Metrics,
	logger infrastructure.Logger,
) *Processor {
	return &Processor{
		driver:   driver,
		pipeline: pipeline,
		filters:  filters,
		metrics:  metrics,
		logger:   logger,
	}
}

// Process dispatches the record to the given listeners, then either retires
// the record (all delivered) or persists the grown delivered set. The
// caller filters out listeners that already acknowledged the record.
//
// Retry bookkeeping is not touched here; the claim operation owns
// retryCount, attemptAt and status.
func (p *Processor) Process(ctx context.Context, eventConfig domain.EventConfig, record *domain.OutboxRecord, listeners []ports.Listener) error {
	if len(listeners) == 0 {
		return nil
	}

	outcomes := make([]listenerOutcome, len(listeners))

	var wg sync.WaitGroup
	for i, listener := range listeners {
		wg.Go(func() {
			outcomes[i] = p.dispatch(ctx, eventConfig, record, listener)
		})
	}
	wg.Wait()

	succeeded := make([]string, 0, len(outcomes))
	failed := 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failed++

			continue
		}

		succeeded = append(succeeded, outcome.listenerName)
	}

	if len(succeeded) == 0 {
		// Nothing changed; the claim already pushed attemptAt out, so the
		// record stays due for a later cycle.
		return nil
	}

	record.MarkDelivered(succeeded...)

	// Listener invocations must never run inside an open transaction, so
	// the outcome is persisted in a fresh unit of work after all of them
	// settled.
	unitOfWork := p.driver.UnitOfWork()
	if failed == 0 {
		unitOfWork.StageRemove(record)
	} else {
		unitOfWork.StagePersist(record)
	}

	if err := unitOfWork.Commit(ctx); err != nil {
		return fmt.Errorf("failed to persist delivery outcome for record %d: %w", record.ID, err)
	}

	return nil
}

func (p *Processor) dispatch(ctx context.Context, eventConfig domain.EventConfig, record *domain.OutboxRecord, listener ports.Listener) listenerOutcome {
	eventCtx := domain.EventContext{
		EventID:      record.ID,
		EventName:    record.EventName,
		Payload:      record.EventPayload,
		ListenerName: listener.Name(),
	}

	start := time.Now()

	p.pipeline.NotifyBeforeProcess(ctx, eventCtx)

	execution := p.pipeline.Wrap(eventCtx, func(execCtx context.Context) error {
		return listener.Handle(execCtx, record.EventPayload, record.EventName)
	})

	err := p.invokeWithTimeout(ctx, eventConfig, eventCtx, execution)
	duration := time.Since(start)

	result := domain.ExecutionResult{
		Success:  err == nil,
		Err:      err,
		Duration: duration,
	}

	if err != nil {
		p.logger.Debug().
			Err(err).
			Int64("record_id", record.ID).
			Str("event_name", record.EventName).
			Str("listener", listener.Name()).
			Msg("listener delivery failed")

		p.pipeline.NotifyError(ctx, eventCtx, err)
		p.filters.Notify(ctx, err, eventCtx)
	}

	p.pipeline.NotifyAfterProcess(ctx, eventCtx, result)
	p.metrics.RecordDispatch(ctx, record.EventName, listener.Name(), err == nil, duration)

	return listenerOutcome{
		listenerName: listener.Name(),
		err:          err,
	}
}

// invokeWithTimeout runs the wrapped execution under the event's deadline.
// A timed-out listener is abandoned; its continuation cannot be killed, but
// its name is never added to the delivered set.
func (p *Processor) invokeWithTimeout(ctx context.Context, eventConfig domain.EventConfig, eventCtx domain.EventContext, execution Execution) error {
	execCtx := ctx
	if eventConfig.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, eventConfig.MaxExecutionTime)
		defer cancel()
	}

	done := make(chan error, 1)

	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- &domain.ListenerPanicError{
					ListenerName: eventCtx.ListenerName,
					Value:        recovered,
				}
			}
		}()

		done <- execution(execCtx)
	}()

	select {
	case err := <-done:
		return err

	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return &domain.ListenerTimeoutError{
				ListenerName: eventCtx.ListenerName,
				EventName:    eventCtx.EventName,
				Timeout:      eventConfig.MaxExecutionTime,
			}
		}

		return execCtx.Err()
	}
}
