package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/ports"
	"github.com/architeacher/svc-event-outbox/internal/shared/clock"
)

type (
	// EntityOp is a business-entity write the caller wants committed in the
	// same transaction as the outbox record.
	EntityOp struct {
		entity any
		remove bool
	}

	emitOptions struct {
		unitOfWork ports.UnitOfWork
	}

	EmitOption func(*emitOptions)

	// Emitter is the write side of the engine. It stages the caller's
	// entity operations together with the outbox record and commits them
	// as one transaction.
	Emitter struct {
		driver    ports.Driver
		configs   ports.ConfigResolver
		listeners *ListenerRegistry
		processor *Processor
		pipeline  *Pipeline
		metrics   infrastructure.Metrics
		logger    infrastructure.Logger
		clock     clock.Clock
	}
)

// Persist stages an entity save alongside the outbox record.
func Persist(entity any) EntityOp {
	return EntityOp{entity: entity}
}

// Remove stages an entity delete alongside the outbox record.
func Remove(entity any) EntityOp {
	return EntityOp{entity: entity, remove: true}
}

// WithUnitOfWork joins the emit to a caller-managed unit of work. Commit
// then flushes the staged writes into the caller's open transaction, and
// the caller's transaction boundary decides atomicity.
func WithUnitOfWork(unitOfWork ports.UnitOfWork) EmitOption {
	return func(o *emitOptions) {
		o.unitOfWork = unitOfWork
	}
}

func NewEmitter(
	driver ports.Driver,
	configs ports.ConfigResolver,
	listeners *ListenerRegistry,
	processor *Processor,
	pipeline *Pipeline,
	metrics infrastructure.Metrics,
	logger infrastructure.Logger,
	clk clock.Clock,
) *Emitter {
	return &Emitter{
		driver:    driver,
		configs:   configs,
		listeners: listeners,
		processor: processor,
		pipeline:  pipeline,
		metrics:   metrics,
		logger:    logger,
		clock:     clk,
	}
}

// Emit persists the event durably and schedules a best-effort local
// dispatch. Delivery is guaranteed by the poller either way.
func (e *Emitter) Emit(ctx context.Context, event domain.Event, ops []EntityOp, opts ...EmitOption) (*domain.OutboxRecord, error) {
	record, external, err := e.emit(ctx, event, ops, opts...)
	if err != nil {
		return nil, err
	}

	// Local dispatch is fire-and-forget; a failure here only means the
	// poller picks the record up later. It is skipped for joined units of
	// work because the record is not durable until the caller commits.
	if !external {
		go e.localDispatch(context.WithoutCancel(ctx), record)
	}

	return record, nil
}

// EmitAwaiting persists the event and synchronously dispatches it to all
// currently registered listeners, returning once delivery settled. It
// refuses joined units of work: dispatching before the caller commits
// would hand listeners an event that may never become durable.
func (e *Emitter) EmitAwaiting(ctx context.Context, event domain.Event, ops []EntityOp, opts ...EmitOption) (*domain.OutboxRecord, error) {
	options := emitOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if options.unitOfWork != nil {
		return nil, domain.ErrAwaitInExternalTx
	}

	record, _, err := e.emit(ctx, event, ops, opts...)
	if err != nil {
		return nil, err
	}

	eventConfig, err := e.configs.Resolve(record.EventName)
	if err != nil {
		return nil, err
	}

	if err := e.processor.Process(ctx, eventConfig, record, e.listeners.Get(record.EventName)); err != nil {
		return record, fmt.Errorf("failed to dispatch emitted event: %w", err)
	}

	return record, nil
}

func (e *Emitter) emit(ctx context.Context, event domain.Event, ops []EntityOp, opts ...EmitOption) (*domain.OutboxRecord, bool, error) {
	options := emitOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	event, err := e.pipeline.ApplyBeforeEmit(ctx, event)
	if err != nil {
		return nil, false, err
	}

	eventConfig, err := e.configs.Resolve(event.Name)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEvent) {
			return nil, false, fmt.Errorf("%w: %q", domain.ErrUnconfiguredEvent, event.Name)
		}

		return nil, false, err
	}

	now := e.clock.Now()
	record := e.driver.CreateOutboxRecord(
		event.Name,
		event.Payload,
		now.Add(eventConfig.ExpiresAt),
		now.Add(eventConfig.ReadyToRetryAfter),
	)

	unitOfWork := options.unitOfWork
	external := unitOfWork != nil
	if !external {
		unitOfWork = e.driver.UnitOfWork()
	}

	for _, op := range ops {
		if op.remove {
			unitOfWork.StageRemove(op.entity)

			continue
		}

		unitOfWork.StagePersist(op.entity)
	}

	unitOfWork.StagePersist(record)

	if err := unitOfWork.Commit(ctx); err != nil {
		return nil, external, fmt.Errorf("failed to commit outbox emit: %w", err)
	}

	e.metrics.RecordEmit(ctx, event.Name)

	return record, external, nil
}

func (e *Emitter) localDispatch(ctx context.Context, record *domain.OutboxRecord) {
	eventConfig, err := e.configs.Resolve(record.EventName)
	if err != nil {
		e.logger.Warn().Err(err).Str("event_name", record.EventName).Msg("local dispatch skipped")

		return
	}

	if err := e.processor.Process(ctx, eventConfig, record, e.listeners.Get(record.EventName)); err != nil {
		e.logger.Warn().
			Err(err).
			Int64("record_id", record.ID).
			Str("event_name", record.EventName).
			Msg("local dispatch failed, poller will retry")
	}
}
