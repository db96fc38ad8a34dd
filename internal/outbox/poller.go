package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/architeacher/svc-event-outbox/internal/config"
	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/ports"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

const pushThrottleKey = "outbox-push"

// Ensure Poller implements the BackgroundProcessor interface
var _ ports.BackgroundProcessor = (*Poller)(nil)

// Poller is the delivery guarantee of the engine. It wakes on a periodic
// tick or a push notification, claims a bounded batch of due records under
// row locks, routes freshly dead-lettered records to the observers, and
// dispatches the rest concurrently.
type Poller struct {
	// id distinguishes rival poller instances in logs; claims themselves
	// are arbitrated by row locks, not by identity.
	id string

	driver    ports.Driver
	configs   ports.ConfigResolver
	listeners *ListenerRegistry
	processor *Processor
	pipeline  *Pipeline
	notifier  ports.NotificationListener
	metrics   infrastructure.Metrics
	logger    infrastructure.Logger
	cfg       config.OutboxConfig

	breaker  *gobreaker.CircuitBreaker[*domain.ClaimResult]
	throttle *throttled.GCRARateLimiterCtx

	// wake coalesces throttled push notifications into trailing-edge ticks.
	wake              chan struct{}
	trailingScheduled atomic.Bool

	shuttingDown atomic.Bool
	inflight     sync.WaitGroup
}

func NewPoller(
	driver ports.Driver,
	configs ports.ConfigResolver,
	listeners *ListenerRegistry,
	processor *Processor,
	pipeline *Pipeline,
	notifier ports.NotificationListener,
	metrics infrastructure.Metrics,
	logger infrastructure.Logger,
	cfg config.OutboxConfig,
) (*Poller, error) {
	store, err := memstore.New(64)
	if err != nil {
		return nil, fmt.Errorf("failed to create throttle store: %w", err)
	}

	throttle, err := throttled.NewGCRARateLimiter(store, throttled.RateQuota{
		MaxRate: throttled.PerDuration(1, cfg.PushThrottle),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create push throttle: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[*domain.ClaimResult](gobreaker.Settings{
		Name: "outbox-claim",
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("claim circuit breaker state changed")
		},
	})

	return &Poller{
		id:        uuid.NewString(),
		driver:    driver,
		configs:   configs,
		listeners: listeners,
		processor: processor,
		pipeline:  pipeline,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		breaker:   breaker,
		throttle:  throttle,
		wake:      make(chan struct{}, 1),
	}, nil
}

// Start runs the wake loop until the context is canceled, then drains all
// in-flight dispatches before returning.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info().
		Str("poller_id", p.id).
		Dur("poll_interval", p.cfg.PollInterval).
		Int("max_events_per_tick", p.cfg.MaxEventsPerTick).
		Msg("starting outbox poller")

	notifications := p.subscribe(ctx)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.shutdown(ctx)

		case <-ticker.C:
			p.tick(ctx)

		case _, ok := <-notifications:
			if !ok {
				notifications = nil

				continue
			}

			p.onNotification(ctx)

		case <-p.wake:
			p.tick(ctx)
		}
	}
}

func (p *Poller) subscribe(ctx context.Context) <-chan string {
	if p.notifier == nil || !p.cfg.PushNotifications {
		return nil
	}

	if err := p.notifier.Connect(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("push notifications unavailable, polling only")

		return nil
	}

	p.logger.Info().Msg("push notifications connected")

	return p.notifier.Events()
}

// onNotification rate-limits push signals. The first signal in a window
// triggers immediately; a burst schedules one trailing tick so nothing
// committed near the window's end is left waiting for the next interval.
func (p *Poller) onNotification(ctx context.Context) {
	limited, result, err := p.throttle.RateLimit(pushThrottleKey, 1)
	if err != nil {
		p.logger.Warn().Err(err).Msg("push throttle failed, ticking anyway")
		p.tick(ctx)

		return
	}

	if !limited {
		p.tick(ctx)

		return
	}

	if p.trailingScheduled.CompareAndSwap(false, true) {
		time.AfterFunc(result.RetryAfter, func() {
			p.trailingScheduled.Store(false)

			select {
			case p.wake <- struct{}{}:
			default:
			}
		})
	}
}

// tick claims one batch and launches dispatches. Ticks are serialized by
// the wake loop; only the dispatches themselves run concurrently.
func (p *Poller) tick(ctx context.Context) {
	if p.shuttingDown.Load() {
		return
	}

	start := time.Now()

	result, err := p.breaker.Execute(func() (*domain.ClaimResult, error) {
		return p.driver.ClaimDueBatch(ctx, p.cfg.MaxEventsPerTick)
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to claim due outbox records")

		return
	}

	p.metrics.RecordClaim(ctx, len(result.Pending), len(result.DeadLettered), time.Since(start))

	for _, record := range result.DeadLettered {
		p.deadLetter(ctx, record)
	}

	for _, record := range result.Pending {
		p.dispatch(ctx, record)
	}
}

func (p *Poller) deadLetter(ctx context.Context, record *domain.OutboxRecord) {
	p.logger.Error().
		Int64("record_id", record.ID).
		Str("event_name", record.EventName).
		Int("retry_count", record.RetryCount).
		Msg("outbox record dead-lettered")

	p.pipeline.NotifyDeadLetter(ctx, domain.DeadLetterContext{
		EventID:     record.ID,
		EventName:   record.EventName,
		Payload:     record.EventPayload,
		RetryCount:  record.RetryCount,
		DeliveredTo: record.DeliveredTo,
	})

	p.metrics.RecordDeadLetter(ctx, record.EventName)
}

func (p *Poller) dispatch(ctx context.Context, record *domain.OutboxRecord) {
	eventConfig, err := p.configs.Resolve(record.EventName)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Int64("record_id", record.ID).
			Str("event_name", record.EventName).
			Msg("skipping record without configuration")

		return
	}

	remainder := p.remainingListeners(record)
	if len(remainder) == 0 {
		p.retire(ctx, record)

		return
	}

	// Dispatches survive context cancellation; shutdown waits for them
	// instead of aborting them mid-delivery.
	dispatchCtx := context.WithoutCancel(ctx)

	p.inflight.Go(func() {
		if err := p.processor.Process(dispatchCtx, eventConfig, record, remainder); err != nil {
			p.logger.Error().
				Err(err).
				Int64("record_id", record.ID).
				Str("event_name", record.EventName).
				Msg("failed to process outbox record")
		}
	})
}

func (p *Poller) remainingListeners(record *domain.OutboxRecord) []ports.Listener {
	listeners := p.listeners.Get(record.EventName)

	remainder := make([]ports.Listener, 0, len(listeners))
	for _, listener := range listeners {
		if !record.IsDeliveredTo(listener.Name()) {
			remainder = append(remainder, listener)
		}
	}

	return remainder
}

// retire removes a record whose every registered listener already
// acknowledged it, typically after the listener set shrank.
func (p *Poller) retire(ctx context.Context, record *domain.OutboxRecord) {
	unitOfWork := p.driver.UnitOfWork()
	unitOfWork.StageRemove(record)

	if err := unitOfWork.Commit(context.WithoutCancel(ctx)); err != nil {
		p.logger.Warn().
			Err(err).
			Int64("record_id", record.ID).
			Msg("failed to retire fully delivered record")
	}
}

func (p *Poller) shutdown(ctx context.Context) error {
	p.shuttingDown.Store(true)
	p.logger.Info().Msg("outbox poller shutting down, draining in-flight dispatches")

	if p.notifier != nil {
		if err := p.notifier.Disconnect(); err != nil {
			p.logger.Warn().Err(err).Msg("failed to disconnect push notifications")
		}
	}

	p.inflight.Wait()
	p.logger.Info().Msg("outbox poller stopped")

	return ctx.Err()
}
