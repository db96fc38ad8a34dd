package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/shared/clock"
)

type testEngine struct {
	clk       *clock.Fake
	configs   *ConfigRegistry
	driver    *fakeDriver
	listeners *ListenerRegistry
	pipeline  *Pipeline
	emitter   *Emitter
}

func newTestEngine(t *testing.T, configs ...domain.EventConfig) *testEngine {
	t.Helper()

	clk := newTestClock()
	registry := mustConfigRegistry(configs...)
	driver := newFakeDriver(clk, registry)
	listeners := NewListenerRegistry()
	pipeline := NewPipeline(newTestLogger())
	filters := NewFilterChain(newTestLogger())
	processor := NewProcessor(driver, pipeline, filters, &infrastructure.NoOpMetrics{}, newTestLogger())
	emitter := NewEmitter(driver, registry, listeners, processor, pipeline, &infrastructure.NoOpMetrics{}, newTestLogger(), clk)

	return &testEngine{
		clk:       clk,
		configs:   registry,
		driver:    driver,
		listeners: listeners,
		pipeline:  pipeline,
		emitter:   emitter,
	}
}

func userCreatedConfig() domain.EventConfig {
	return domain.EventConfig{
		Name:              "user.created",
		ExpiresAt:         24 * time.Hour,
		ReadyToRetryAfter: 5 * time.Second,
		MaxExecutionTime:  time.Second,
		MaxRetries:        5,
	}
}

func TestEmitterPersistsRecordWithEntities(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())

	type user struct{ Name string }

	record, err := engine.emitter.Emit(t.Context(),
		domain.Event{Name: "user.created", Payload: map[string]any{"id": 1}},
		[]EntityOp{Persist(user{Name: "ada"})},
	)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotZero(t, record.ID)

	stored := engine.driver.record(record.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "user.created", stored.EventName)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Empty(t, stored.DeliveredTo)
	assert.Zero(t, stored.RetryCount)

	now := engine.clk.Now()
	require.NotNil(t, stored.AttemptAt)
	assert.Equal(t, now.Add(5*time.Second).UnixMilli(), *stored.AttemptAt)
	assert.Equal(t, now.Add(24*time.Hour).UnixMilli(), stored.ExpireAt)
	assert.Equal(t, now.UnixMilli(), stored.InsertedAt)

	require.Len(t, engine.driver.entities, 1)
	assert.Equal(t, user{Name: "ada"}, engine.driver.entities[0])
}

func TestEmitterRejectsUnconfiguredEvent(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())

	_, err := engine.emitter.Emit(t.Context(), domain.Event{Name: "order.placed"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnconfiguredEvent)
	assert.Zero(t, engine.driver.recordCount())
}

func TestEmitterAppliesBeforeEmitHooks(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())
	require.NoError(t, engine.pipeline.Use(appendEmitHook{suffix: "-enriched"}))

	record, err := engine.emitter.Emit(t.Context(),
		domain.Event{Name: "user.created", Payload: "raw"}, nil)
	require.NoError(t, err)

	stored := engine.driver.record(record.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "raw-enriched", stored.EventPayload)
}

func TestEmitterBeforeEmitFailureAbortsEmit(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())

	hookErr := errors.New("payload rejected")
	require.NoError(t, engine.pipeline.Use(appendEmitHook{err: hookErr}))

	_, err := engine.emitter.Emit(t.Context(),
		domain.Event{Name: "user.created", Payload: "raw"}, nil)
	assert.ErrorIs(t, err, hookErr)
	assert.Zero(t, engine.driver.recordCount())
}

func TestEmitterCommitFailurePropagates(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())

	commitErr := errors.New("deadlock detected")
	engine.driver.commitErr = commitErr

	_, err := engine.emitter.Emit(t.Context(),
		domain.Event{Name: "user.created", Payload: "raw"}, nil)
	assert.ErrorIs(t, err, commitErr)
}

func TestEmitterAwaitingDispatchesSynchronously(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())

	listener := &stubListener{name: "audit"}
	require.NoError(t, engine.listeners.Add("user.created", listener))

	record, err := engine.emitter.EmitAwaiting(t.Context(),
		domain.Event{Name: "user.created", Payload: "raw"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, listener.callCount())

	// Fully delivered, the record is already retired.
	assert.Nil(t, engine.driver.record(record.ID))
}

func TestEmitterAwaitingKeepsRecordOnListenerFailure(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())

	require.NoError(t, engine.listeners.Add("user.created", &stubListener{
		name: "audit",
		handle: func(context.Context, any, string) error {
			return errors.New("audit down")
		},
	}))

	record, err := engine.emitter.EmitAwaiting(t.Context(),
		domain.Event{Name: "user.created", Payload: "raw"}, nil)
	require.NoError(t, err)

	stored := engine.driver.record(record.ID)
	require.NotNil(t, stored)
	assert.Empty(t, stored.DeliveredTo)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestEmitterWithExternalUnitOfWork(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())

	external := engine.driver.UnitOfWork().(*fakeUnitOfWork)

	record, err := engine.emitter.Emit(t.Context(),
		domain.Event{Name: "user.created", Payload: "raw"},
		[]EntityOp{Persist("entity"), Remove("stale")},
		WithUnitOfWork(external),
	)
	require.NoError(t, err)
	require.NotNil(t, record)

	// The record was flushed through the caller's unit of work, which the
	// fake commits immediately; the entity writes rode along.
	assert.Equal(t, 1, engine.driver.recordCount())
	assert.Contains(t, engine.driver.entities, "entity")
}

func TestEmitterAwaitingRejectsExternalUnitOfWork(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())

	listener := &stubListener{name: "audit"}
	require.NoError(t, engine.listeners.Add("user.created", listener))

	external := engine.driver.UnitOfWork()

	record, err := engine.emitter.EmitAwaiting(t.Context(),
		domain.Event{Name: "user.created", Payload: "raw"},
		[]EntityOp{Persist("entity")},
		WithUnitOfWork(external),
	)
	assert.ErrorIs(t, err, domain.ErrAwaitInExternalTx)
	assert.Nil(t, record)

	// Rejected before any side effect: nothing staged, nothing dispatched.
	assert.Zero(t, engine.driver.recordCount())
	assert.Empty(t, engine.driver.entities)
	assert.Zero(t, listener.callCount())
}
