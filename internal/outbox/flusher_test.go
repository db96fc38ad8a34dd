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
)

func newTestFlusher(t *testing.T, engine *testEngine) *Flusher {
	t.Helper()

	filters := NewFilterChain(newTestLogger())
	processor := NewProcessor(engine.driver, engine.pipeline, filters, &infrastructure.NoOpMetrics{}, newTestLogger())

	return NewFlusher(engine.driver, engine.configs, engine.listeners, processor, newTestLogger())
}

func TestFlusherProcessAllPending(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())
	flusher := newTestFlusher(t, engine)

	require.NoError(t, engine.listeners.Add("user.created", &stubListener{name: "audit"}))

	for range 3 {
		seedRecord(t, engine.driver, "user.created", "payload")
	}

	result, err := flusher.ProcessAllPending(t.Context(), 0)
	require.NoError(t, err)

	assert.Equal(t, domain.FlushResult{Processed: 3}, result)
	assert.Zero(t, engine.driver.recordCount())
}

func TestFlusherCountsFailures(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())
	flusher := newTestFlusher(t, engine)

	require.NoError(t, engine.listeners.Add("user.created", &stubListener{name: "audit"}))

	seedRecord(t, engine.driver, "user.created", "ok")
	orphan := seedRecord(t, engine.driver, "user.created", "orphan")

	// Commit failures from the processor count as flush failures. Trip
	// the driver after the successful record by failing only this one.
	require.NoError(t, engine.listeners.Add("user.created", &stubListener{
		name: "billing",
		handle: func(_ context.Context, payload any, _ string) error {
			if payload == "orphan" {
				return errors.New("cannot bill orphan")
			}

			return nil
		},
	}))

	result, err := flusher.ProcessAllPending(t.Context(), 10)
	require.NoError(t, err)

	// Both dispatches ran; the failing listener keeps its record around
	// but the flush itself settled without a driver error.
	assert.Equal(t, domain.FlushResult{Processed: 2}, result)

	stored := engine.driver.record(orphan.ID)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"audit"}, stored.DeliveredTo)
}

func TestFlusherRespectsLimit(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())
	flusher := newTestFlusher(t, engine)

	require.NoError(t, engine.listeners.Add("user.created", &stubListener{name: "audit"}))

	for range 5 {
		seedRecord(t, engine.driver, "user.created", "payload")
	}

	result, err := flusher.ProcessAllPending(t.Context(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 3, engine.driver.recordCount())
}

func TestFlusherUnknownEventCountsAsFailure(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, userCreatedConfig())
	flusher := newTestFlusher(t, engine)

	record := engine.driver.CreateOutboxRecord("ghost.event", "payload",
		engine.clk.Now().Add(time.Hour), engine.clk.Now())
	unitOfWork := engine.driver.UnitOfWork()
	unitOfWork.StagePersist(record)
	require.NoError(t, unitOfWork.Commit(t.Context()))

	result, err := flusher.ProcessAllPending(t.Context(), 10)
	require.NoError(t, err)

	assert.Equal(t, domain.FlushResult{Failed: 1}, result)
}
