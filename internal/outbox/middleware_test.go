package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/svc-event-outbox/internal/domain"
)

type (
	appendEmitHook struct {
		suffix string
		err    error
	}

	panickyHook struct{}

	recordingWrapper struct {
		label string
		log   *[]string
	}

	doubleCallWrapper struct {
		secondErr *error
	}
)

func (h appendEmitHook) BeforeEmit(_ context.Context, event domain.Event) (domain.Event, error) {
	if h.err != nil {
		return domain.Event{}, h.err
	}

	event.Payload = event.Payload.(string) + h.suffix

	return event, nil
}

func (panickyHook) BeforeProcess(context.Context, domain.EventContext) error {
	panic("boom")
}

func (w recordingWrapper) WrapExecution(ctx context.Context, _ domain.EventContext, next Execution) error {
	*w.log = append(*w.log, w.label+":enter")
	err := next(ctx)
	*w.log = append(*w.log, w.label+":exit")

	return err
}

func (w doubleCallWrapper) WrapExecution(ctx context.Context, _ domain.EventContext, next Execution) error {
	if err := next(ctx); err != nil {
		return err
	}

	*w.secondErr = next(ctx)

	return nil
}

func TestPipelineUse(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(newTestLogger())

	require.NoError(t, pipeline.Use(appendEmitHook{suffix: "!"}))
	require.NoError(t, pipeline.Use(&hookRecorder{label: "observer"}))

	err := pipeline.Use(struct{}{})
	assert.Error(t, err)
}

func TestPipelineBeforeEmitIsLeftFold(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(newTestLogger())
	require.NoError(t, pipeline.Use(appendEmitHook{suffix: "-first"}))
	require.NoError(t, pipeline.Use(appendEmitHook{suffix: "-second"}))

	event, err := pipeline.ApplyBeforeEmit(t.Context(), domain.Event{Name: "e", Payload: "base"})
	require.NoError(t, err)
	assert.Equal(t, "base-first-second", event.Payload)
}

func TestPipelineBeforeEmitErrorPropagates(t *testing.T) {
	t.Parallel()

	hookErr := errors.New("reject")

	pipeline := NewPipeline(newTestLogger())
	require.NoError(t, pipeline.Use(appendEmitHook{err: hookErr}))

	_, err := pipeline.ApplyBeforeEmit(t.Context(), domain.Event{Name: "e", Payload: "base"})
	assert.ErrorIs(t, err, hookErr)
}

func TestPipelineObserverFailuresAreContained(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(newTestLogger())
	recorder := &hookRecorder{label: "late"}

	require.NoError(t, pipeline.Use(panickyHook{}))
	require.NoError(t, pipeline.Use(recorder))

	// Must not panic, and the later hook still runs.
	pipeline.NotifyBeforeProcess(t.Context(), domain.EventContext{})
	assert.Equal(t, []string{"late:before_process"}, recorder.observed())
}

func TestPipelineWrapComposition(t *testing.T) {
	t.Parallel()

	var log []string

	pipeline := NewPipeline(newTestLogger())
	require.NoError(t, pipeline.Use(recordingWrapper{label: "outer", log: &log}))
	require.NoError(t, pipeline.Use(recordingWrapper{label: "inner", log: &log}))

	execution := pipeline.Wrap(domain.EventContext{}, func(context.Context) error {
		log = append(log, "terminal")

		return nil
	})

	require.NoError(t, execution(t.Context()))

	// First registered wrapper is outermost.
	assert.Equal(t, []string{"outer:enter", "inner:enter", "terminal", "inner:exit", "outer:exit"}, log)
}

func TestPipelineWrapGuardsTerminalInvocation(t *testing.T) {
	t.Parallel()

	var secondErr error
	calls := 0

	pipeline := NewPipeline(newTestLogger())
	require.NoError(t, pipeline.Use(doubleCallWrapper{secondErr: &secondErr}))

	execution := pipeline.Wrap(domain.EventContext{}, func(context.Context) error {
		calls++

		return nil
	})

	require.NoError(t, execution(t.Context()))
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, secondErr, errExecutionReentered)
}

func TestFilterChain(t *testing.T) {
	t.Parallel()

	handleErr := errors.New("listener blew up")
	eventCtx := domain.EventContext{EventID: 42, EventName: "user.created", ListenerName: "audit"}

	var seen []domain.EventContext

	chain := NewFilterChain(newTestLogger())
	chain.Use(filterFunc(func(_ context.Context, err error, host ArgumentsHost) error {
		outboxCtx, ok := host.OutboxContext()
		if ok {
			seen = append(seen, outboxCtx)
		}

		return errors.New("filter failure must not stop the chain")
	}))
	chain.Use(filterFunc(func(context.Context, error, ArgumentsHost) error {
		panic("filters may panic too")
	}))
	chain.Use(filterFunc(func(_ context.Context, err error, host ArgumentsHost) error {
		assert.ErrorIs(t, err, handleErr)
		outboxCtx, ok := host.OutboxContext()
		if ok {
			seen = append(seen, outboxCtx)
		}

		return nil
	}))

	chain.Notify(t.Context(), handleErr, eventCtx)

	require.Len(t, seen, 2)
	assert.Equal(t, eventCtx, seen[0])
	assert.Equal(t, eventCtx, seen[1])
}

type filterFunc func(ctx context.Context, handleErr error, host ArgumentsHost) error

func (f filterFunc) Catch(ctx context.Context, handleErr error, host ArgumentsHost) error {
	return f(ctx, handleErr, host)
}
