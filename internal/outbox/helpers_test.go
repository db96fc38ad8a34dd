package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/shared/clock"
)

func newTestLogger() infrastructure.Logger {
	return infrastructure.Logger{Logger: zerolog.Nop()}
}

func newTestClock() *clock.Fake {
	return clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func mustConfigRegistry(configs ...domain.EventConfig) *ConfigRegistry {
	registry, err := NewConfigRegistry(configs...)
	if err != nil {
		panic(err)
	}

	return registry
}

type stubListener struct {
	name   string
	handle func(ctx context.Context, payload any, eventName string) error

	mu    sync.Mutex
	calls int
}

func (l *stubListener) Name() string {
	return l.name
}

func (l *stubListener) Handle(ctx context.Context, payload any, eventName string) error {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()

	if l.handle == nil {
		return nil
	}

	return l.handle(ctx, payload, eventName)
}

func (l *stubListener) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls
}

// hookRecorder captures every pipeline stage it observes, in order.
type hookRecorder struct {
	label string

	mu          sync.Mutex
	stages      []string
	results     []domain.ExecutionResult
	errors      []error
	deadLetters []domain.DeadLetterContext
}

func (r *hookRecorder) record(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stages = append(r.stages, r.label+":"+stage)
}

func (r *hookRecorder) BeforeProcess(_ context.Context, _ domain.EventContext) error {
	r.record("before_process")

	return nil
}

func (r *hookRecorder) AfterProcess(_ context.Context, _ domain.EventContext, result domain.ExecutionResult) error {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()

	r.record("after_process")

	return nil
}

func (r *hookRecorder) OnError(_ context.Context, _ domain.EventContext, handleErr error) error {
	r.mu.Lock()
	r.errors = append(r.errors, handleErr)
	r.mu.Unlock()

	r.record("on_error")

	return nil
}

func (r *hookRecorder) OnDeadLetter(_ context.Context, deadLetterCtx domain.DeadLetterContext) error {
	r.mu.Lock()
	r.deadLetters = append(r.deadLetters, deadLetterCtx)
	r.mu.Unlock()

	r.record("on_dead_letter")

	return nil
}

func (r *hookRecorder) observed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	observed := make([]string, len(r.stages))
	copy(observed, r.stages)

	return observed
}
