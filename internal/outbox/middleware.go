package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
)

var errExecutionReentered = errors.New("execution wrapper invoked next more than once")

type (
	// EmitHook transforms an event before its record is built. Hooks chain
	// left to right, each seeing the prior hook's output. A failure here
	// aborts the emit, nothing has been persisted yet.
	EmitHook interface {
		BeforeEmit(ctx context.Context, event domain.Event) (domain.Event, error)
	}

	// BeforeProcessHook observes a delivery attempt before the listener runs.
	BeforeProcessHook interface {
		BeforeProcess(ctx context.Context, eventCtx domain.EventContext) error
	}

	// AfterProcessHook observes the outcome of a delivery attempt.
	AfterProcessHook interface {
		AfterProcess(ctx context.Context, eventCtx domain.EventContext, result domain.ExecutionResult) error
	}

	// ErrorHook observes listener failures, before exception filters run.
	ErrorHook interface {
		OnError(ctx context.Context, eventCtx domain.EventContext, handleErr error) error
	}

	// DeadLetterHook observes records that exhausted their retry budget.
	DeadLetterHook interface {
		OnDeadLetter(ctx context.Context, deadLetterCtx domain.DeadLetterContext) error
	}

	// Execution is a single listener invocation, possibly wrapped.
	Execution func(ctx context.Context) error

	// ExecutionWrapper nests around the listener call. It must invoke next
	// at most once; a wrapper failure counts as a listener failure.
	ExecutionWrapper interface {
		WrapExecution(ctx context.Context, eventCtx domain.EventContext, next Execution) error
	}

	// Pipeline is the ordered middleware chain of the engine. Observer
	// hook failures are contained and logged, they never break delivery.
	Pipeline struct {
		logger infrastructure.Logger

		emitHooks       []EmitHook
		beforeHooks     []BeforeProcessHook
		afterHooks      []AfterProcessHook
		errorHooks      []ErrorHook
		deadLetterHooks []DeadLetterHook
		wrappers        []ExecutionWrapper
	}
)

func NewPipeline(logger infrastructure.Logger) *Pipeline {
	return &Pipeline{
		logger: logger,
	}
}

// Use registers a middleware implementing any non-empty subset of the hook
// interfaces. Registration order is invocation order.
func (p *Pipeline) Use(middleware any) error {
	registered := false

	if hook, ok := middleware.(EmitHook); ok {
		p.emitHooks = append(p.emitHooks, hook)
		registered = true
	}

	if hook, ok := middleware.(BeforeProcessHook); ok {
		p.beforeHooks = append(p.beforeHooks, hook)
		registered = true
	}

	if hook, ok := middleware.(AfterProcessHook); ok {
		p.afterHooks = append(p.afterHooks, hook)
		registered = true
	}

	if hook, ok := middleware.(ErrorHook); ok {
		p.errorHooks = append(p.errorHooks, hook)
		registered = true
	}

	if hook, ok := middleware.(DeadLetterHook); ok {
		p.deadLetterHooks = append(p.deadLetterHooks, hook)
		registered = true
	}

	if wrapper, ok := middleware.(ExecutionWrapper); ok {
		p.wrappers = append(p.wrappers, wrapper)
		registered = true
	}

	if !registered {
		return fmt.Errorf("middleware %T implements no pipeline hook", middleware)
	}

	return nil
}

// ApplyBeforeEmit folds the event through the emit hooks left to right.
// Unlike the observer hooks, failures propagate to the caller.
func (p *Pipeline) ApplyBeforeEmit(ctx context.Context, event domain.Event) (domain.Event, error) {
	for _, hook := range p.emitHooks {
		transformed, err := hook.BeforeEmit(ctx, event)
		if err != nil {
			return domain.Event{}, fmt.Errorf("before-emit hook failed: %w", err)
		}

		event = transformed
	}

	return event, nil
}

func (p *Pipeline) NotifyBeforeProcess(ctx context.Context, eventCtx domain.EventContext) {
	for _, hook := range p.beforeHooks {
		p.contain("before_process", func() error {
			return hook.BeforeProcess(ctx, eventCtx)
		})
	}
}

func (p *Pipeline) NotifyAfterProcess(ctx context.Context, eventCtx domain.EventContext, result domain.ExecutionResult) {
	for _, hook := range p.afterHooks {
		p.contain("after_process", func() error {
			return hook.AfterProcess(ctx, eventCtx, result)
		})
	}
}

func (p *Pipeline) NotifyError(ctx context.Context, eventCtx domain.EventContext, handleErr error) {
	for _, hook := range p.errorHooks {
		p.contain("on_error", func() error {
			return hook.OnError(ctx, eventCtx, handleErr)
		})
	}
}

func (p *Pipeline) NotifyDeadLetter(ctx context.Context, deadLetterCtx domain.DeadLetterContext) {
	for _, hook := range p.deadLetterHooks {
		p.containAt("on_dead_letter", func() error {
			return hook.OnDeadLetter(ctx, deadLetterCtx)
		}, true)
	}
}

// Wrap composes the execution wrappers around the terminal invocation so
// that the first-registered wrapper runs outermost. The terminal step runs
// at most once even if a wrapper misbehaves.
func (p *Pipeline) Wrap(eventCtx domain.EventContext, terminal Execution) Execution {
	var invoked atomic.Bool

	execution := func(ctx context.Context) error {
		if !invoked.CompareAndSwap(false, true) {
			return errExecutionReentered
		}

		return terminal(ctx)
	}

	for i := len(p.wrappers) - 1; i >= 0; i-- {
		wrapper, next := p.wrappers[i], execution
		execution = func(ctx context.Context) error {
			return wrapper.WrapExecution(ctx, eventCtx, next)
		}
	}

	return execution
}

func (p *Pipeline) contain(hookName string, invoke func() error) {
	p.containAt(hookName, invoke, false)
}

// containAt runs a hook, absorbing both returned errors and panics. Dead
// letter observers log at error level, everything else at warn.
func (p *Pipeline) containAt(hookName string, invoke func() error, asError bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			p.logger.Warn().
				Str("hook", hookName).
				Any("panic", recovered).
				Msg("middleware hook panicked")
		}
	}()

	if err := invoke(); err != nil {
		event := p.logger.Warn()
		if asError {
			event = p.logger.Error()
		}

		event.Err(err).Str("hook", hookName).Msg("middleware hook failed")
	}
}
