package outbox

import (
	"context"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
)

type (
	// ArgumentsHost gives exception filters typed access to the context of
	// the failed invocation.
	ArgumentsHost struct {
		eventCtx *domain.EventContext
	}

	// ExceptionFilter is a secondary error sink, invoked after the OnError
	// middlewares for the same listener failure.
	ExceptionFilter interface {
		Catch(ctx context.Context, handleErr error, host ArgumentsHost) error
	}

	// FilterChain invokes exception filters in registration order. One
	// filter's failure does not skip the next.
	FilterChain struct {
		logger  infrastructure.Logger
		filters []ExceptionFilter
	}
)

// OutboxContext returns the delivery context of the failure, when present.
func (h ArgumentsHost) OutboxContext() (domain.EventContext, bool) {
	if h.eventCtx == nil {
		return domain.EventContext{}, false
	}

	return *h.eventCtx, true
}

func NewFilterChain(logger infrastructure.Logger, filters ...ExceptionFilter) *FilterChain {
	return &FilterChain{
		logger:  logger,
		filters: filters,
	}
}

func (c *FilterChain) Use(filter ExceptionFilter) {
	c.filters = append(c.filters, filter)
}

// Notify runs every filter against the failure.
func (c *FilterChain) Notify(ctx context.Context, handleErr error, eventCtx domain.EventContext) {
	host := ArgumentsHost{eventCtx: &eventCtx}

	for _, filter := range c.filters {
		c.catch(ctx, filter, handleErr, host)
	}
}

func (c *FilterChain) catch(ctx context.Context, filter ExceptionFilter, handleErr error, host ArgumentsHost) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logger.Warn().
				Any("panic", recovered).
				Msg("exception filter panicked")
		}
	}()

	if err := filter.Catch(ctx, handleErr, host); err != nil {
		c.logger.Warn().Err(err).Msg("exception filter failed")
	}
}
