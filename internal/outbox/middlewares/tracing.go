package middlewares

import (
	"context"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "svc-event-outbox"

var _ outbox.ExecutionWrapper = (*Tracing)(nil)

// Tracing wraps each listener invocation in a span.
type Tracing struct {
	tracer trace.Tracer
}

func NewTracing() *Tracing {
	return &Tracing{
		tracer: otel.Tracer(tracerName),
	}
}

func (m *Tracing) WrapExecution(ctx context.Context, eventCtx domain.EventContext, next outbox.Execution) error {
	ctx, span := m.tracer.Start(ctx, "outbox.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int64("outbox.record_id", eventCtx.EventID),
			attribute.String("outbox.event_name", eventCtx.EventName),
			attribute.String("outbox.listener", eventCtx.ListenerName),
		),
	)
	defer span.End()

	err := next(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}
