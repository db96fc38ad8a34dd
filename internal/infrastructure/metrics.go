package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/architeacher/svc-event-outbox/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	metricsNamespace = "event_outbox"
)

type (
	Metrics interface {
		RecordEmit(ctx context.Context, eventName string)
		RecordClaim(ctx context.Context, claimed, deadLettered int, duration time.Duration)
		RecordDispatch(ctx context.Context, eventName, listenerName string, success bool, duration time.Duration)
		RecordDeadLetter(ctx context.Context, eventName string)
		Handler() http.Handler
		Shutdown(ctx context.Context) error
	}

	OTELMetrics struct {
		meterProvider *sdkmetric.MeterProvider
		meter         metric.Meter
		logger        Logger

		emittedTotal     metric.Int64Counter
		claimedTotal     metric.Int64Counter
		claimDuration    metric.Float64Histogram
		dispatchTotal    metric.Int64Counter
		dispatchErrors   metric.Int64Counter
		dispatchDuration metric.Float64Histogram
		deadLetterTotal  metric.Int64Counter
	}
)

func NewMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (Metrics, error) {
	if !cfg.Telemetry.Metrics.Enabled {
		logger.Info().Msg("metrics disabled, using NoOp implementation")

		return &NoOpMetrics{}, nil
	}

	return NewOTELMetrics(ctx, cfg, logger)
}

func NewOTELMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (*OTELMetrics, error) {
	endpoint := fmt.Sprintf("%s:%s", cfg.Telemetry.OtelGRPCHost, cfg.Telemetry.OtelGRPCPort)

	conn, err := grpc.NewClient(
		endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTEL collector: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.AppConfig.ServiceName),
			semconv.ServiceVersionKey.String(cfg.AppConfig.ServiceVersion),
			semconv.ServiceInstanceIDKey.String(cfg.AppConfig.CommitSHA),
			semconv.DeploymentEnvironmentKey.String(cfg.AppConfig.Env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		metricsNamespace,
		metric.WithInstrumentationVersion(cfg.AppConfig.ServiceVersion),
	)

	provider := &OTELMetrics{
		meterProvider: meterProvider,
		meter:         meter,
		logger:        logger,
	}

	if err := provider.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	logger.Info().
		Str("otel_endpoint", endpoint).
		Msg("OTEL metrics provider initialized successfully")

	return provider, nil
}

func (om *OTELMetrics) initializeMetrics() error {
	var err error

	om.emittedTotal, err = om.meter.Int64Counter(
		"outbox_emitted_total",
		metric.WithDescription("Total number of events written to the outbox"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox_emitted_total counter: %w", err)
	}

	om.claimedTotal, err = om.meter.Int64Counter(
		"outbox_claimed_total",
		metric.WithDescription("Total number of records claimed for dispatch"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox_claimed_total counter: %w", err)
	}

	om.claimDuration, err = om.meter.Float64Histogram(
		"outbox_claim_duration_seconds",
		metric.WithDescription("Time spent claiming a batch of due records in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox_claim_duration_seconds histogram: %w", err)
	}

	om.dispatchTotal, err = om.meter.Int64Counter(
		"outbox_dispatched_total",
		metric.WithDescription("Total number of listener deliveries attempted"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox_dispatched_total counter: %w", err)
	}

	om.dispatchErrors, err = om.meter.Int64Counter(
		"outbox_dispatch_errors_total",
		metric.WithDescription("Total number of failed listener deliveries"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox_dispatch_errors_total counter: %w", err)
	}

	om.dispatchDuration, err = om.meter.Float64Histogram(
		"outbox_dispatch_duration_seconds",
		metric.WithDescription("Listener delivery duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox_dispatch_duration_seconds histogram: %w", err)
	}

	om.deadLetterTotal, err = om.meter.Int64Counter(
		"outbox_dead_lettered_total",
		metric.WithDescription("Total number of records that exhausted their retry budget"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox_dead_lettered_total counter: %w", err)
	}

	return nil
}

func (om *OTELMetrics) RecordEmit(ctx context.Context, eventName string) {
	om.emittedTotal.Add(ctx, 1,
		metric.WithAttributes(
			EventNameAttr(eventName),
		),
	)
}

func (om *OTELMetrics) RecordClaim(ctx context.Context, claimed, deadLettered int, duration time.Duration) {
	om.claimedTotal.Add(ctx, int64(claimed))
	om.claimDuration.Record(ctx, duration.Seconds())

	if deadLettered > 0 {
		om.deadLetterTotal.Add(ctx, int64(deadLettered))
	}
}

func (om *OTELMetrics) RecordDispatch(ctx context.Context, eventName, listenerName string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}

	om.dispatchTotal.Add(ctx, 1,
		metric.WithAttributes(
			EventNameAttr(eventName),
			ListenerNameAttr(listenerName),
			StatusAttr(status),
		),
	)

	om.dispatchDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			EventNameAttr(eventName),
			ListenerNameAttr(listenerName),
			StatusAttr(status),
		),
	)

	if !success {
		om.dispatchErrors.Add(ctx, 1,
			metric.WithAttributes(
				EventNameAttr(eventName),
				ListenerNameAttr(listenerName),
			),
		)
	}
}

func (om *OTELMetrics) RecordDeadLetter(ctx context.Context, eventName string) {
	om.deadLetterTotal.Add(ctx, 1,
		metric.WithAttributes(
			EventNameAttr(eventName),
		),
	)
}

func (om *OTELMetrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (om *OTELMetrics) Shutdown(ctx context.Context) error {
	if err := om.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}

	return nil
}
