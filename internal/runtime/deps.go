package runtime

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/vault/api"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/architeacher/svc-event-outbox/internal/adapters/queue"
	"github.com/architeacher/svc-event-outbox/internal/config"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/outbox"
	"github.com/architeacher/svc-event-outbox/internal/ports"
)

type (
	// Engine groups the outbox components an embedding application would
	// interact with: the emitter for writing events inside business
	// transactions, and the flusher for manual drains.
	Engine struct {
		Configs   *outbox.ConfigRegistry
		Listeners *outbox.ListenerRegistry
		Pipeline  *outbox.Pipeline
		Filters   *outbox.FilterChain
		Processor *outbox.Processor
		Emitter   *outbox.Emitter
		Flusher   *outbox.Flusher
	}

	ApplicationWorkers struct {
		OutboxPoller ports.BackgroundProcessor
	}

	TracerShutdownFunc func(ctx context.Context) error

	InfrastructureDeps struct {
		OpsServer           *http.Server
		SecretStorageClient *api.Client
		StorageClient       *infrastructure.Storage
		QueuePublisher      queue.Publisher
		Metrics             infrastructure.Metrics
	}

	Repos struct {
		SecretStorageRepo ports.SecretsRepository
		OutboxDriver      ports.Driver
	}

	Dependencies struct {
		Engine  Engine
		Workers ApplicationWorkers

		cfg          *config.ServiceConfig
		configLoader *config.Loader

		logger infrastructure.Logger

		Infra InfrastructureDeps
		Repos Repos

		notifier ports.NotificationListener

		tracerShutdownFunc TracerShutdownFunc
		secretVersion      uint
	}
)

func initializeDependencies(ctx context.Context, opts ...DependencyOption) (*Dependencies, error) {
	cfg, err := config.Init()
	if err != nil {
		return nil, fmt.Errorf("unable to load service configuration: %w", err)
	}

	appLogger := infrastructure.New(config.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	appLogger.Info().Msg("initializing dependencies...")

	deps := &Dependencies{
		cfg:    cfg,
		logger: appLogger,
	}

	// Start with default options and append any additional options.
	options := append(defaultOptions(ctx), opts...)

	for _, opt := range options {
		if err := opt(deps); err != nil {
			return nil, fmt.Errorf("failed to apply dependency option: %w", err)
		}
	}

	deps.logger.Info().Msg("dependencies initialized successfully")

	return deps, nil
}

func initOpsServer(
	cfg *config.ServiceConfig,
	logger infrastructure.Logger,
	storage *infrastructure.Storage,
	metrics infrastructure.Metrics,
) *http.Server {
	logger.Info().Msg("creating ops server...")

	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(cfg.OpsServer.WriteTimeout))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := storage.Ping(r.Context()); err != nil {
			logger.Warn().Err(err).Msg("readiness probe failed")
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.OpsServer.Host, fmt.Sprintf("%d", cfg.OpsServer.Port)),
		Handler:      otelhttp.NewHandler(router, "ops"),
		ReadTimeout:  cfg.OpsServer.ReadTimeout,
		WriteTimeout: cfg.OpsServer.WriteTimeout,
	}

	logger.Info().Str("addr", server.Addr).Msg("ops server created")

	return server
}
