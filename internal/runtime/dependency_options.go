package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/redis/go-redis/v9"

	"github.com/architeacher/svc-event-outbox/internal/adapters/pglisten"
	"github.com/architeacher/svc-event-outbox/internal/adapters/queue"
	"github.com/architeacher/svc-event-outbox/internal/adapters/redislisten"
	"github.com/architeacher/svc-event-outbox/internal/adapters/repos"
	"github.com/architeacher/svc-event-outbox/internal/config"
	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/infrastructure"
	"github.com/architeacher/svc-event-outbox/internal/outbox"
	"github.com/architeacher/svc-event-outbox/internal/outbox/middlewares"
	"github.com/architeacher/svc-event-outbox/internal/shared/backoff"
	"github.com/architeacher/svc-event-outbox/internal/shared/clock"
)

type (
	DependencyOption func(*Dependencies) error
)

func defaultOptions(ctx context.Context) []DependencyOption {
	return []DependencyOption{
		WithSecretStorage(),
		WithSecretStorageRepo(),
		WithConfigLoader(ctx),
		WithStorage(ctx),
		WithMetrics(ctx),
		WithTracing(ctx),
		WithOutboxDriver(),
		WithEngine(),
	}
}

// WithSecretStorage initializes the Vault client using ENV config.
func WithSecretStorage() DependencyOption {
	return func(d *Dependencies) error {
		cfg := d.cfg.SecretStorage

		vaultConfig := api.DefaultConfig()
		vaultConfig.Address = cfg.Address
		vaultConfig.Timeout = cfg.Timeout

		if cfg.TLSSkipVerify {
			tlsConfig := &api.TLSConfig{
				Insecure: true,
			}
			if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
				return fmt.Errorf("failed to configure TLS: %w", err)
			}
		}

		client, err := api.NewClient(vaultConfig)
		if err != nil {
			return fmt.Errorf("failed to create Vault client: %w", err)
		}

		// Skip namespace configuration for dev mode vault
		if cfg.Namespace != "" {
			client.SetNamespace(cfg.Namespace)
		}

		d.Infra.SecretStorageClient = client

		return nil
	}
}

func WithSecretStorageRepo() DependencyOption {
	return func(d *Dependencies) error {
		d.Repos.SecretStorageRepo = repos.NewVaultRepository(d.Infra.SecretStorageClient)

		return nil
	}
}

func WithConfigLoader(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		d.configLoader = config.NewLoader(d.cfg, d.Repos.SecretStorageRepo, d.secretVersion)

		if !d.cfg.SecretStorage.Enabled {
			d.logger.Info().Msg("secret storage is disabled, skipping vault configuration loading")

			return nil
		}

		version, err := d.configLoader.Load(ctx, d.Repos.SecretStorageRepo, d.cfg)
		if err != nil {
			return fmt.Errorf("unable to load service configuration: %w", err)
		}

		d.secretVersion = version

		return nil
	}
}

func WithStorage(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		storage, err := infrastructure.NewStorage(ctx, d.cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}

		d.Infra.StorageClient = storage

		return nil
	}
}

func WithMetrics(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		metrics, err := infrastructure.NewMetrics(ctx, *d.cfg, d.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}

		d.Infra.Metrics = metrics

		return nil
	}
}

func WithTracing(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		tracerShutdownFunc, err := infrastructure.InitGlobalTracer(ctx, *d.cfg)
		if err != nil {
			d.logger.Error().Err(err).Msg("failed to initialize global tracer")

			return err
		}

		d.tracerShutdownFunc = tracerShutdownFunc

		return nil
	}
}

func WithOutboxDriver() DependencyOption {
	return func(d *Dependencies) error {
		configs, err := buildConfigRegistry(d.cfg)
		if err != nil {
			return err
		}

		d.Engine.Configs = configs
		d.Repos.OutboxDriver = repos.NewOutboxDriver(d.Infra.StorageClient.GetDB(), configs, clock.Real{})

		return nil
	}
}

// WithEngine assembles the delivery pipeline around the outbox driver: the
// middleware chain, exception filters, processor, emitter and flusher.
func WithEngine() DependencyOption {
	return func(d *Dependencies) error {
		listeners := outbox.NewListenerRegistry()

		pipeline := outbox.NewPipeline(d.logger)
		if err := pipeline.Use(middlewares.NewLogging(d.logger)); err != nil {
			return fmt.Errorf("failed to register logging middleware: %w", err)
		}

		if d.cfg.Telemetry.Traces.Enabled {
			if err := pipeline.Use(middlewares.NewTracing()); err != nil {
				return fmt.Errorf("failed to register tracing middleware: %w", err)
			}
		}

		filters := outbox.NewFilterChain(d.logger)
		processor := outbox.NewProcessor(d.Repos.OutboxDriver, pipeline, filters, d.Infra.Metrics, d.logger)

		d.Engine.Listeners = listeners
		d.Engine.Pipeline = pipeline
		d.Engine.Filters = filters
		d.Engine.Processor = processor
		d.Engine.Emitter = outbox.NewEmitter(
			d.Repos.OutboxDriver,
			d.Engine.Configs,
			listeners,
			processor,
			pipeline,
			d.Infra.Metrics,
			d.logger,
			clock.Real{},
		)
		d.Engine.Flusher = outbox.NewFlusher(
			d.Repos.OutboxDriver,
			d.Engine.Configs,
			listeners,
			processor,
			d.logger,
		)

		return nil
	}
}

// WithDaemon wires everything the background delivery daemon needs on top of
// the defaults: the broker forwarder, the wake-up listener, the poller and
// the ops server.
func WithDaemon() DependencyOption {
	return func(d *Dependencies) error {
		for _, opt := range []DependencyOption{
			WithQueueForwarder(),
			WithNotificationListener(),
			WithPoller(),
			WithOpsServer(),
		} {
			if err := opt(d); err != nil {
				return err
			}
		}

		return nil
	}
}

// WithQueueForwarder registers a broker-publishing listener for every
// configured event, turning the daemon into a reliable database-to-queue
// bridge. No-op when the queue is disabled.
func WithQueueForwarder() DependencyOption {
	return func(d *Dependencies) error {
		if !d.cfg.Queue.Enabled {
			d.logger.Info().Msg("queue is disabled, skipping broker forwarding")

			return nil
		}

		publisher, err := queue.NewAMQPPublisher(d.cfg.Queue, d.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize queue publisher: %w", err)
		}

		d.Infra.QueuePublisher = publisher

		forwarder := queue.NewForwardListener(publisher)
		for _, eventName := range d.Engine.Configs.EventNames() {
			if err := d.Engine.Listeners.Add(eventName, forwarder); err != nil {
				return fmt.Errorf("failed to register queue forwarder for %q: %w", eventName, err)
			}
		}

		return nil
	}
}

// WithNotificationListener selects the push transport that wakes the poller
// between ticks. Connecting is deferred to the poller so a transport outage
// degrades to poll-only instead of failing startup.
func WithNotificationListener() DependencyOption {
	return func(d *Dependencies) error {
		if !d.cfg.Outbox.PushNotifications {
			return nil
		}

		switch d.cfg.Outbox.PushTransport {
		case config.PushTransportPostgres:
			d.notifier = pglisten.New(
				infrastructure.DSN(d.cfg.Storage),
				d.cfg.Outbox.PushChannel,
				d.cfg.Outbox.ReconnectMinInterval,
				d.cfg.Outbox.ReconnectMaxInterval,
				d.logger,
			)

		case config.PushTransportRedis:
			client := redis.NewClient(&redis.Options{
				Addr:         d.cfg.Cache.Addr,
				Password:     d.cfg.Cache.Password,
				DB:           d.cfg.Cache.DB,
				PoolSize:     d.cfg.Cache.PoolSize,
				MinIdleConns: d.cfg.Cache.MinIdleConns,
				DialTimeout:  d.cfg.Cache.DialTimeout,
				ReadTimeout:  d.cfg.Cache.ReadTimeout,
				WriteTimeout: d.cfg.Cache.WriteTimeout,
				MaxRetries:   d.cfg.Cache.MaxRetries,
			})
			d.notifier = redislisten.New(client, d.cfg.Outbox.PushChannel, d.logger)

		default:
			return fmt.Errorf("unknown push transport %q", d.cfg.Outbox.PushTransport)
		}

		return nil
	}
}

func WithPoller() DependencyOption {
	return func(d *Dependencies) error {
		poller, err := outbox.NewPoller(
			d.Repos.OutboxDriver,
			d.Engine.Configs,
			d.Engine.Listeners,
			d.Engine.Processor,
			d.Engine.Pipeline,
			d.notifier,
			d.Infra.Metrics,
			d.logger,
			d.cfg.Outbox,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize poller: %w", err)
		}

		d.Workers.OutboxPoller = poller

		return nil
	}
}

func WithOpsServer() DependencyOption {
	return func(d *Dependencies) error {
		d.Infra.OpsServer = initOpsServer(d.cfg, d.logger, d.Infra.StorageClient, d.Infra.Metrics)

		return nil
	}
}

func buildConfigRegistry(cfg *config.ServiceConfig) (*outbox.ConfigRegistry, error) {
	strategy := backoff.NewExponentialStrategy(cfg.Backoff)

	eventConfigs := make([]domain.EventConfig, 0, len(cfg.Outbox.Events))

	for _, name := range cfg.Outbox.Events {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		eventConfigs = append(eventConfigs, domain.EventConfig{
			Name:              name,
			ExpiresAt:         cfg.Outbox.DefaultExpiresAt,
			ReadyToRetryAfter: cfg.Outbox.DefaultReadyToRetryAfter,
			MaxExecutionTime:  cfg.Outbox.DefaultMaxExecutionTime,
			MaxRetries:        cfg.Outbox.DefaultMaxRetries,
			RetryStrategy:     strategy,
		})
	}

	if len(eventConfigs) == 0 {
		return nil, fmt.Errorf("no outbox events configured, set OUTBOX_EVENTS")
	}

	return outbox.NewConfigRegistry(eventConfigs...)
}
