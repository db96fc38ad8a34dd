package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// DaemonCtx runs the outbox delivery daemon: the poller that claims due
// records and dispatches them, plus the ops server for probes and metrics.
type DaemonCtx struct {
	deps *Dependencies

	shutdownChannel chan os.Signal
	pollerDone      chan struct{}

	backgroundActorCtx      context.Context
	backgroundActorStopFunc context.CancelFunc
}

func NewDaemon(opt ...DaemonOption) *DaemonCtx {
	if len(opt) != 0 {
		dCtx := DaemonCtx{}

		for i := range opt {
			opt[i](&dCtx)
		}

		return &dCtx
	}

	return &DaemonCtx{
		shutdownChannel: make(chan os.Signal, 1),
	}
}

func (c *DaemonCtx) Run() {
	c.build()
	c.start()
	c.monitorConfigChanges()
	c.shutdownHook()
	c.shutdown()
}

func (c *DaemonCtx) build() {
	c.pollerDone = make(chan struct{})
	c.backgroundActorCtx, c.backgroundActorStopFunc = context.WithCancel(context.Background())

	deps, err := initializeDependencies(c.backgroundActorCtx, WithDaemon())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	c.deps = deps
}

func (c *DaemonCtx) start() {
	go func() {
		defer close(c.pollerDone)

		c.deps.logger.Info().Msg("starting outbox delivery daemon")

		if err := c.deps.Workers.OutboxPoller.Start(c.backgroundActorCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.deps.logger.Fatal().Err(err).Msg("outbox poller failed")
		}
	}()

	go func() {
		c.deps.logger.Info().
			Str("addr", c.deps.Infra.OpsServer.Addr).
			Msg("starting ops server")

		if err := c.deps.Infra.OpsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.deps.logger.Fatal().Err(err).Msg("unable to start ops server")
		}
	}()
}

func (c *DaemonCtx) shutdownHook() {
	signal.Notify(c.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
}

func (c *DaemonCtx) monitorConfigChanges() {
	reloadErrors := c.deps.configLoader.WatchConfigSignals(c.backgroundActorCtx)

	go func() {
		for err := range reloadErrors {
			if err != nil {
				c.deps.logger.Error().Err(err).Msg("failed to reload config")
				continue
			}

			c.deps.logger.Info().Msg("config reloaded successfully")
		}

		c.deps.logger.Info().Msg("stopping config monitor")
	}()
}

func (c *DaemonCtx) shutdown() {
	// Waits for one of the following shutdown conditions to happen.
	select {
	case <-c.backgroundActorCtx.Done():
	case <-c.shutdownChannel:
		defer close(c.shutdownChannel)
	}

	c.deps.logger.Info().Msg("received shutdown signal")

	// Cancel context so the poller drains in-flight dispatches, and keep
	// the storage pool open until the drain finishes.
	c.backgroundActorStopFunc()
	c.awaitPollerDrain()

	c.cleanup()

	c.deps.logger.Info().Msg("outbox delivery daemon stopped")
}

// awaitPollerDrain blocks until the poller goroutine returned, bounded by
// the shutdown timeout so a stuck dispatch cannot wedge the daemon.
func (c *DaemonCtx) awaitPollerDrain() {
	if c.pollerDone == nil {
		return
	}

	select {
	case <-c.pollerDone:
	case <-time.After(c.deps.cfg.OpsServer.ShutdownTimeout):
		c.deps.logger.Warn().Msg("poller did not drain before the shutdown timeout")
	}
}

func (c *DaemonCtx) cleanup() {
	c.deps.logger.Info().Msg("cleaning up resources...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.deps.cfg.OpsServer.ShutdownTimeout)
	defer cancel()

	if err := c.deps.Infra.OpsServer.Shutdown(shutdownCtx); err != nil {
		c.deps.logger.Error().Err(err).Msg("unable to gracefully shutdown ops server")
	}

	if c.deps.Infra.QueuePublisher != nil {
		if err := c.deps.Infra.QueuePublisher.Close(); err != nil {
			c.deps.logger.Error().Err(err).Msg("failed to close queue publisher")
		}
	}

	if err := c.deps.Infra.Metrics.Shutdown(shutdownCtx); err != nil {
		c.deps.logger.Error().Err(err).Msg("failed to shutdown metrics")
	}

	if err := c.deps.tracerShutdownFunc(shutdownCtx); err != nil {
		c.deps.logger.Error().Err(err).Msg("failed to shutdown tracer")
	}

	if err := c.deps.Infra.StorageClient.Close(); err != nil {
		c.deps.logger.Error().Err(err).Msg("failed to close storage")
	}

	c.deps.logger.Info().Msg("cleanup completed")
}
