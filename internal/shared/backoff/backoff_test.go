package backoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/architeacher/svc-event-outbox/internal/config"
	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/shared/backoff"
)

var (
	_ domain.RetryStrategy = backoff.Exponential{}
	_ domain.RetryStrategy = backoff.Fixed{}
)

func TestEventConfigUsesBackoffStrategy(t *testing.T) {
	t.Parallel()

	cfg := domain.EventConfig{
		ReadyToRetryAfter: time.Second,
		RetryStrategy:     backoff.NewFixedStrategy(30 * time.Second),
	}

	assert.Equal(t, 30*time.Second, cfg.RetryDelay(2))
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		retryCount    int
		backoffConfig config.BackoffConfig
		minExpected   time.Duration
		maxExpected   time.Duration
	}{
		{
			name:       "First retry",
			retryCount: 0,
			backoffConfig: config.BackoffConfig{
				BaseDelay:  1 * time.Second,
				Multiplier: 2.0,
				Jitter:     0.2,
				MaxDelay:   10 * time.Second,
			},
			minExpected: 1 * time.Second,
			maxExpected: 1 * time.Second,
		},
		{
			name:       "Second retry",
			retryCount: 1,
			backoffConfig: config.BackoffConfig{
				BaseDelay:  1 * time.Second,
				Multiplier: 2.0,
				Jitter:     0.2,
				MaxDelay:   10 * time.Second,
			},
			minExpected: 1600 * time.Millisecond,
			maxExpected: 2400 * time.Millisecond,
		},
		{
			name:       "High retry count should be capped",
			retryCount: 10,
			backoffConfig: config.BackoffConfig{
				BaseDelay:  1 * time.Second,
				Multiplier: 2.0,
				Jitter:     0.2,
				MaxDelay:   10 * time.Second,
			},
			minExpected: 8 * time.Second,
			maxExpected: 12 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			strategy := backoff.NewExponentialStrategy(tt.backoffConfig)
			duration := strategy.Backoff(tt.retryCount)

			assert.GreaterOrEqual(t, duration, tt.minExpected)
			assert.LessOrEqual(t, duration, tt.maxExpected)
		})
	}
}

func TestFixedBackoff(t *testing.T) {
	t.Parallel()

	strategy := backoff.NewFixedStrategy(5 * time.Second)

	for _, retries := range []int{0, 1, 7, 100} {
		assert.Equal(t, 5*time.Second, strategy.Backoff(retries))
	}
}
