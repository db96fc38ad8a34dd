package backoff

import (
	"math/rand"
	"time"

	"github.com/architeacher/svc-event-outbox/internal/config"
)

type (
	// Strategy defines the methodology for backing off after a failed
	// delivery attempt.
	Strategy interface {
		// Backoff returns the amount of time to wait before the next retry given
		// the number of consecutive failures.
		Backoff(retries int) time.Duration
	}

	// Exponential implements exponential backoff algorithm.
	Exponential struct {
		// config contains all options to configure the backoff algorithm.
		config config.BackoffConfig
	}

	// Fixed waits the same delay regardless of how many attempts failed.
	Fixed struct {
		delay time.Duration
	}
)

func NewExponentialStrategy(cfg config.BackoffConfig) Exponential {
	return Exponential{
		config: cfg,
	}
}

func NewFixedStrategy(delay time.Duration) Fixed {
	return Fixed{
		delay: delay,
	}
}

// Backoff calculates the backoff duration using exponential backoff with jitter.
func (bc Exponential) Backoff(retries int) time.Duration {
	if retries == 0 {
		return bc.config.BaseDelay
	}

	backoff, maxBackoff := float64(bc.config.BaseDelay), float64(bc.config.MaxDelay)
	for backoff < maxBackoff && retries > 0 {
		backoff *= bc.config.Multiplier
		retries--
	}

	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	backoff *= 1 + bc.config.Jitter*(rand.Float64()*2-1)
	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// Backoff returns the fixed delay.
func (bc Fixed) Backoff(int) time.Duration {
	return bc.delay
}
