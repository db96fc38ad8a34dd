package domain

import (
	"time"
)

type (
	// Event is an application event to be emitted through the outbox.
	Event struct {
		Name    string
		Payload any
	}

	// RetryStrategy computes the delay before the next delivery attempt
	// from the number of consecutive failures. The concrete strategies
	// live in internal/shared/backoff.
	RetryStrategy interface {
		Backoff(retryCount int) time.Duration
	}

	// EventConfig holds the delivery policy for a single event type. Every
	// event name must be configured before it can be emitted or processed.
	EventConfig struct {
		Name string

		// ExpiresAt bounds how long a record may sit in the outbox before
		// it is eligible for cleanup.
		ExpiresAt time.Duration

		// ReadyToRetryAfter is the fallback delay between attempts when no
		// retry strategy is configured.
		ReadyToRetryAfter time.Duration

		// MaxExecutionTime bounds a single listener invocation.
		MaxExecutionTime time.Duration

		// MaxRetries is the number of failed attempts after which a record
		// is dead-lettered.
		MaxRetries int

		// RetryStrategy, when set, overrides ReadyToRetryAfter with a
		// computed delay based on the retry count.
		RetryStrategy RetryStrategy
	}

	// EventContext carries a single delivery attempt through hooks and filters.
	EventContext struct {
		EventID      int64
		EventName    string
		Payload      any
		ListenerName string
	}

	// DeadLetterContext describes a record that exhausted its retry budget.
	DeadLetterContext struct {
		EventID     int64
		EventName   string
		Payload     any
		RetryCount  int
		DeliveredTo []string
	}

	// ExecutionResult is the outcome of one listener invocation.
	ExecutionResult struct {
		Success  bool
		Err      error
		Duration time.Duration
	}
)

// RetryDelay returns how long a record should wait before its next attempt.
func (c EventConfig) RetryDelay(retryCount int) time.Duration {
	if c.RetryStrategy != nil {
		return c.RetryStrategy.Backoff(retryCount)
	}

	return c.ReadyToRetryAfter
}
