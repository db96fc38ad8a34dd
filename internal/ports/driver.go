package ports

import (
	"context"
	"time"

	"github.com/architeacher/svc-event-outbox/internal/domain"
)

type (
	// UnitOfWork accumulates entity writes and the outbox records emitted
	// alongside them, and commits everything in a single transaction.
	UnitOfWork interface {
		// StagePersist queues an entity (or an outbox record) for saving.
		StagePersist(entity any)

		// StageRemove queues an entity for deletion.
		StageRemove(entity any)

		// Commit applies all staged operations atomically. When the unit
		// of work is joined to an externally managed transaction, Commit
		// flushes the staged writes into it and leaves the transaction
		// boundary to the caller.
		Commit(ctx context.Context) error
	}

	// Driver is the storage backend of the outbox engine.
	Driver interface {
		// UnitOfWork starts an empty unit of work.
		UnitOfWork() UnitOfWork

		// CreateOutboxRecord builds an unsaved record for the event with
		// the given expiry and first-attempt times.
		CreateOutboxRecord(eventName string, payload any, expireAt, attemptAt time.Time) *domain.OutboxRecord

		// ClaimDueBatch locks up to limit due records, extends their
		// attempt time so rival pollers skip them, and dead-letters the
		// ones that exhausted their retry budget.
		ClaimDueBatch(ctx context.Context, limit int) (*domain.ClaimResult, error)

		// FindPending returns records still awaiting delivery, due or not.
		FindPending(ctx context.Context, limit int) ([]*domain.OutboxRecord, error)
	}

	// ConfigResolver resolves the delivery policy for an event name.
	ConfigResolver interface {
		Resolve(eventName string) (domain.EventConfig, error)
	}
)
