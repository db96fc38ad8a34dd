package repos

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-event-outbox/internal/domain"
)

type (
	// TxPersister lets business entities ride in the emit transaction.
	TxPersister interface {
		PersistInTx(ctx context.Context, tx *sqlx.Tx) error
	}

	// TxRemover is the delete counterpart of TxPersister.
	TxRemover interface {
		RemoveInTx(ctx context.Context, tx *sqlx.Tx) error
	}

	// unitOfWork buffers writes and applies them in one transaction. With
	// an external transaction, Commit only flushes the staged writes and
	// leaves committing to the caller.
	unitOfWork struct {
		driver   *OutboxDriver
		external *sqlx.Tx
		stages   []func(ctx context.Context, tx *sqlx.Tx) error
	}
)

func (u *unitOfWork) StagePersist(entity any) {
	switch e := entity.(type) {
	case *domain.OutboxRecord:
		u.stages = append(u.stages, func(ctx context.Context, tx *sqlx.Tx) error {
			if e.ID == 0 {
				return insertRecord(ctx, tx, e)
			}

			return updateRecord(ctx, tx, e)
		})

	case TxPersister:
		u.stages = append(u.stages, e.PersistInTx)

	default:
		u.stages = append(u.stages, func(context.Context, *sqlx.Tx) error {
			return fmt.Errorf("cannot persist entity of type %T", entity)
		})
	}
}

func (u *unitOfWork) StageRemove(entity any) {
	switch e := entity.(type) {
	case *domain.OutboxRecord:
		u.stages = append(u.stages, func(ctx context.Context, tx *sqlx.Tx) error {
			return deleteRecord(ctx, tx, e)
		})

	case TxRemover:
		u.stages = append(u.stages, e.RemoveInTx)

	default:
		u.stages = append(u.stages, func(context.Context, *sqlx.Tx) error {
			return fmt.Errorf("cannot remove entity of type %T", entity)
		})
	}
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.external != nil {
		if err := u.flush(ctx, u.external); err != nil {
			return err
		}

		u.stages = nil

		return nil
	}

	tx, err := u.driver.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := u.flush(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.stages = nil

	return nil
}

func (u *unitOfWork) flush(ctx context.Context, tx *sqlx.Tx) error {
	for _, stage := range u.stages {
		if err := stage(ctx, tx); err != nil {
			return err
		}
	}

	return nil
}

func insertRecord(ctx context.Context, tx *sqlx.Tx, record *domain.OutboxRecord) error {
	payloadJSON, err := json.Marshal(record.EventPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	deliveredJSON, err := json.Marshal(record.DeliveredTo)
	if err != nil {
		return fmt.Errorf("failed to marshal delivered listeners: %w", err)
	}

	query, args, err := psql.Insert(outboxTable).
		Columns("event_name", "event_payload", "delivered_to_listeners",
			"attempt_at", "retry_count", "status", "expire_at", "inserted_at").
		Values(record.EventName, payloadJSON, deliveredJSON,
			record.AttemptAt, record.RetryCount, string(record.Status),
			record.ExpireAt, record.InsertedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if err := tx.GetContext(ctx, &record.ID, query, args...); err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}

	return nil
}

func updateRecord(ctx context.Context, tx *sqlx.Tx, record *domain.OutboxRecord) error {
	deliveredJSON, err := json.Marshal(record.DeliveredTo)
	if err != nil {
		return fmt.Errorf("failed to marshal delivered listeners: %w", err)
	}

	query, args, err := psql.Update(outboxTable).
		Set("delivered_to_listeners", deliveredJSON).
		Where(sq.Eq{"id": record.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update outbox record %d: %w", record.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", domain.ErrRecordNotFound, record.ID)
	}

	return nil
}

func deleteRecord(ctx context.Context, tx *sqlx.Tx, record *domain.OutboxRecord) error {
	query, args, err := psql.Delete(outboxTable).
		Where(sq.Eq{"id": record.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete outbox record %d: %w", record.ID, err)
	}

	return nil
}
