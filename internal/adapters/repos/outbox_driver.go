package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/ports"
	"github.com/architeacher/svc-event-outbox/internal/shared/clock"
)

const outboxTable = "outbox_transport_event"

var outboxColumns = []string{
	"id", "event_name", "event_payload", "delivered_to_listeners",
	"attempt_at", "retry_count", "status", "expire_at", "inserted_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Ensure OutboxDriver implements the Driver interface
var _ ports.Driver = (*OutboxDriver)(nil)

type (
	// OutboxDriver is the Postgres storage backend of the engine.
	OutboxDriver struct {
		conn    *sqlx.DB
		configs ports.ConfigResolver
		clk     clock.Clock
	}

	outboxRecordRow struct {
		ID           int64  `db:"id"`
		EventName    string `db:"event_name"`
		EventPayload []byte `db:"event_payload"`
		DeliveredTo  []byte `db:"delivered_to_listeners"`
		AttemptAt    *int64 `db:"attempt_at"`
		RetryCount   int    `db:"retry_count"`
		Status       string `db:"status"`
		ExpireAt     int64  `db:"expire_at"`
		InsertedAt   int64  `db:"inserted_at"`
	}
)

func NewOutboxDriver(db *sqlx.DB, configs ports.ConfigResolver, clk clock.Clock) *OutboxDriver {
	return &OutboxDriver{
		conn:    db,
		configs: configs,
		clk:     clk,
	}
}

// CreateOutboxRecord builds an unsaved record; the id is assigned on insert.
func (d *OutboxDriver) CreateOutboxRecord(eventName string, payload any, expireAt, attemptAt time.Time) *domain.OutboxRecord {
	return domain.NewOutboxRecord(eventName, payload, d.clk.Now(), expireAt, attemptAt)
}

// UnitOfWork starts an empty unit of work backed by a fresh transaction.
func (d *OutboxDriver) UnitOfWork() ports.UnitOfWork {
	return &unitOfWork{driver: d}
}

// JoinedUnitOfWork stages writes into a caller-managed transaction. Commit
// then only flushes; the caller keeps the transaction boundary.
func (d *OutboxDriver) JoinedUnitOfWork(tx *sqlx.Tx) ports.UnitOfWork {
	return &unitOfWork{driver: d, external: tx}
}

// ClaimDueBatch locks up to limit due records with skip-locked semantics,
// increments their retry counts and either extends their attempt time or
// dead-letters them, all in one transaction. Two claimers never see the
// same row in the same window. A record whose event name has no
// configuration fails the call and rolls back the batch.
func (d *OutboxDriver) ClaimDueBatch(ctx context.Context, limit int) (*domain.ClaimResult, error) {
	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := d.clk.Now()

	query, args, err := psql.Select(outboxColumns...).
		From(outboxTable).
		Where(sq.And{
			sq.Eq{"status": string(domain.StatusPending)},
			sq.LtOrEq{"attempt_at": now.UnixMilli()},
		}).
		OrderBy("attempt_at ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build claim query: %w", err)
	}

	var rows []outboxRecordRow
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select due records: %w", err)
	}

	result := &domain.ClaimResult{}

	for _, row := range rows {
		record, err := convertRowToRecord(row)
		if err != nil {
			return nil, err
		}

		record.RetryCount++

		// Unknown event names abort the whole batch. The deferred rollback
		// leaves every row untouched for the next claim cycle.
		cfg, err := d.configs.Resolve(record.EventName)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config for record %d: %w", record.ID, err)
		}

		if record.RetryCount >= cfg.MaxRetries {
			record.MarkDeadLettered()
			result.DeadLettered = append(result.DeadLettered, record)
		} else {
			next := now.Add(cfg.RetryDelay(record.RetryCount)).UnixMilli()
			record.AttemptAt = &next
			result.Pending = append(result.Pending, record)
		}

		if err := claimUpdate(ctx, tx, record); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	return result, nil
}

// FindPending is a lock-free snapshot of records still awaiting delivery.
func (d *OutboxDriver) FindPending(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	query, args, err := psql.Select(outboxColumns...).
		From(outboxTable).
		Where(sq.Eq{"status": string(domain.StatusPending)}).
		OrderBy("inserted_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var rows []outboxRecordRow
	if err := d.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}

	records := make([]*domain.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		record, err := convertRowToRecord(row)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func claimUpdate(ctx context.Context, tx *sqlx.Tx, record *domain.OutboxRecord) error {
	query, args, err := psql.Update(outboxTable).
		Set("retry_count", record.RetryCount).
		Set("attempt_at", record.AttemptAt).
		Set("status", string(record.Status)).
		Where(sq.Eq{"id": record.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build claim update: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update claimed record %d: %w", record.ID, err)
	}

	return nil
}

func convertRowToRecord(row outboxRecordRow) (*domain.OutboxRecord, error) {
	var payload any
	if err := json.Unmarshal(row.EventPayload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload of record %d: %w", row.ID, err)
	}

	deliveredTo := []string{}
	if len(row.DeliveredTo) > 0 {
		if err := json.Unmarshal(row.DeliveredTo, &deliveredTo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delivered listeners of record %d: %w", row.ID, err)
		}
	}

	return &domain.OutboxRecord{
		ID:           row.ID,
		EventName:    row.EventName,
		EventPayload: payload,
		DeliveredTo:  deliveredTo,
		AttemptAt:    row.AttemptAt,
		RetryCount:   row.RetryCount,
		Status:       domain.Status(row.Status),
		ExpireAt:     row.ExpireAt,
		InsertedAt:   row.InsertedAt,
	}, nil
}
