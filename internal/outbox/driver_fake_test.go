package outbox

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/ports"
	"github.com/architeacher/svc-event-outbox/internal/shared/clock"
)

// fakeDriver is an in-memory driver that mirrors the claim-and-extend
// semantics of the real storage backend.
type fakeDriver struct {
	mu       sync.Mutex
	clk      clock.Clock
	configs  ports.ConfigResolver
	nextID   int64
	records  map[int64]*domain.OutboxRecord
	entities []any

	claims int

	commitErr error
	claimErr  error
}

type fakeUnitOfWork struct {
	driver   *fakeDriver
	persists []any
	removes  []any
}

func newFakeDriver(clk clock.Clock, configs ports.ConfigResolver) *fakeDriver {
	return &fakeDriver{
		clk:     clk,
		configs: configs,
		records: make(map[int64]*domain.OutboxRecord),
	}
}

func (d *fakeDriver) UnitOfWork() ports.UnitOfWork {
	return &fakeUnitOfWork{driver: d}
}

func (d *fakeDriver) CreateOutboxRecord(eventName string, payload any, expireAt, attemptAt time.Time) *domain.OutboxRecord {
	return domain.NewOutboxRecord(eventName, payload, d.clk.Now(), expireAt, attemptAt)
}

func (d *fakeDriver) ClaimDueBatch(_ context.Context, limit int) (*domain.ClaimResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.claims++

	if d.claimErr != nil {
		return nil, d.claimErr
	}

	now := d.clk.Now()
	due := make([]*domain.OutboxRecord, 0)
	for _, record := range d.records {
		if record.Status == domain.StatusPending && record.AttemptAt != nil && *record.AttemptAt <= now.UnixMilli() {
			due = append(due, record)
		}
	}

	sort.Slice(due, func(i, j int) bool { return *due[i].AttemptAt < *due[j].AttemptAt })
	if len(due) > limit {
		due = due[:limit]
	}

	// Resolve everything before mutating so a failed batch leaves the
	// records untouched, like the rolled-back transaction would.
	configs := make([]domain.EventConfig, len(due))
	for i, record := range due {
		cfg, err := d.configs.Resolve(record.EventName)
		if err != nil {
			return nil, err
		}

		configs[i] = cfg
	}

	result := &domain.ClaimResult{}
	for i, record := range due {
		cfg := configs[i]
		record.RetryCount++

		if record.RetryCount >= cfg.MaxRetries {
			record.MarkDeadLettered()
			result.DeadLettered = append(result.DeadLettered, cloneRecord(record))

			continue
		}

		next := now.Add(cfg.RetryDelay(record.RetryCount)).UnixMilli()
		record.AttemptAt = &next
		result.Pending = append(result.Pending, cloneRecord(record))
	}

	return result, nil
}

func (d *fakeDriver) FindPending(_ context.Context, limit int) ([]*domain.OutboxRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := make([]*domain.OutboxRecord, 0)
	for _, record := range d.records {
		if record.Status == domain.StatusPending {
			pending = append(pending, cloneRecord(record))
		}
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

func (d *fakeDriver) record(id int64) *domain.OutboxRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.records[id]
	if !ok {
		return nil
	}

	return cloneRecord(record)
}

func (d *fakeDriver) claimCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.claims
}

func (d *fakeDriver) recordCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.records)
}

func (u *fakeUnitOfWork) StagePersist(entity any) {
	u.persists = append(u.persists, entity)
}

func (u *fakeUnitOfWork) StageRemove(entity any) {
	u.removes = append(u.removes, entity)
}

func (u *fakeUnitOfWork) Commit(_ context.Context) error {
	d := u.driver

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.commitErr != nil {
		return d.commitErr
	}

	for _, entity := range u.persists {
		record, ok := entity.(*domain.OutboxRecord)
		if !ok {
			d.entities = append(d.entities, entity)

			continue
		}

		if record.ID == 0 {
			d.nextID++
			record.ID = d.nextID
		}

		d.records[record.ID] = cloneRecord(record)
	}

	for _, entity := range u.removes {
		record, ok := entity.(*domain.OutboxRecord)
		if !ok {
			continue
		}

		delete(d.records, record.ID)
	}

	u.persists = nil
	u.removes = nil

	return nil
}

func cloneRecord(record *domain.OutboxRecord) *domain.OutboxRecord {
	clone := *record
	clone.DeliveredTo = slices.Clone(record.DeliveredTo)

	if record.AttemptAt != nil {
		attemptAt := *record.AttemptAt
		clone.AttemptAt = &attemptAt
	}

	return &clone
}
