package domain

import (
	"slices"
	"time"
)

type (
	// Status is the lifecycle state of an outbox record.
	Status string

	// OutboxRecord is a persisted event awaiting delivery to its listeners.
	// Timestamps are kept as Unix milliseconds to survive round-tripping
	// through drivers without timezone drift.
	OutboxRecord struct {
		ID           int64
		EventName    string
		EventPayload any

		// DeliveredTo names the listeners that already acknowledged this
		// record. Redelivery skips them.
		DeliveredTo []string

		// AttemptAt is when the record becomes due for its next attempt.
		// It is nil once the record is dead-lettered.
		AttemptAt  *int64
		RetryCount int
		Status     Status
		ExpireAt   int64
		InsertedAt int64
	}

	// ClaimResult splits a claimed batch into records to dispatch and
	// records that just exhausted their retry budget.
	ClaimResult struct {
		Pending      []*OutboxRecord
		DeadLettered []*OutboxRecord
	}

	// FlushResult summarizes a synchronous drain of the outbox.
	FlushResult struct {
		Processed int
		Failed    int
	}
)

const (
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// NewOutboxRecord builds an unsaved record for the given event. The first
// attempt time carries the event's initial retry delay, so freshly emitted
// records are picked up by the poller only after local dispatch had its
// chance.
func NewOutboxRecord(eventName string, payload any, now, expireAt, attemptAt time.Time) *OutboxRecord {
	attemptAtMs := attemptAt.UnixMilli()

	return &OutboxRecord{
		EventName:    eventName,
		EventPayload: payload,
		DeliveredTo:  []string{},
		AttemptAt:    &attemptAtMs,
		Status:       StatusPending,
		ExpireAt:     expireAt.UnixMilli(),
		InsertedAt:   now.UnixMilli(),
	}
}

// IsDeliveredTo reports whether the named listener already acknowledged
// this record.
func (r *OutboxRecord) IsDeliveredTo(listenerName string) bool {
	return slices.Contains(r.DeliveredTo, listenerName)
}

// MarkDelivered records successful deliveries. Duplicate names are ignored
// so redeliveries keep the set stable.
func (r *OutboxRecord) MarkDelivered(listenerNames ...string) {
	for _, name := range listenerNames {
		if !r.IsDeliveredTo(name) {
			r.DeliveredTo = append(r.DeliveredTo, name)
		}
	}
}

// RemainingListeners returns the listeners that have not acknowledged the
// record yet.
func (r *OutboxRecord) RemainingListeners(listenerNames []string) []string {
	remaining := make([]string, 0, len(listenerNames))
	for _, name := range listenerNames {
		if !r.IsDeliveredTo(name) {
			remaining = append(remaining, name)
		}
	}

	return remaining
}

// MarkDeadLettered transitions the record to its terminal failed state.
// A nil AttemptAt keeps dead-lettered records out of every due-batch query.
func (r *OutboxRecord) MarkDeadLettered() {
	r.Status = StatusFailed
	r.AttemptAt = nil
}

// IsDeadLettered reports whether the record reached its terminal state.
func (r *OutboxRecord) IsDeadLettered() bool {
	return r.Status == StatusFailed
}
