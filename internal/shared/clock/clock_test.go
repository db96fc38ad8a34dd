package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/architeacher/svc-event-outbox/internal/shared/clock"
)

func TestFakeClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)

	assert.Equal(t, start, fake.Now())

	fake.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), fake.Now())

	pinned := start.Add(time.Hour)
	fake.Set(pinned)
	assert.Equal(t, pinned, fake.Now())
}

func TestRealClockIsUTC(t *testing.T) {
	t.Parallel()

	now := clock.Real{}.Now()
	assert.Equal(t, time.UTC, now.Location())
}
