// Package clock abstracts time so that record deadlines can be pinned in
// tests. Production code receives a Clock and never calls time.Now directly
// when computing persisted timestamps.
package clock

import (
	"sync"
	"time"
)

type (
	// Clock provides the current time.
	Clock interface {
		Now() time.Time
	}

	// Real uses the actual system time.
	Real struct{}

	// Fake returns a controllable time. Useful for unit tests.
	Fake struct {
		mu   sync.Mutex
		time time.Time
	}
)

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// NewFake creates a fake clock pinned to the given instant.
func NewFake(t time.Time) *Fake {
	return &Fake{time: t}
}

// Now returns the pinned time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.time
}

// Advance moves the pinned time forward by d.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.time = c.time.Add(d)
}

// Set pins the fake clock to the given instant.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.time = t
}
