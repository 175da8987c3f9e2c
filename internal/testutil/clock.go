package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is where a ManualClock starts when given the zero time.
var DefaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock is a settable clock for tests. Time only moves when the test
// moves it, so stream detection and timeouts are deterministic.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	tick time.Duration
}

// NewManualClock creates a clock showing start, or DefaultEpoch when start
// is zero.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	return &ManualClock{now: start}
}

// Now returns the current time, then moves the clock by the tick set with
// Tick.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.tick)
	return now
}

// Tick makes every later Now call advance the clock by d, as if each
// reading took that long. Zero or negative stops the clock again.
func (c *ManualClock) Tick(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = max(d, 0)
}

// Advance moves the clock forward by d. Negative durations are ignored so
// the clock stays monotonic.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Set moves the clock to t if t is not before the current time.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// Elapsed returns the time since DefaultEpoch.
func (c *ManualClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(DefaultEpoch)
}
