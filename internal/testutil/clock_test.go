package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	clock := NewManualClock(time.Time{})
	assert.Equal(t, DefaultEpoch, clock.Now())
	assert.Equal(t, time.Duration(0), clock.Elapsed())
}

func TestManualClock_StartsAtGivenTime(t *testing.T) {
	start := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	assert.Equal(t, start, clock.Now())
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClock(time.Time{})

	clock.Advance(10 * time.Millisecond)
	clock.Advance(5 * time.Millisecond)
	assert.Equal(t, 15*time.Millisecond, clock.Elapsed())

	// Negative durations never move the clock back
	clock.Advance(-time.Second)
	assert.Equal(t, 15*time.Millisecond, clock.Elapsed())
}

func TestManualClock_SetIsMonotonic(t *testing.T) {
	clock := NewManualClock(time.Time{})

	clock.Set(DefaultEpoch.Add(time.Second))
	assert.Equal(t, time.Second, clock.Elapsed())

	clock.Set(DefaultEpoch)
	assert.Equal(t, time.Second, clock.Elapsed())
}

func TestManualClock_Tick(t *testing.T) {
	clock := NewManualClock(time.Time{})
	clock.Tick(3 * time.Millisecond)

	assert.Equal(t, DefaultEpoch, clock.Now())
	assert.Equal(t, DefaultEpoch.Add(3*time.Millisecond), clock.Now())
	// Elapsed reads without ticking
	assert.Equal(t, 6*time.Millisecond, clock.Elapsed())
	assert.Equal(t, 6*time.Millisecond, clock.Elapsed())

	clock.Tick(0)
	assert.Equal(t, clock.Now(), clock.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(time.Time{})
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Advance(time.Millisecond)
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, numGoroutines*callsPerGoroutine*time.Millisecond, clock.Elapsed())
}
