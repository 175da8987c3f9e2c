package worker

import (
	"sync/atomic"
	"time"
)

// Clock supplies monotonic time for stream detection and timeouts.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Sequence is a monotonic counter for message serials and journal order.
//
// Safe for concurrent use, although every Sequence is advanced by exactly
// one worker goroutine.
type Sequence struct {
	seq atomic.Uint64
}

// NewSequenceAt returns a sequence whose next value is start+1. Used when a
// migrated channel resumes its serials.
func NewSequenceAt(start uint64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next value.
func (s *Sequence) Next() uint64 {
	return s.seq.Add(1)
}

// Current returns the last returned value.
func (s *Sequence) Current() uint64 {
	return s.seq.Load()
}
