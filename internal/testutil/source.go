package testutil

import (
	"sync"

	"github.com/roach88/redworker/internal/ir"
)

// FakeSource is an in-memory command source. It hands out queued commands
// in order and records every released resource handle, so tests can check
// that each command went back exactly once.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeSource struct {
	mu       sync.Mutex
	cmds     []*ir.Command
	cursor   []*ir.Command
	next     ir.Handle
	pushed   map[ir.Handle]bool
	released map[ir.Handle]int
	order    []ir.Handle
	armed    bool
	requests int
	notify   chan struct{}
}

// NewFakeSource creates an empty source.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		pushed:   make(map[ir.Handle]bool),
		released: make(map[ir.Handle]int),
		notify:   make(chan struct{}, 1),
	}
}

// Push queues a display command and returns its handle. Commands without
// a handle get the next free one.
func (s *FakeSource) Push(cmd *ir.Command) ir.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assign(cmd)
	s.cmds = append(s.cmds, cmd)
	s.wake()
	return cmd.Handle
}

// PushCursor queues a cursor command and returns its handle.
func (s *FakeSource) PushCursor(cmd *ir.Command) ir.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assign(cmd)
	s.cursor = append(s.cursor, cmd)
	s.wake()
	return cmd.Handle
}

func (s *FakeSource) assign(cmd *ir.Command) {
	if cmd.Handle == 0 {
		s.next++
		cmd.Handle = s.next
	} else if cmd.Handle > s.next {
		s.next = cmd.Handle
	}
	s.pushed[cmd.Handle] = true
}

func (s *FakeSource) wake() {
	if !s.armed {
		return
	}
	s.armed = false
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next implements worker.CommandSource.
func (s *FakeSource) Next() (*ir.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cmds) == 0 {
		return nil, false
	}
	cmd := s.cmds[0]
	s.cmds[0] = nil
	s.cmds = s.cmds[1:]
	return cmd, true
}

// NextCursor implements worker.CommandSource.
func (s *FakeSource) NextCursor() (*ir.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cursor) == 0 {
		return nil, false
	}
	cmd := s.cursor[0]
	s.cursor[0] = nil
	s.cursor = s.cursor[1:]
	return cmd, true
}

// Release implements worker.CommandSource.
func (s *FakeSource) Release(h ir.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released[h]++
	s.order = append(s.order, h)
}

// RequestNotification implements worker.CommandSource.
func (s *FakeSource) RequestNotification() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if len(s.cmds) > 0 || len(s.cursor) > 0 {
		return false
	}
	s.armed = true
	return true
}

// Notify implements worker.CommandSource.
func (s *FakeSource) Notify() <-chan struct{} {
	return s.notify
}

// Pending returns the number of queued, not yet pulled commands.
func (s *FakeSource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cmds) + len(s.cursor)
}

// ReleaseCount returns how often h was released.
func (s *FakeSource) ReleaseCount(h ir.Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[h]
}

// Released returns every released handle in release order.
func (s *FakeSource) Released() []ir.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ir.Handle(nil), s.order...)
}

// Outstanding returns the pushed handles not released yet.
func (s *FakeSource) Outstanding() []ir.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ir.Handle
	for h := ir.Handle(1); h <= s.next; h++ {
		if s.pushed[h] && s.released[h] == 0 {
			out = append(out, h)
		}
	}
	return out
}

// DoubleReleased returns the handles released more than once.
func (s *FakeSource) DoubleReleased() []ir.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ir.Handle
	for h := ir.Handle(1); h <= s.next; h++ {
		if s.released[h] > 1 {
			out = append(out, h)
		}
	}
	return out
}

// NotificationRequests returns how often the worker asked to be notified.
func (s *FakeSource) NotificationRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}
