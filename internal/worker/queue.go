package worker

import "sync"

// request is a control message waiting for the run loop, with the
// channel its result goes to.
type request struct {
	ctrl  Control
	reply chan result
}

type result struct {
	reply Reply
	err   error
}

// controlQueue is a thread-safe FIFO of control requests.
//
// Callers on any goroutine enqueue; the run loop dequeues with TryDequeue
// and sleeps on Wait. The size-1 signal channel coalesces wake-ups so the
// loop can select on it next to ctx.Done.
type controlQueue struct {
	mu     sync.Mutex
	reqs   []request
	closed bool
	signal chan struct{}
}

func newControlQueue() *controlQueue {
	return &controlQueue{
		reqs:   make([]request, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds r to the back of the queue. It returns false once the queue
// is closed.
func (q *controlQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.reqs = append(q.reqs, r)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *controlQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.reqs) == 0 {
		return request{}, false
	}
	r := q.reqs[0]
	q.reqs[0] = request{}
	if len(q.reqs) == 1 {
		q.reqs = q.reqs[:0]
	} else {
		q.reqs = q.reqs[1:]
	}
	return r, true
}

// Wait returns a channel that signals when requests may be available.
func (q *controlQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued requests.
func (q *controlQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reqs)
}

// Close refuses further requests and returns the ones still queued so
// their callers can be answered.
func (q *controlQueue) Close() []request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)
	rest := q.reqs
	q.reqs = nil
	return rest
}

// writableSet collects ids of channels whose connection became writable.
type writableSet struct {
	mu     sync.Mutex
	ids    map[string]struct{}
	signal chan struct{}
}

func newWritableSet() *writableSet {
	return &writableSet{
		ids:    make(map[string]struct{}),
		signal: make(chan struct{}, 1),
	}
}

func (s *writableSet) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// take empties the set.
func (s *writableSet) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.ids = make(map[string]struct{})
	return out
}

func (s *writableSet) wait() <-chan struct{} {
	return s.signal
}
