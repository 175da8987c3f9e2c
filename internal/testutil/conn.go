package testutil

import (
	"errors"
	"sync"

	"github.com/roach88/redworker/internal/worker"
)

// ErrConnClosed is returned by writes to a closed RecordingConn.
var ErrConnClosed = errors.New("testutil: connection closed")

// RecordingConn is a channel transport that keeps every written message.
// In blocking mode a write is accepted only partly: the message is held
// back and the write reports worker.ErrWouldBlock until blocking is
// switched off again.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingConn struct {
	mu       sync.Mutex
	messages []*worker.Message
	blocking bool
	pending  *worker.Message
	fail     error
	closed   bool
	writable chan struct{}
}

// NewRecordingConn creates a connection accepting every write.
func NewRecordingConn() *RecordingConn {
	return &RecordingConn{writable: make(chan struct{}, 1)}
}

// WriteMessage implements worker.Conn.
func (c *RecordingConn) WriteMessage(m *worker.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrConnClosed
	case c.fail != nil:
		return c.fail
	case c.blocking:
		c.pending = m
		return worker.ErrWouldBlock
	}
	c.messages = append(c.messages, m)
	return nil
}

// Resume implements worker.Conn.
func (c *RecordingConn) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	if c.blocking {
		return worker.ErrWouldBlock
	}
	c.messages = append(c.messages, c.pending)
	c.pending = nil
	return nil
}

// Writable implements worker.Conn.
func (c *RecordingConn) Writable() <-chan struct{} {
	return c.writable
}

// Close implements worker.Conn.
func (c *RecordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// SetBlocking switches blocking mode. Leaving it with a held message
// signals writability.
func (c *RecordingConn) SetBlocking(blocking bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocking = blocking
	if !blocking && c.pending != nil {
		select {
		case c.writable <- struct{}{}:
		default:
		}
	}
}

// FailWith makes every later write fail with err.
func (c *RecordingConn) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

// Messages returns the completely written messages.
func (c *RecordingConn) Messages() []*worker.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*worker.Message(nil), c.messages...)
}

// Types returns the types of the written messages.
func (c *RecordingConn) Types() []worker.MessageType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]worker.MessageType, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Type
	}
	return out
}

// Count returns how many messages of type t were written.
func (c *RecordingConn) Count(t worker.MessageType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if m.Type == t {
			n++
		}
	}
	return n
}

// Held reports whether a partly written message is pending.
func (c *RecordingConn) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Closed reports whether the worker closed the connection.
func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Reset forgets the written messages.
func (c *RecordingConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
