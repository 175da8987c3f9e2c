package worker

import "github.com/roach88/redworker/internal/ir"

// CommandSource is the virtual GPU side of the worker. The worker pulls
// display and cursor commands from it and hands every command's resource
// back through Release once nothing references the command any more.
type CommandSource interface {
	// Next returns the next display command, if any.
	Next() (*ir.Command, bool)
	// NextCursor returns the next cursor command, if any.
	NextCursor() (*ir.Command, bool)
	// Release returns a command resource to the producer.
	Release(h ir.Handle)
	// RequestNotification arms a one-shot wake-up for new commands. It
	// reports false when commands arrived meanwhile and polling should go
	// on immediately.
	RequestNotification() bool
	// Notify is signalled when an armed notification fires.
	Notify() <-chan struct{}
}

// Conn is the transport of one channel. Writes never block: a conn that
// cannot take a whole message keeps it, returns ErrWouldBlock and later
// signals Writable, after which the worker calls Resume.
type Conn interface {
	WriteMessage(m *Message) error
	Resume() error
	Writable() <-chan struct{}
	Close() error
}
