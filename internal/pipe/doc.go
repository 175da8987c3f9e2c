// Package pipe provides the per-channel ordered queue of outgoing items and
// the acknowledgement window that gates how far the sender may run ahead of
// the client.
//
// A Pipe is owned by the worker goroutine and is not safe for concurrent
// use. Items embed a Link, so queue operations never allocate and an item
// can be removed from the middle of the queue in constant time.
package pipe
