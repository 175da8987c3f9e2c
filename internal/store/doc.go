// Package store keeps the journal of worker sessions in SQLite.
//
// A session row is written when its first event arrives; every later event
// of the session is appended with the sequence number the worker assigned.
// Writes are idempotent: an event already stored under (session, seq) is
// ignored.
//
// Event details are stored as canonical JSON (see ir.MarshalCanonical)
// together with their digest, so two journals of the same run compare
// equal byte for byte.
//
// # Ordering
//
// Every query orders by seq. Wall-clock time is never stored, which keeps
// journals of deterministic runs identical.
package store
