package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/redworker/internal/worker"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent creates an event with minimal required fields.
func createTestEvent(session string, seq uint64, kind worker.EventKind) worker.Event {
	return worker.Event{
		Session: session,
		Seq:     seq,
		Kind:    kind,
	}
}
