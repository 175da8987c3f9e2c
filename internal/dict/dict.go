// Package dict implements the process-wide registry of shared compression
// dictionaries.
//
// A dictionary is shared by every display channel of one client, across
// workers, and records which images are inside its sliding window. Each
// image instance is owned by the channel that encoded it; when another
// channel's encode pushes the instance out of the window, the instance is
// queued on its owner and released later by the owner's worker.
//
// Lock granularity:
//   - Registry.mu guards registry membership and dictionary refcounts
//   - Dictionary.rw is held shared by encoders and exclusively by window
//     resets, owner detach and migration freeze
//   - Dictionary.mu guards the window itself between concurrent encoders
//   - Owner.mu guards an owner's deferred-release queue
package dict

import (
	"errors"
	"sync"
)

// ErrFrozen is returned when encoding into a dictionary frozen for
// migration.
var ErrFrozen = errors.New("dictionary is frozen")

// Key identifies a dictionary: the client it belongs to and the id the
// client chose for it.
type Key struct {
	Client string
	ID     uint8
}

// Registry holds the live dictionaries. It is created once per process and
// injected into every worker.
type Registry struct {
	mu    sync.Mutex
	dicts map[Key]*Dictionary
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{dicts: make(map[Key]*Dictionary)}
}

// Acquire returns the dictionary for key, creating it with the given window
// size when absent. created reports whether a new dictionary was made;
// an existing dictionary keeps its window size.
func (r *Registry) Acquire(key Key, window int64) (d *Dictionary, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.dicts[key]; ok {
		d.refs++
		return d, false
	}
	d = &Dictionary{
		key:     key,
		window:  window,
		refs:    1,
		byImage: make(map[uint64]int),
	}
	r.dicts[key] = d
	return d, true
}

// Restore acquires the dictionary for key and seeds a new one from a
// migration snapshot. Seeded images have no owner and are never released
// through one.
func (r *Registry) Restore(snap Snapshot) *Dictionary {
	d, created := r.Acquire(snap.Key, snap.Window)
	if !created {
		return d
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, img := range snap.Images {
		d.push(&Instance{image: img.ID, size: img.Size})
	}
	return d
}

// Release drops one reference. The last reference removes the dictionary
// and releases every instance still in its window.
func (r *Registry) Release(d *Dictionary) {
	r.mu.Lock()
	d.refs--
	last := d.refs == 0
	if last {
		delete(r.dicts, d.key)
	}
	r.mu.Unlock()

	if last {
		d.Reset()
	}
}

// Len returns the number of live dictionaries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dicts)
}

// Refs returns the reference count of the dictionary for key, zero when
// absent.
func (r *Registry) Refs(key Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.dicts[key]; ok {
		return d.refs
	}
	return 0
}
