package dict

import "sync"

// Owner is the per-channel side of a dictionary: it collects instances
// pushed out of a window by any channel and releases them when its worker
// calls Drain.
type Owner struct {
	mu      sync.Mutex
	pending []*Instance
}

// NewOwner returns an owner with an empty queue.
func NewOwner() *Owner {
	return &Owner{}
}

func (o *Owner) enqueue(in *Instance) {
	o.mu.Lock()
	o.pending = append(o.pending, in)
	o.mu.Unlock()
}

func (o *Owner) queued() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Drain runs the release callback of every queued instance on the calling
// goroutine and returns how many were released.
func (o *Owner) Drain() int {
	o.mu.Lock()
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()

	for _, in := range pending {
		if in.freed {
			continue
		}
		in.freed = true
		if in.release != nil {
			in.release()
		}
	}
	return len(pending)
}
