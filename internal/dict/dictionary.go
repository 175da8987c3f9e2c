package dict

import "sync"

// Instance is one encoded image inside a dictionary window.
type Instance struct {
	image   uint64
	size    int64
	owner   *Owner
	release func()
	freed   bool
}

// Image returns the image id of the instance.
func (in *Instance) Image() uint64 {
	return in.image
}

// Dictionary is a shared sliding window of encoded images.
type Dictionary struct {
	key    Key
	window int64
	refs   int // guarded by Registry.mu

	rw sync.RWMutex

	mu      sync.Mutex
	queue   []*Instance
	byImage map[uint64]int
	used    int64
	frozen  bool
}

// Snapshot is the migration state of a frozen dictionary.
type Snapshot struct {
	Key    Key
	Window int64
	Images []SnapshotImage
}

// SnapshotImage is one window entry of a Snapshot.
type SnapshotImage struct {
	ID   uint64
	Size int64
}

// Key returns the dictionary key.
func (d *Dictionary) Key() Key {
	return d.key
}

// Encode runs emit with the window locked, telling it whether image is
// already in the window so the encoder may emit a back reference. When emit
// succeeds the instance is recorded and release runs, on the owner's worker,
// once the instance leaves the window. When emit fails nothing is recorded
// and release never runs.
func (d *Dictionary) Encode(owner *Owner, image uint64, size int64, release func(), emit func(hit bool) error) (hit bool, err error) {
	d.rw.RLock()
	defer d.rw.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frozen {
		return false, ErrFrozen
	}
	hit = d.byImage[image] > 0
	if emit != nil {
		if err := emit(hit); err != nil {
			return hit, err
		}
	}
	d.push(&Instance{image: image, size: size, owner: owner, release: release})
	for d.used > d.window && len(d.queue) > 1 {
		d.evictOldest()
	}
	return hit, nil
}

func (d *Dictionary) contains(image uint64) bool {
	d.rw.RLock()
	defer d.rw.RUnlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byImage[image] > 0
}

// Used returns the total size of the window.
func (d *Dictionary) Used() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}

// Reset empties the window, queuing every instance on its owner.
func (d *Dictionary) Reset() {
	d.rw.Lock()
	defer d.rw.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) > 0 {
		d.evictOldest()
	}
}

// DetachOwner removes every instance owned by owner and queues them on it.
// Used when a channel disconnects.
func (d *Dictionary) DetachOwner(owner *Owner) {
	d.rw.Lock()
	defer d.rw.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.queue[:0]
	for _, in := range d.queue {
		if in.owner == owner {
			d.drop(in)
			continue
		}
		kept = append(kept, in)
	}
	for i := len(kept); i < len(d.queue); i++ {
		d.queue[i] = nil
	}
	d.queue = kept
}

// Freeze stops further encoding and returns the window for migration.
func (d *Dictionary) Freeze() Snapshot {
	d.rw.Lock()
	defer d.rw.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.frozen = true
	snap := Snapshot{Key: d.key, Window: d.window}
	for _, in := range d.queue {
		snap.Images = append(snap.Images, SnapshotImage{ID: in.image, Size: in.size})
	}
	return snap
}

func (d *Dictionary) push(in *Instance) {
	d.queue = append(d.queue, in)
	d.byImage[in.image]++
	d.used += in.size
}

func (d *Dictionary) evictOldest() {
	in := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.drop(in)
}

func (d *Dictionary) drop(in *Instance) {
	d.used -= in.size
	if d.byImage[in.image]--; d.byImage[in.image] <= 0 {
		delete(d.byImage, in.image)
	}
	if in.owner != nil {
		in.owner.enqueue(in)
	}
}
