package worker

import "strconv"

// drawablePool is a fixed-capacity arena of drawables with a free list.
// Slots are reused; each reuse bumps the slot generation so stale handles
// stop resolving.
type drawablePool struct {
	slots []Drawable
	free  []int32
	live  int
}

func newDrawablePool(capacity int) *drawablePool {
	p := &drawablePool{
		slots: make([]Drawable, capacity),
		free:  make([]int32, capacity),
	}
	for i := range p.free {
		// pop from the end hands out slot 0 first
		p.free[i] = int32(capacity - 1 - i)
	}
	return p
}

// alloc returns a zeroed drawable with one reference, or nil when every
// slot is taken.
func (p *drawablePool) alloc() *Drawable {
	n := len(p.free)
	if n == 0 {
		return nil
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	d := &p.slots[idx]
	gen := d.id.Gen + 1
	*d = Drawable{}
	d.kind = kindDrawable
	d.id = DrawableID{Index: idx, Gen: gen}
	d.refs = 1
	d.live = true
	p.live++
	return d
}

func (p *drawablePool) release(d *Drawable) {
	if !d.live {
		fatalWith(ErrCodeDoubleRelease, map[string]string{"index": strconv.Itoa(int(d.id.Index))},
			"drawable slot freed twice")
	}
	gen := d.id
	*d = Drawable{}
	d.id = gen
	p.free = append(p.free, gen.Index)
	p.live--
}

// get resolves a handle, nil when the drawable was freed since.
func (p *drawablePool) get(id DrawableID) *Drawable {
	if id.Index < 0 || int(id.Index) >= len(p.slots) {
		return nil
	}
	d := &p.slots[id.Index]
	if !d.live || d.id.Gen != id.Gen {
		return nil
	}
	return d
}

func (p *drawablePool) capacity() int { return len(p.slots) }
