package worker

import (
	"fmt"

	"github.com/roach88/redworker/internal/pipe"
	"github.com/roach88/redworker/internal/region"
)

// CheckTree verifies the links of every live surface tree: ring
// membership, back pointers, counts, non-empty regions and containers with
// at least two children.
func (w *Worker) CheckTree() error {
	for _, s := range w.liveSurfaces() {
		if err := checkRing(&s.root); err != nil {
			return fmt.Errorf("surface %d: %w", s.id, err)
		}
	}
	return nil
}

func checkRing(r *ring) error {
	n := 0
	var prev treeItem
	for it := r.head; it != nil; it = it.node().next {
		b := it.node()
		if b.ring != r {
			return fmt.Errorf("%s linked into a foreign ring", b.kind)
		}
		if b.prev != prev {
			return fmt.Errorf("%s has a stale prev link", b.kind)
		}
		if b.rgn.IsEmpty() && b.kind != kindShadow {
			return fmt.Errorf("%s with an empty region", b.kind)
		}
		if c, ok := it.(*Container); ok {
			if c.items.n < 2 {
				return fmt.Errorf("container with %d children", c.items.n)
			}
			if err := checkRing(&c.items); err != nil {
				return err
			}
		}
		prev = it
		n++
	}
	if n != r.n {
		return fmt.Errorf("ring counts %d items, holds %d", r.n, n)
	}
	if r.tail != prev {
		return fmt.Errorf("ring tail is stale")
	}
	return nil
}

// CheckRefs verifies that every live drawable and active stream holds
// exactly one reference per holder.
func (w *Worker) CheckRefs() error {
	drawRefs := make(map[*Drawable]int)
	streamRefs := make(map[*Stream]int)
	count := func(it item) {
		switch v := it.(type) {
		case *drawItem:
			drawRefs[v.d]++
		case *upgradeItem:
			drawRefs[v.d]++
		case *streamClipItem:
			streamRefs[v.stream]++
		}
	}
	for _, ch := range w.channels {
		ch.pipe.Each(func(pi pipe.Item) { count(pi.(item)) })
		if ch.inflight != nil {
			count(ch.inflight)
		}
		for i := range ch.agents {
			if s := ch.agents[i].stream; s != nil {
				streamRefs[s]++
			}
		}
	}
	for _, s := range w.active {
		streamRefs[s]++
	}

	live := 0
	for i := range w.pool.slots {
		d := &w.pool.slots[i]
		if !d.live {
			continue
		}
		live++
		want := drawRefs[d]
		if d.inTree() {
			want++
		}
		if d.refs != want {
			return fmt.Errorf("drawable %d holds %d references, expected %d", d.id.Index, d.refs, want)
		}
		if want == 0 {
			return fmt.Errorf("drawable %d is alive without holders", d.id.Index)
		}
	}
	if live != w.pool.live {
		return fmt.Errorf("pool counts %d live drawables, found %d", w.pool.live, live)
	}
	for s, want := range streamRefs {
		if s.refs != want {
			return fmt.Errorf("stream %d holds %d references, expected %d", s.index, s.refs, want)
		}
	}
	return nil
}

// LeafRegions returns the regions of the drawables in a surface tree.
func (w *Worker) LeafRegions(id uint32) []region.Region {
	s := w.surfaces[id]
	if s == nil {
		return nil
	}
	var out []region.Region
	var walk func(r *ring)
	walk = func(r *ring) {
		for it := r.head; it != nil; it = it.node().next {
			switch v := it.(type) {
			case *Drawable:
				out = append(out, v.rgn.Clone())
			case *Container:
				walk(&v.items)
			}
		}
	}
	walk(&s.root)
	return out
}

// SurfaceRefs returns the reference count of a surface, -1 when the slot
// is empty.
func (w *Worker) SurfaceRefs(id uint32) int {
	if s := w.surfaces[id]; s != nil {
		return s.refs
	}
	return -1
}

// WindowGeneration returns the ack generation of a channel.
func (w *Worker) WindowGeneration(channel string) uint32 {
	if ch := w.channel(channel); ch != nil {
		return ch.window.Generation()
	}
	return 0
}

// StreamBitRate returns the bit-rate estimate of an active stream, 0 when
// the stream is not active.
func (w *Worker) StreamBitRate(index int) uint64 {
	for _, s := range w.active {
		if s.index == index {
			return s.bitRate
		}
	}
	return 0
}

// DefaultStreamBitRate is the estimate a stream starts with.
const DefaultStreamBitRate = streamDefaultBitRate
