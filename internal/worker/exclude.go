package worker

import "github.com/roach88/redworker/internal/region"

// excludeRegion subtracts rgn from every item from start onwards in r,
// descending into containers and climbing back up until top is done.
// Items left empty are removed. When last is set it tracks the item the
// caller resumes at, and the walk of a ring stops there. candidate is the
// opaque drawable being inserted, offered as the next frame of every
// drawable it covers.
func (w *Worker) excludeRegion(r *ring, start treeItem, rgn *region.Region, last *treeItem, candidate *Drawable) {
	if start == nil {
		return
	}
	top := r
	now := start

	for {
		b := now.node()
		container := r.container
		pos := now

		if b.rgn.IsEmpty() {
			fatal(ErrCodeTreeCorrupt, "%s with an empty region in the tree", b.kind)
		}
		if rgn.Intersects(b.rgn) {
			w.excludeItem(now, rgn, &top, candidate)

			if b.rgn.IsEmpty() {
				if b.kind == kindShadow {
					fatal(ErrCodeTreeCorrupt, "shadow excluded to nothing")
				}
				pos = b.prev
				w.currentRemove(now)
				if last != nil && *last == now {
					*last = r.after(pos)
				}
			} else if c, ok := now.(*Container); ok && c.items.head != nil {
				r = &c.items
				now = c.items.head
				continue
			}

			if rgn.IsEmpty() {
				return
			}
		}

		for {
			if last == nil || pos == nil || *last != pos {
				if next := r.after(pos); next != nil {
					now = next
					break
				}
			}
			if r == top {
				return
			}
			pos = container
			container = container.parent()
			if container != nil {
				r = &container.items
			} else {
				r = top
			}
		}
	}
}

// excludeItem applies the exclusion of rgn to a single item.
func (w *Worker) excludeItem(it treeItem, rgn *region.Region, top **ring, candidate *Drawable) {
	b := it.node()
	and := region.Intersection(*rgn, b.rgn)
	if and.IsEmpty() {
		return
	}

	switch v := it.(type) {
	case *Drawable:
		if v.isOpaque() {
			rgn.Subtract(and)
		}
		if s := v.shadow; s != nil {
			v.rgn.Subtract(and)
			// The pixels of the owner just hidden no longer need their
			// source: whatever the shadow held there becomes excludable.
			and.Translate(s.dx, s.dy)
			s.rgn.Subtract(and)
			and.Intersect(s.onHold)
			if !and.IsEmpty() {
				s.onHold.Subtract(and)
				rgn.Union(and)
				if !containedBy(s, *top) {
					*top = s.ring
				}
			}
			return
		}
		if candidate != nil {
			w.streamMaintenance(candidate, v)
		}
		v.rgn.Subtract(and)

	case *Container:
		v.rgn.Subtract(and)
		if v.rgn.IsEmpty() {
			rgn.Subtract(and)
			if s := findShadow(v); s != nil {
				rgn.Union(s.onHold)
				if !containedBy(s, *top) {
					*top = s.ring
				}
			}
		}

	case *Shadow:
		rgn.Subtract(and)
		v.onHold.Union(and)
	}
}
