package worker

import (
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

// addToTree inserts d into its surface's tree. It reports whether d was
// inserted; a false return means d was either merged into a duplicate or
// has nothing to draw.
func (w *Worker) addToTree(d *Drawable) bool {
	r := &d.surface.root
	if d.draw.Type == ir.DrawCopyBits {
		dx := d.draw.SrcPos.X - d.draw.BBox.X1
		dy := d.draw.SrcPos.Y - d.draw.BBox.Y1
		return w.addWithShadow(r, d, dx, dy)
	}
	return w.currentAdd(r, d)
}

// linkDrawable places d after pos in r (nil pos is the front) and takes
// the tree reference.
func (w *Worker) linkDrawable(d *Drawable, r *ring, pos treeItem) {
	r.insertAfter(pos, d)
	d.currentElem = w.current.PushFront(d)
	d.surfaceElem = d.surface.current.PushFront(d)
	d.refs++
}

// currentAdd walks r front to back resolving how d relates to every
// sibling it touches, then links d and excludes its opaque region from
// whatever lies beneath.
func (w *Worker) currentAdd(r *ring, d *Drawable) bool {
	var exclude region.Region
	var excludeBase treeItem
	now := r.head

	for now != nil {
		sib := now.node()
		if !d.rgn.Bounds().Overlaps(sib.rgn.Bounds()) {
			now = sib.next
			continue
		}
		rel := region.Test(d.rgn, sib.rgn)
		if !rel.Has(region.Shared) {
			now = sib.next
			continue
		}
		if sib.kind != kindShadow {
			equalRegions := !rel.Has(region.LeftExclusive) && !rel.Has(region.RightExclusive)
			if equalRegions && w.currentAddEqual(d, now) {
				return false
			}

			// d covers the sibling entirely: the sibling can go.
			if !rel.Has(region.RightExclusive) && d.isOpaque() {
				skip := excludeBase != nil && now == excludeBase
				shadow := findShadow(now)
				if shadow != nil {
					if excludeBase != nil {
						next := now
						w.excludeRegion(r, excludeBase, &exclude, &next, nil)
						if next != now {
							now = next
							excludeBase = nil
							continue
						}
					}
					exclude.Union(shadow.onHold)
				}
				prev := sib.prev
				w.currentRemove(now)
				now = r.after(prev)
				if shadow != nil || skip {
					excludeBase = now
				}
				continue
			}

			// d lies inside an opaque sibling: insert below it in a nested
			// ring so the occlusion test stays local.
			if !rel.Has(region.LeftExclusive) && isOpaqueItem(now) {
				if excludeBase != nil {
					w.excludeRegion(r, excludeBase, &exclude, nil, nil)
					exclude.Clear()
					excludeBase = nil
				}
				if c, ok := now.(*Container); ok {
					r = &c.items
					now = r.head
					continue
				}
				sd := now.(*Drawable)
				if !sd.containerRoot {
					c := w.newContainer(sd)
					r = &c.items
				}
			}
		}
		if excludeBase == nil {
			excludeBase = now
		}
		break
	}

	if d.isOpaque() {
		exclude.Union(d.rgn)
		w.excludeRegion(r, excludeBase, &exclude, nil, d)
		w.useStreamTrace(d)
		w.streamsUpdateVisibleRegion(d)
		w.linkDrawable(d, r, nil)
	} else {
		w.linkDrawable(d, r, nil)
		if d.surface.isPrimary() {
			w.detachStreamsBehind(d.rgn, d)
		}
	}
	return true
}

// currentAddEqual handles a sibling covering exactly the pixels of d. It
// reports true when d has been fully dealt with and must not be inserted
// by the caller.
func (w *Worker) currentAddEqual(d *Drawable, other treeItem) bool {
	od, ok := other.(*Drawable)
	if !ok {
		return false
	}
	if d.shadow != nil || od.shadow != nil || d.effect != od.effect {
		return false
	}

	switch d.effect {
	case ir.EffectOpaque:
		addAfter := od.stream != nil && d.independentOfSurfaces()
		w.streamMaintenance(d, od)
		w.linkDrawable(d, od.ring, od)
		od.refs++
		w.currentRemoveDrawable(od)
		if addAfter {
			w.pipesAddAfter(d, od)
		} else {
			w.pipesAdd(d)
		}
		w.pipesRemove(od)
		w.releaseDrawable(od)
		return true

	case ir.EffectRevertOnDup:
		if !d.draw.SameOutput(od.draw) {
			return false
		}
		od.refs++
		w.currentRemoveDrawable(od)
		// Channels still holding the first draw drop it; the others get
		// the second one, which reverts what they already showed.
		for _, ch := range w.displayChannels() {
			if it := od.itemFor(ch); it != nil && it.Queued() {
				continue
			}
			ch.pushDrawable(d, nil)
		}
		w.pipesRemove(od)
		w.releaseDrawable(od)
		return true

	case ir.EffectOpaqueBrush:
		if !sameGeometry(d, od) {
			return false
		}
		w.linkDrawable(d, od.ring, od)
		w.removeDrawable(od)
		w.pipesAdd(d)
		return true

	case ir.EffectNopOnDup:
		// the older drawable stays; only the new duplicate is dropped
		return d.draw.SameOutput(od.draw)
	}
	return false
}

// newContainer replaces d in its ring by a container holding d alone.
func (w *Worker) newContainer(d *Drawable) *Container {
	r := d.ring
	c := &Container{}
	c.kind = kindContainer
	c.rgn = d.rgn.Clone()
	c.items.container = c
	r.insertAfter(d, c)
	r.remove(d)
	c.items.pushFront(d)
	d.containerRoot = true
	w.stats.Containers++
	return c
}

// addWithShadow inserts a copy-bits drawable together with the shadow of
// its source area. A copy onto itself is a no-op and is dropped.
func (w *Worker) addWithShadow(r *ring, d *Drawable, dx, dy int32) bool {
	if dx == 0 && dy == 0 {
		return false
	}
	s := &Shadow{owner: d, dx: dx, dy: dy}
	s.kind = kindShadow
	s.rgn = d.rgn.Clone()
	s.rgn.Translate(dx, dy)
	d.shadow = s
	w.stats.Shadows++

	if d.surface.isPrimary() {
		w.detachStreamsBehind(s.rgn, nil)
	}
	r.pushFront(s)
	w.linkDrawable(d, r, nil)
	if d.isOpaque() {
		exclude := d.rgn.Clone()
		w.excludeRegion(r, s, &exclude, nil, nil)
		w.streamsUpdateVisibleRegion(d)
	} else if d.surface.isPrimary() {
		w.detachStreamsBehind(d.rgn, d)
	}
	return true
}
