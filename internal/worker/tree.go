package worker

import "github.com/roach88/redworker/internal/region"

type itemKind uint8

const (
	kindDrawable itemKind = iota + 1
	kindContainer
	kindShadow
)

func (k itemKind) String() string {
	switch k {
	case kindDrawable:
		return "drawable"
	case kindContainer:
		return "container"
	case kindShadow:
		return "shadow"
	default:
		return "unknown"
	}
}

// treeItem is a node of a surface's scene tree: *Drawable, *Container or
// *Shadow.
type treeItem interface {
	node() *itemBase
}

// itemBase holds the fields shared by every tree node. rgn is the part of
// the surface the node still accounts for.
type itemBase struct {
	kind       itemKind
	rgn        region.Region
	ring       *ring
	prev, next treeItem
}

func (b *itemBase) node() *itemBase { return b }

// parent returns the container holding the item, nil at top level.
func (b *itemBase) parent() *Container {
	if b.ring == nil {
		return nil
	}
	return b.ring.container
}

// ring is an ordered sibling list. head is the front: the most recently
// drawn, topmost item. A ring belongs either to a surface (top level) or to
// a Container.
type ring struct {
	head, tail treeItem
	n          int
	container  *Container
	surface    *surface
}

func (r *ring) empty() bool { return r.head == nil }

func (r *ring) pushFront(it treeItem) {
	b := it.node()
	b.ring = r
	b.prev = nil
	b.next = r.head
	if r.head != nil {
		r.head.node().prev = it
	} else {
		r.tail = it
	}
	r.head = it
	r.n++
}

// insertAfter places it directly behind pos. A nil pos means the front.
func (r *ring) insertAfter(pos, it treeItem) {
	if pos == nil {
		r.pushFront(it)
		return
	}
	p := pos.node()
	b := it.node()
	b.ring = r
	b.prev = pos
	b.next = p.next
	if p.next != nil {
		p.next.node().prev = it
	} else {
		r.tail = it
	}
	p.next = it
	r.n++
}

func (r *ring) remove(it treeItem) {
	b := it.node()
	if b.ring != r {
		fatal(ErrCodeTreeCorrupt, "removing a %s from a ring it is not linked into", b.kind)
	}
	if b.prev != nil {
		b.prev.node().next = b.next
	} else {
		r.head = b.next
	}
	if b.next != nil {
		b.next.node().prev = b.prev
	} else {
		r.tail = b.prev
	}
	b.prev, b.next, b.ring = nil, nil, nil
	r.n--
}

// after returns the item following pos, where a nil pos stands for the
// position before the head.
func (r *ring) after(pos treeItem) treeItem {
	if pos == nil {
		return r.head
	}
	return pos.node().next
}

// Container groups siblings so occlusion tests among them stay local. Its
// region covers its children.
type Container struct {
	itemBase
	items ring
}

// Shadow is the source area of a copy-bits drawable. It never occludes;
// pixels excluded through it are kept in onHold until the owner leaves.
type Shadow struct {
	itemBase
	onHold region.Region
	owner  *Drawable
	// dx, dy map owner coordinates to shadow coordinates.
	dx, dy int32
}

// containedBy reports whether it sits inside the subtree rooted at r.
func containedBy(it treeItem, r *ring) bool {
	for cur := it.node().ring; cur != nil; {
		if cur == r {
			return true
		}
		c := cur.container
		if c == nil {
			return false
		}
		cur = c.ring
	}
	return false
}

// findShadow returns the shadow of the oldest drawable under item.
func findShadow(it treeItem) *Shadow {
	for {
		switch v := it.(type) {
		case *Drawable:
			return v.shadow
		case *Container:
			if v.items.tail == nil {
				return nil
			}
			it = v.items.tail
		default:
			return nil
		}
	}
}

func isOpaqueItem(it treeItem) bool {
	switch v := it.(type) {
	case *Container:
		return true
	case *Drawable:
		return v.isOpaque()
	default:
		return false
	}
}
