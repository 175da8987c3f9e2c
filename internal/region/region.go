package region

import (
	"slices"
	"strings"
)

// Region is a set of pixels stored as y-x banded disjoint rectangles.
//
// Rectangles are sorted by (Y1, X1). Rectangles in the same band share Y1
// and Y2, bands never overlap vertically, spans inside a band never touch,
// and vertically adjacent bands with identical spans are merged. The zero
// value is the empty region.
//
// Region methods with pointer receivers mutate in place. Rectangle slices
// are never shared between regions, so copying a Region value requires
// Clone.
type Region struct {
	rects  []Rect
	bounds Rect
}

// Relation describes how two regions relate, as computed by Test.
type Relation uint8

const (
	// Shared means the regions have at least one pixel in common.
	Shared Relation = 1 << iota
	// LeftExclusive means the first region has pixels outside the second.
	LeftExclusive
	// RightExclusive means the second region has pixels outside the first.
	RightExclusive
)

// Has reports whether every bit of want is set in rel.
func (rel Relation) Has(want Relation) bool {
	return rel&want == want
}

// FromRect returns a region covering r.
func FromRect(r Rect) Region {
	if r.Empty() {
		return Region{}
	}
	return Region{rects: []Rect{r}, bounds: r}
}

// FromRects returns the union of the given rectangles. The rectangles may
// overlap.
func FromRects(rs ...Rect) Region {
	var out Region
	for _, r := range rs {
		out.UnionRect(r)
	}
	return out
}

// Clone returns an independent copy of r.
func (r Region) Clone() Region {
	return Region{rects: slices.Clone(r.rects), bounds: r.bounds}
}

// IsEmpty reports whether the region covers no pixels.
func (r Region) IsEmpty() bool {
	return len(r.rects) == 0
}

// Bounds returns the bounding box (the zero Rect when empty).
func (r Region) Bounds() Rect {
	return r.bounds
}

// Len returns the number of rectangles in the normalized representation.
func (r Region) Len() int {
	return len(r.rects)
}

// Rects returns a copy of the normalized rectangles.
func (r Region) Rects() []Rect {
	return slices.Clone(r.rects)
}

// Area returns the number of covered pixels.
func (r Region) Area() int64 {
	var a int64
	for _, rc := range r.rects {
		a += rc.Area()
	}
	return a
}

// Clear empties the region.
func (r *Region) Clear() {
	r.rects = nil
	r.bounds = Rect{}
}

// Set replaces the contents of r with a copy of o.
func (r *Region) Set(o Region) {
	r.rects = slices.Clone(o.rects)
	r.bounds = o.bounds
}

// Union adds o to r.
func (r *Region) Union(o Region) {
	if o.IsEmpty() {
		return
	}
	if r.IsEmpty() {
		r.Set(o)
		return
	}
	r.assign(combine(r.rects, o.rects, opUnion))
}

// UnionRect adds rc to r.
func (r *Region) UnionRect(rc Rect) {
	if rc.Empty() {
		return
	}
	r.Union(FromRect(rc))
}

// Intersect restricts r to the pixels it shares with o.
func (r *Region) Intersect(o Region) {
	if r.IsEmpty() || o.IsEmpty() || !r.bounds.Overlaps(o.bounds) {
		r.Clear()
		return
	}
	r.assign(combine(r.rects, o.rects, opIntersect))
}

// IntersectRect restricts r to rc.
func (r *Region) IntersectRect(rc Rect) {
	r.Intersect(FromRect(rc))
}

// Subtract removes the pixels of o from r.
func (r *Region) Subtract(o Region) {
	if r.IsEmpty() || o.IsEmpty() || !r.bounds.Overlaps(o.bounds) {
		return
	}
	r.assign(combine(r.rects, o.rects, opSubtract))
}

// SubtractRect removes rc from r.
func (r *Region) SubtractRect(rc Rect) {
	r.Subtract(FromRect(rc))
}

// Translate shifts every rectangle by (dx, dy).
func (r *Region) Translate(dx, dy int32) {
	if r.IsEmpty() {
		return
	}
	for i := range r.rects {
		r.rects[i] = r.rects[i].Translate(dx, dy)
	}
	r.bounds = r.bounds.Translate(dx, dy)
}

// Intersects reports whether r and o share a pixel.
func (r Region) Intersects(o Region) bool {
	if r.IsEmpty() || o.IsEmpty() || !r.bounds.Overlaps(o.bounds) {
		return false
	}
	return len(combine(r.rects, o.rects, opIntersect)) > 0
}

// IntersectsRect reports whether r shares a pixel with rc.
func (r Region) IntersectsRect(rc Rect) bool {
	return r.Intersects(FromRect(rc))
}

// Contains reports whether every pixel of o is in r.
func (r Region) Contains(o Region) bool {
	if o.IsEmpty() {
		return true
	}
	if !r.bounds.Contains(o.bounds) {
		return false
	}
	return len(combine(o.rects, r.rects, opSubtract)) == 0
}

// ContainsRect reports whether rc lies entirely inside r.
func (r Region) ContainsRect(rc Rect) bool {
	return r.Contains(FromRect(rc))
}

// Equal reports whether r and o cover the same pixels.
func (r Region) Equal(o Region) bool {
	return slices.Equal(r.rects, o.rects)
}

// Test computes the relation between a and b.
func Test(a, b Region) Relation {
	var rel Relation
	if a.Intersects(b) {
		rel |= Shared
	}
	if !b.Contains(a) {
		rel |= LeftExclusive
	}
	if !a.Contains(b) {
		rel |= RightExclusive
	}
	return rel
}

// Intersection returns a ∩ b without modifying either operand.
func Intersection(a, b Region) Region {
	out := a.Clone()
	out.Intersect(b)
	return out
}

// Difference returns a - b without modifying either operand.
func Difference(a, b Region) Region {
	out := a.Clone()
	out.Subtract(b)
	return out
}

// UnionOf returns a ∪ b without modifying either operand.
func UnionOf(a, b Region) Region {
	out := a.Clone()
	out.Union(b)
	return out
}

// String lists the rectangles, or "empty".
func (r Region) String() string {
	if r.IsEmpty() {
		return "empty"
	}
	parts := make([]string, len(r.rects))
	for i, rc := range r.rects {
		parts[i] = rc.String()
	}
	return strings.Join(parts, " ")
}

func (r *Region) assign(rects []Rect) {
	r.rects = rects
	r.bounds = Rect{}
	for _, rc := range rects {
		r.bounds = r.bounds.Bound(rc)
	}
}
