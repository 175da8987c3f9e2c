// Package region implements the rectangle and region algebra used by the
// scene tree for occlusion, damage accumulation and stream clipping.
//
// A Region is a y-x banded set of disjoint rectangles. Every mutation
// re-normalizes the representation, so two regions covering the same pixels
// always hold the same rectangle list and can be compared directly.
package region

import "fmt"

// Rect is a half-open rectangle: it covers pixels with X1 <= x < X2 and
// Y1 <= y < Y2. A rectangle with X1 >= X2 or Y1 >= Y2 is empty.
type Rect struct {
	X1, Y1, X2, Y2 int32
}

// R is shorthand for Rect{x1, y1, x2, y2}.
func R(x1, y1, x2, y2 int32) Rect {
	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// XYWH builds a rectangle from an origin and a size.
func XYWH(x, y, w, h int32) Rect {
	return Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.X1 >= r.X2 || r.Y1 >= r.Y2
}

// Width returns the rectangle width, zero when empty.
func (r Rect) Width() int32 {
	if r.X2 <= r.X1 {
		return 0
	}
	return r.X2 - r.X1
}

// Height returns the rectangle height, zero when empty.
func (r Rect) Height() int32 {
	if r.Y2 <= r.Y1 {
		return 0
	}
	return r.Y2 - r.Y1
}

// Area returns the number of covered pixels.
func (r Rect) Area() int64 {
	return int64(r.Width()) * int64(r.Height())
}

// Intersect returns the common part of r and o (possibly empty).
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// Overlaps reports whether r and o share at least one pixel.
func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).Empty()
}

// Bound returns the smallest rectangle containing both r and o.
// Empty operands are ignored.
func (r Rect) Bound(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		X1: min(r.X1, o.X1),
		Y1: min(r.Y1, o.Y1),
		X2: max(r.X2, o.X2),
		Y2: max(r.Y2, o.Y2),
	}
}

// Contains reports whether o lies entirely inside r. The empty rectangle is
// contained in every rectangle.
func (r Rect) Contains(o Rect) bool {
	if o.Empty() {
		return true
	}
	return r.X1 <= o.X1 && r.Y1 <= o.Y1 && r.X2 >= o.X2 && r.Y2 >= o.Y2
}

// Translate returns r shifted by (dx, dy).
func (r Rect) Translate(dx, dy int32) Rect {
	return Rect{X1: r.X1 + dx, Y1: r.Y1 + dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
}

// String formats the rectangle as "(x1,y1)-(x2,y2)".
func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}
