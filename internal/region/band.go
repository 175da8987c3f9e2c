package region

import "slices"

type setOp int

const (
	opUnion setOp = iota
	opIntersect
	opSubtract
)

func (op setOp) keep(inA, inB bool) bool {
	switch op {
	case opUnion:
		return inA || inB
	case opIntersect:
		return inA && inB
	default:
		return inA && !inB
	}
}

// span is a horizontal interval [x1, x2) inside one band.
type span struct {
	x1, x2 int32
}

// combine applies op to two normalized rectangle lists and returns a
// normalized result. The plane is cut into horizontal slabs at every Y edge
// of either operand; inside a slab each operand is a fixed list of spans.
func combine(a, b []Rect, op setOp) []Rect {
	ys := make([]int32, 0, 2*(len(a)+len(b)))
	for _, rc := range a {
		ys = append(ys, rc.Y1, rc.Y2)
	}
	for _, rc := range b {
		ys = append(ys, rc.Y1, rc.Y2)
	}
	slices.Sort(ys)
	ys = slices.Compact(ys)

	var (
		out       []Rect
		prev      []span
		prevStart int
		prevY2    int32
		ia, ib    int
		sa, sb    []span
	)
	for i := 0; i+1 < len(ys); i++ {
		y1, y2 := ys[i], ys[i+1]
		sa, ia = spansAt(a, ia, y1, sa[:0])
		sb, ib = spansAt(b, ib, y1, sb[:0])
		cur := mergeSpans(sa, sb, op)
		if len(cur) == 0 {
			prev = nil
			continue
		}
		if prev != nil && prevY2 == y1 && slices.Equal(prev, cur) {
			for j := prevStart; j < len(out); j++ {
				out[j].Y2 = y2
			}
			prevY2 = y2
			continue
		}
		prevStart = len(out)
		for _, s := range cur {
			out = append(out, Rect{X1: s.x1, Y1: y1, X2: s.x2, Y2: y2})
		}
		prev = cur
		prevY2 = y2
	}
	return out
}

// spansAt collects the spans of the band of rs covering row y. Bands are
// visited in order, so the scan resumes from start.
func spansAt(rs []Rect, start int, y int32, dst []span) ([]span, int) {
	for start < len(rs) && rs[start].Y2 <= y {
		start++
	}
	for i := start; i < len(rs) && rs[i].Y1 <= y; i++ {
		if rs[i].Y2 > y {
			dst = append(dst, span{rs[i].X1, rs[i].X2})
		}
	}
	return dst, start
}

func mergeSpans(a, b []span, op setOp) []span {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	xs := make([]int32, 0, 2*(len(a)+len(b)))
	for _, s := range a {
		xs = append(xs, s.x1, s.x2)
	}
	for _, s := range b {
		xs = append(xs, s.x1, s.x2)
	}
	slices.Sort(xs)
	xs = slices.Compact(xs)

	var out []span
	ia, ib := 0, 0
	for i := 0; i+1 < len(xs); i++ {
		x1, x2 := xs[i], xs[i+1]
		for ia < len(a) && a[ia].x2 <= x1 {
			ia++
		}
		for ib < len(b) && b[ib].x2 <= x1 {
			ib++
		}
		inA := ia < len(a) && a[ia].x1 <= x1
		inB := ib < len(b) && b[ib].x1 <= x1
		if !op.keep(inA, inB) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].x2 == x1 {
			out[n-1].x2 = x2
			continue
		}
		out = append(out, span{x1, x2})
	}
	return out
}
