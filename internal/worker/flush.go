package worker

import (
	"log/slog"

	"github.com/roach88/redworker/internal/region"
)

// updateArea renders and removes, oldest first, every drawable of s up to
// the newest one touching area. With till set only drawables older than
// till are considered.
func (w *Worker) updateArea(s *surface, area region.Rect, till *Drawable) {
	rgn := region.FromRect(area)
	start := s.current.Front()
	if till != nil && till.surfaceElem != nil && till.surface == s {
		start = till.surfaceElem.Next()
	}
	var last *Drawable
	for e := start; e != nil; e = e.Next() {
		d := e.Value.(*Drawable)
		if d.rgn.Intersects(rgn) {
			last = d
			break
		}
	}
	if last == nil {
		return
	}

	// Rendering reads source surfaces, which may flush last out of the
	// tree from underneath this loop.
	last.refs++
	for last.inTree() {
		now := s.current.Back().Value.(*Drawable)
		w.flushDrawable(now)
		if now == last {
			break
		}
	}
	w.releaseDrawable(last)
	w.stats.Flushes++
}

// flushDrawable takes d out of the tree and renders it. Pipe items of d
// stay queued.
func (w *Worker) flushDrawable(d *Drawable) {
	d.refs++
	w.currentRemoveDrawable(d)
	w.cleanupContainers()
	w.drawDrawable(d)
	w.releaseDrawable(d)
}

// drawDrawable renders d after bringing its source areas up to date.
func (w *Worker) drawDrawable(d *Drawable) {
	for i := 0; i < d.ndeps; i++ {
		dep := d.deps[i]
		if dep.surface != nil && dep.surface != d.surface {
			w.updateArea(dep.surface, dep.rect, nil)
		}
	}
	if err := w.canvas.Render(d.draw); err != nil {
		slog.Warn("render failed",
			"surface", d.surface.id,
			"type", d.draw.Type.String(),
			"error", err,
		)
		return
	}
	d.surface.dirty.Union(d.draw.ClipRegion())
	w.stats.Rendered++
}

// freeOneDrawable flushes the oldest drawable of the worker. It reports
// false when no drawable is in any tree.
func (w *Worker) freeOneDrawable() bool {
	e := w.current.Back()
	if e == nil {
		return false
	}
	w.flushDrawable(e.Value.(*Drawable))
	w.stats.Reclaims++
	return true
}

// flushSurface renders the whole tree of s into the canvas.
func (w *Worker) flushSurface(s *surface) {
	w.updateArea(s, s.bounds(), nil)
	w.currentClear(s)
}

// currentClear drops the whole tree of s without rendering it.
func (w *Worker) currentClear(s *surface) {
	for s.root.head != nil {
		if sh, ok := s.root.head.(*Shadow); ok {
			w.currentRemove(sh.owner)
			continue
		}
		w.currentRemove(s.root.head)
	}
	w.cleanupContainers()
}

// flushOldest renders the older half of the live drawables.
func (w *Worker) flushOldest() int {
	n := w.current.Len() / 2
	for i := 0; i < n && w.freeOneDrawable(); i++ {
	}
	return n
}
