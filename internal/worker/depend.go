package worker

import (
	"log/slog"
	"strconv"

	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

// processDraw turns a draw command into a drawable and inserts it.
func (w *Worker) processDraw(cmd *ir.Command) {
	dr := cmd.Draw
	if dr == nil {
		fatal(ErrCodeBadCommand, "draw command without payload")
	}
	if err := dr.Validate(); err != nil {
		fatal(ErrCodeBadCommand, "invalid draw: %v", err)
	}
	target := w.liveSurface(dr.Surface)
	if !target.bounds().Contains(dr.BBox) {
		fatalWith(ErrCodeBadGeometry, map[string]string{
			"surface": strconv.FormatUint(uint64(target.id), 10),
			"bbox":    dr.BBox.String(),
		}, "draw outside its surface")
	}
	for _, dep := range dr.Deps {
		src := w.liveSurface(dep.Surface)
		if !src.bounds().Contains(dep.Rect) {
			fatalWith(ErrCodeBadGeometry, map[string]string{
				"surface": strconv.FormatUint(uint64(src.id), 10),
				"rect":    dep.Rect.String(),
			}, "draw reads outside a source surface")
		}
	}
	if dr.SelfBitmap && !target.bounds().Contains(dr.SelfArea) {
		fatalWith(ErrCodeBadGeometry, map[string]string{"area": dr.SelfArea.String()},
			"self bitmap area outside the surface")
	}

	d := w.allocDrawable()
	d.draw = dr
	d.cmd = &commandRef{handle: cmd.Handle, refs: 1}
	d.group = cmd.Group
	d.surface = target
	d.effect = dr.Effect
	d.created = w.clock.Now()
	w.surfaceRef(target)
	d.targetRef = true
	for i, dep := range dr.Deps {
		src := w.surfaces[dep.Surface]
		w.surfaceRef(src)
		d.deps[i] = depEntry{surface: src, rect: dep.Rect}
		d.ndeps++
	}
	d.rgn = dr.ClipRegion()
	w.stats.Draws++

	if d.rgn.IsEmpty() {
		w.releaseDrawable(d)
		return
	}
	if dr.SelfBitmap {
		w.handleSelfBitmap(d)
	}
	w.handleDependsOnTarget(target)
	w.addDependencies(d)
	w.updateStreamable(d)

	if w.addToTree(d) {
		w.pipesAdd(d)
	}
	w.releaseDrawable(d)
	w.cleanupContainers()
}

// allocDrawable takes a pool slot, flushing the oldest drawables until one
// frees up.
func (w *Worker) allocDrawable() *Drawable {
	for {
		if d := w.pool.alloc(); d != nil {
			return d
		}
		if !w.freeOneDrawable() {
			fatalWith(ErrCodePoolExhausted, map[string]string{
				"capacity": strconv.Itoa(w.pool.capacity()),
				"live":     strconv.Itoa(w.pool.live),
			}, "no drawable left to reclaim; every live drawable is held by a pipe")
		}
	}
}

// addDependencies registers d with every other surface it reads.
func (w *Worker) addDependencies(d *Drawable) {
	for i := 0; i < d.ndeps; i++ {
		dep := &d.deps[i]
		if dep.surface == d.surface {
			continue
		}
		dep.elem = dep.surface.dependants.PushBack(d)
		if dep.surface.isPrimary() {
			w.detachStreamsBehind(region.FromRect(dep.rect), nil)
		}
	}
}

// handleDependsOnTarget renders every drawable elsewhere that still reads
// s, before s is drawn to or destroyed.
func (w *Worker) handleDependsOnTarget(s *surface) {
	for s.dependants.Len() > 0 {
		d := s.dependants.Front().Value.(*Drawable)
		w.updateArea(d.surface, d.draw.BBox, nil)
		if d.inTree() {
			w.flushDrawable(d)
		}
	}
}

// handleSelfBitmap captures the area the drawable reads from its own
// target before anything covers it.
func (w *Worker) handleSelfBitmap(d *Drawable) {
	area := d.draw.SelfArea
	w.updateArea(d.surface, area, nil)
	pixels, err := w.canvas.ReadPixels(d.surface.id, area)
	if err != nil {
		slog.Warn("self bitmap read failed",
			"surface", d.surface.id,
			"area", area.String(),
			"error", err,
		)
		return
	}
	d.selfBitmap = pixels
}
