package worker

import (
	"container/list"
	"log/slog"
	"strconv"

	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

// PrimarySurface is the id of the surface shown to clients.
const PrimarySurface uint32 = 0

// surface is one render target slot.
//
// refs counts the creation reference plus one per live drawable drawing
// to or reading from the surface. The slot is torn down when refs hits
// zero, which can only happen after a destroy dropped the creation
// reference.
type surface struct {
	id     uint32
	width  int32
	height int32
	stride int32
	format ir.Format
	refs   int
	// destroyed is set once the creation reference was dropped.
	destroyed bool

	root ring
	// current lists the drawables in the tree, front newest.
	current *list.List
	// dependants lists the depEntries of tree drawables elsewhere that
	// read this surface.
	dependants *list.List
	dirty      region.Region
}

func (s *surface) bounds() region.Rect {
	return region.R(0, 0, s.width, s.height)
}

func (s *surface) isPrimary() bool {
	return s.id == PrimarySurface
}

// SurfaceInfo describes a live surface.
type SurfaceInfo struct {
	ID     uint32
	Width  int32
	Height int32
	Stride int32
	Format ir.Format
	// Pixels holds packed RGBA rows in save reports, nil otherwise.
	Pixels []byte
}

func (w *Worker) surfaceSlot(id uint32) *surface {
	if int(id) >= len(w.surfaces) {
		fatalWith(ErrCodeBadSurface, map[string]string{"surface": strconv.FormatUint(uint64(id), 10)},
			"surface id out of range")
	}
	return w.surfaces[id]
}

// liveSurface returns the surface or aborts when it does not exist.
func (w *Worker) liveSurface(id uint32) *surface {
	s := w.surfaceSlot(id)
	if s == nil || s.destroyed {
		fatalWith(ErrCodeBadSurface, map[string]string{"surface": strconv.FormatUint(uint64(id), 10)},
			"no such surface")
	}
	return s
}

func (w *Worker) createSurface(cmd *ir.SurfaceCmd) {
	details := map[string]string{"surface": strconv.FormatUint(uint64(cmd.ID), 10)}
	if s := w.surfaceSlot(cmd.ID); s != nil {
		fatalWith(ErrCodeSurfaceExists, details, "surface slot is occupied")
	}
	if cmd.Format.Depth() == 0 {
		details["format"] = cmd.Format.String()
		fatalWith(ErrCodeBadDepth, details, "unsupported surface depth")
	}
	if cmd.Width <= 0 || cmd.Height <= 0 {
		fatalWith(ErrCodeBadGeometry, details, "empty surface %dx%d", cmd.Width, cmd.Height)
	}
	if err := w.canvas.CreateSurface(cmd.ID, cmd.Width, cmd.Height, cmd.Format, cmd.Data); err != nil {
		fatalWith(ErrCodeBadSurface, details, "canvas refused surface: %v", err)
	}
	s := &surface{
		id:         cmd.ID,
		width:      cmd.Width,
		height:     cmd.Height,
		stride:     cmd.Stride,
		format:     cmd.Format,
		refs:       1,
		current:    list.New(),
		dependants: list.New(),
	}
	s.root.surface = s
	w.surfaces[cmd.ID] = s

	slog.Info("surface created",
		"surface", s.id,
		"width", s.width,
		"height", s.height,
		"format", s.format.String(),
	)
	w.record(Event{Kind: EventSurfaceCreate, Surface: s.id, Detail: map[string]any{
		"width": s.width, "height": s.height, "format": s.format.String(),
	}})
	for _, ch := range w.displayChannels() {
		ch.push(newSurfaceCreateItem(s))
	}
}

// destroySurface flushes readers of the surface, clears its tree and drops
// the creation reference.
func (w *Worker) destroySurface(id uint32) {
	s := w.liveSurface(id)
	w.handleDependsOnTarget(s)
	w.currentClear(s)
	w.clearSurfaceFromPipes(s)
	if s.isPrimary() {
		w.stopAllStreams()
	}
	s.destroyed = true
	w.surfaceUnref(s)
}

func (w *Worker) surfaceRef(s *surface) {
	s.refs++
}

func (w *Worker) surfaceUnref(s *surface) {
	if s.refs <= 0 {
		fatalWith(ErrCodeDoubleRelease, map[string]string{"surface": strconv.FormatUint(uint64(s.id), 10)},
			"surface reference released twice")
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	if !s.root.empty() || s.current.Len() > 0 {
		fatalWith(ErrCodeSurfaceInUse, map[string]string{
			"surface":   strconv.FormatUint(uint64(s.id), 10),
			"drawables": strconv.Itoa(s.current.Len()),
		}, "surface torn down with drawables in its tree")
	}
	w.canvas.DestroySurface(s.id)
	w.surfaces[s.id] = nil

	slog.Info("surface destroyed", "surface", s.id)
	w.record(Event{Kind: EventSurfaceDestroy, Surface: s.id})
	for _, ch := range w.displayChannels() {
		ch.push(&surfaceDestroyItem{surface: s.id})
	}
}

// liveSurfaces returns the surfaces not yet destroyed, in id order.
func (w *Worker) liveSurfaces() []*surface {
	var out []*surface
	for _, s := range w.surfaces {
		if s != nil && !s.destroyed {
			out = append(out, s)
		}
	}
	return out
}

func (w *Worker) destroyAllSurfaces() {
	live := w.liveSurfaces()
	// readers first so no surface is flushed after its sources went away
	for _, s := range live {
		w.handleDependsOnTarget(s)
	}
	for i := len(live) - 1; i >= 0; i-- {
		w.destroySurface(live[i].id)
	}
}

func (w *Worker) surfaceInfo(s *surface) SurfaceInfo {
	return SurfaceInfo{ID: s.id, Width: s.width, Height: s.height, Stride: s.stride, Format: s.format}
}
