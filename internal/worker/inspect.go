package worker

import (
	"fmt"
	"strings"
)

// Snapshot is a read-only view of worker state, taken on the worker
// goroutine.
type Snapshot struct {
	Running       bool
	LiveDrawables int
	PoolCapacity  int
	TreeDrawables int
	ActiveStreams []int
	Surfaces      []SurfaceInfo
	Channels      []ChannelState
	Stats         Stats
}

// Snapshot returns the current state.
func (w *Worker) Snapshot() Snapshot {
	snap := Snapshot{
		Running:       w.running,
		LiveDrawables: w.pool.live,
		PoolCapacity:  w.pool.capacity(),
		TreeDrawables: w.current.Len(),
		Stats:         w.stats.clone(),
	}
	for _, s := range w.active {
		snap.ActiveStreams = append(snap.ActiveStreams, s.index)
	}
	for _, s := range w.liveSurfaces() {
		snap.Surfaces = append(snap.Surfaces, w.surfaceInfo(s))
	}
	for _, ch := range w.channels {
		snap.Channels = append(snap.Channels, ch.state())
	}
	return snap
}

// DumpTree renders the scene tree of a surface, one node per line,
// topmost first.
func (w *Worker) DumpTree(id uint32) string {
	if int(id) >= len(w.surfaces) || w.surfaces[id] == nil {
		return ""
	}
	s := w.surfaces[id]
	var b strings.Builder
	fmt.Fprintf(&b, "surface %d %dx%d\n", s.id, s.width, s.height)
	dumpRing(&b, &s.root, 1)
	return b.String()
}

func dumpRing(b *strings.Builder, r *ring, depth int) {
	indent := strings.Repeat("  ", depth)
	for it := r.head; it != nil; it = it.node().next {
		switch v := it.(type) {
		case *Drawable:
			fmt.Fprintf(b, "%sdrawable %d %s %s rgn=%s", indent, v.id.Index, v.draw.Type, v.effect, v.rgn)
			if v.stream != nil {
				fmt.Fprintf(b, " stream=%d", v.stream.index)
			}
			if v.shadow != nil {
				b.WriteString(" shadowed")
			}
			b.WriteByte('\n')
		case *Container:
			fmt.Fprintf(b, "%scontainer rgn=%s\n", indent, v.rgn)
			dumpRing(b, &v.items, depth+1)
		case *Shadow:
			fmt.Fprintf(b, "%sshadow of %d rgn=%s\n", indent, v.owner.id.Index, v.rgn)
		}
	}
}
