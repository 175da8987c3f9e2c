package worker

import (
	"container/list"
	"time"

	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

// DrawableID is a generation-checked pool handle. A handle kept after its
// drawable was freed no longer resolves.
type DrawableID struct {
	Index int32
	Gen   uint32
}

// commandRef counts the holders of a command resource: the drawable built
// from it and every dictionary instance encoded from it. The resource goes
// back to the source when the count drops to zero.
type commandRef struct {
	handle ir.Handle
	refs   int
}

// depEntry links a drawable into the dependants list of a surface it reads.
type depEntry struct {
	surface *surface
	rect    region.Rect
	elem    *list.Element
}

// Drawable is one accepted draw command plus the bookkeeping that decides
// what reaches the client.
type Drawable struct {
	itemBase

	id   DrawableID
	refs int
	live bool

	draw    *ir.Draw
	cmd     *commandRef
	group   uint32
	surface *surface
	effect  ir.Effect
	created time.Time

	shadow        *Shadow
	containerRoot bool

	// targetRef is set while the drawable holds a reference on its target
	// surface; deps hold one each on the surfaces they read.
	targetRef  bool
	deps       [ir.MaxDeps]depEntry
	ndeps      int
	selfBitmap []byte

	streamable  bool
	framed      bool
	frames      int
	gradual     int
	lastGradual int
	graduality  Graduality
	stream      *Stream

	currentElem *list.Element
	surfaceElem *list.Element

	// items holds this drawable's draw item on each display channel.
	items []*drawItem
}

// ID returns the pool handle of the drawable.
func (d *Drawable) ID() DrawableID { return d.id }

// Refs returns the current reference count.
func (d *Drawable) Refs() int { return d.refs }

func (d *Drawable) isOpaque() bool {
	return d.effect == ir.EffectOpaque
}

func (d *Drawable) inTree() bool {
	return d.ring != nil
}

func (d *Drawable) independentOfSurfaces() bool {
	return d.ndeps == 0
}

// srcSize returns the source area size of a copy drawable.
func (d *Drawable) srcSize() (int32, int32) {
	return d.draw.SrcArea.Width(), d.draw.SrcArea.Height()
}

func (d *Drawable) topDown() bool {
	if d.draw.Src != nil && d.draw.Src.Bitmap != nil {
		return d.draw.Src.Bitmap.TopDown
	}
	return false
}

// itemFor returns the draw item of d queued or in flight on ch.
func (d *Drawable) itemFor(ch *Channel) *drawItem {
	for _, it := range d.items {
		if it.ch == ch {
			return it
		}
	}
	return nil
}

func (d *Drawable) dropItem(it *drawItem) {
	for i, cur := range d.items {
		if cur == it {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return
		}
	}
}

func sameGeometry(a, b *Drawable) bool {
	return a.draw.Type == b.draw.Type && a.draw.BBox == b.draw.BBox
}
