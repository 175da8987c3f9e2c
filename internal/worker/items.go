package worker

import (
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/pipe"
	"github.com/roach88/redworker/internal/region"
)

// ItemKind names the kinds of pipe items.
type ItemKind int

const (
	ItemDraw ItemKind = iota + 1
	ItemImage
	ItemCursor
	ItemCursorInit
	ItemStreamCreate
	ItemStreamClip
	ItemStreamDestroy
	ItemUpgrade
	ItemInvalOne
	ItemInvalAll
	ItemSurfaceCreate
	ItemSurfaceDestroy
	ItemVerb
	ItemSetAck
	ItemMigrate
)

var itemNames = map[ItemKind]string{
	ItemDraw:           "draw",
	ItemImage:          "image",
	ItemCursor:         "cursor",
	ItemCursorInit:     "cursor_init",
	ItemStreamCreate:   "stream_create",
	ItemStreamClip:     "stream_clip",
	ItemStreamDestroy:  "stream_destroy",
	ItemUpgrade:        "upgrade",
	ItemInvalOne:       "inval_one",
	ItemInvalAll:       "inval_all",
	ItemSurfaceCreate:  "surface_create",
	ItemSurfaceDestroy: "surface_destroy",
	ItemVerb:           "verb",
	ItemSetAck:         "set_ack",
	ItemMigrate:        "migrate",
}

func (k ItemKind) String() string {
	if n, ok := itemNames[k]; ok {
		return n
	}
	return "unknown"
}

// item is a queued pipe entry. release is its single exit path: it runs
// once, after the item was sent or when the pipe is cleared.
type item interface {
	pipe.Item
	kind() ItemKind
	release(w *Worker)
}

type drawItem struct {
	pipe.Link
	ch *Channel
	d  *Drawable
}

func (*drawItem) kind() ItemKind { return ItemDraw }

func (it *drawItem) release(w *Worker) {
	it.d.dropItem(it)
	w.releaseDrawable(it.d)
}

// upgradeItem resends the last frame of a stream as a plain draw clipped
// to the frame's visible region.
type upgradeItem struct {
	pipe.Link
	d     *Drawable
	rects []region.Rect
}

func newUpgradeItem(w *Worker, d *Drawable) *upgradeItem {
	d.refs++
	w.stats.Upgrades++
	return &upgradeItem{d: d, rects: d.rgn.Rects()}
}

func (*upgradeItem) kind() ItemKind { return ItemUpgrade }

func (it *upgradeItem) release(w *Worker) {
	w.releaseDrawable(it.d)
	it.rects = nil
}

// imageItem sends pixels read back from a surface.
type imageItem struct {
	pipe.Link
	surface uint32
	rect    region.Rect
	pixels  []byte
}

func (*imageItem) kind() ItemKind { return ItemImage }

func (it *imageItem) release(*Worker) {
	it.pixels = nil
}

type streamCreateItem struct {
	pipe.Link
	agent *streamAgent
}

func (*streamCreateItem) kind() ItemKind { return ItemStreamCreate }

// release is a no-op: the agent holds the stream until its destroy item.
func (*streamCreateItem) release(*Worker) {}

type streamClipItem struct {
	pipe.Link
	agent  *streamAgent
	stream *Stream
	rects  []region.Rect
}

func (*streamClipItem) kind() ItemKind { return ItemStreamClip }

func (it *streamClipItem) release(w *Worker) {
	w.streamUnref(it.stream)
	it.rects = nil
}

type streamDestroyItem struct {
	pipe.Link
	agent *streamAgent
}

func (*streamDestroyItem) kind() ItemKind { return ItemStreamDestroy }

// release drops the agent's stream reference.
func (it *streamDestroyItem) release(w *Worker) {
	if s := it.agent.stream; s != nil {
		it.agent.stream = nil
		w.streamUnref(s)
	}
}

type invalOneItem struct {
	pipe.Link
	cache string
	id    uint64
}

func (*invalOneItem) kind() ItemKind { return ItemInvalOne }
func (*invalOneItem) release(*Worker) {}

type invalAllItem struct {
	pipe.Link
	cache string
}

func (*invalAllItem) kind() ItemKind { return ItemInvalAll }
func (*invalAllItem) release(*Worker) {}

type surfaceCreateItem struct {
	pipe.Link
	info SurfaceInfo
}

func newSurfaceCreateItem(s *surface) *surfaceCreateItem {
	return &surfaceCreateItem{info: SurfaceInfo{ID: s.id, Width: s.width, Height: s.height, Stride: s.stride, Format: s.format}}
}

func (*surfaceCreateItem) kind() ItemKind { return ItemSurfaceCreate }
func (*surfaceCreateItem) release(*Worker) {}

type surfaceDestroyItem struct {
	pipe.Link
	surface uint32
}

func (*surfaceDestroyItem) kind() ItemKind { return ItemSurfaceDestroy }
func (*surfaceDestroyItem) release(*Worker) {}

// verbItem is a message without body.
type verbItem struct {
	pipe.Link
	verb MessageType
}

func (*verbItem) kind() ItemKind { return ItemVerb }
func (*verbItem) release(*Worker) {}

type setAckItem struct {
	pipe.Link
}

func (*setAckItem) kind() ItemKind { return ItemSetAck }
func (*setAckItem) release(*Worker) {}

type migrateItem struct {
	pipe.Link
}

func (*migrateItem) kind() ItemKind { return ItemMigrate }
func (*migrateItem) release(*Worker) {}

// cursorItem carries one cursor command. It holds the command resource.
type cursorItem struct {
	pipe.Link
	cmd   *commandRef
	op    ir.CursorOp
	state cursorState
}

func (*cursorItem) kind() ItemKind { return ItemCursor }

func (it *cursorItem) release(w *Worker) {
	if it.cmd != nil {
		w.releaseCommand(it.cmd)
		it.cmd = nil
	}
}

// cursorInitItem sends the whole cursor state to a new cursor channel.
type cursorInitItem struct {
	pipe.Link
	state cursorState
}

func (*cursorInitItem) kind() ItemKind { return ItemCursorInit }

func (it *cursorInitItem) release(w *Worker) {
	if it.state.cmd != nil {
		w.releaseCommand(it.state.cmd)
		it.state.cmd = nil
	}
}
