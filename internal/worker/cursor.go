package worker

import (
	"github.com/roach88/redworker/internal/ir"
)

// cursorState is the cursor as the client should currently see it. cmd
// backs shape and is held by the state and by every item carrying it.
type cursorState struct {
	pos            ir.Point
	visible        bool
	shape          *ir.CursorShape
	cmd            *commandRef
	trailLength    uint16
	trailFrequency uint16
}

// processCursor applies a cursor command and forwards it to every cursor
// channel.
func (w *Worker) processCursor(cmd *ir.Command) {
	c := cmd.Cursor
	if c == nil {
		fatal(ErrCodeBadCommand, "cursor command without payload")
	}
	ref := &commandRef{handle: cmd.Handle, refs: 1}
	keep := false

	switch c.Op {
	case ir.CursorSet:
		if c.Shape == nil || c.Shape.Width <= 0 || c.Shape.Height <= 0 {
			fatal(ErrCodeBadCommand, "cursor set without a valid shape")
		}
		if c.Shape.ID == 0 {
			c.Shape.ID = ir.CursorID(c.Shape)
		}
		if old := w.cursor.cmd; old != nil {
			w.releaseCommand(old)
		}
		w.cursor.shape = c.Shape
		w.cursor.cmd = ref
		w.cursor.pos = c.Pos
		w.cursor.visible = c.Visible
		keep = true
	case ir.CursorMove:
		w.cursor.pos = c.Pos
		w.cursor.visible = true
	case ir.CursorHide:
		w.cursor.visible = false
	case ir.CursorTrail:
		w.cursor.trailLength = c.TrailLength
		w.cursor.trailFrequency = c.TrailFrequency
	default:
		fatal(ErrCodeBadCommand, "unknown cursor operation %d", int(c.Op))
	}

	state := w.cursor
	state.cmd = nil
	for _, ch := range w.cursorChannels() {
		w.retainCommand(ref)
		ch.push(&cursorItem{cmd: ref, op: c.Op, state: state})
	}
	if !keep {
		w.releaseCommand(ref)
	}
	w.stats.CursorCommands++
}

// resetCursor forgets the cursor and tells cursor channels to do the same.
func (w *Worker) resetCursor() {
	if w.cursor.cmd != nil {
		w.releaseCommand(w.cursor.cmd)
	}
	w.cursor = cursorState{}
	for _, ch := range w.cursorChannels() {
		ch.cursors.Reset(cursorCacheSize)
		ch.push(&verbItem{verb: MsgCursorReset})
	}
}

func (w *Worker) pushCursorInit(ch *Channel) {
	state := w.cursor
	if state.cmd != nil {
		w.retainCommand(state.cmd)
	}
	ch.push(&cursorInitItem{state: state})
}

// cursorShapeData returns the shape as sent on ch, by reference when the
// client holds it.
func (ch *Channel) cursorShapeData(s *ir.CursorShape) *CursorShapeData {
	if s == nil {
		return nil
	}
	if ch.cursors.TryHit(s.ID) {
		return &CursorShapeData{ID: s.ID, Cached: true}
	}
	data := &CursorShapeData{
		ID:     s.ID,
		Width:  s.Width,
		Height: s.Height,
		HotX:   s.HotX,
		HotY:   s.HotY,
		Data:   s.Data,
	}
	evicted, ok := ch.cursors.Insert(s.ID, 1)
	data.CacheMe = ok
	for _, id := range evicted {
		ch.push(&invalOneItem{cache: ch.cursors.Name(), id: id})
	}
	return data
}
