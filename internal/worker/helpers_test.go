package worker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/redworker/internal/canvas"
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
	"github.com/roach88/redworker/internal/testutil"
	"github.com/roach88/redworker/internal/worker"
)

const surfaceSize = 256

// rig holds a started worker with a 256x256 primary surface and one
// registered memory slot.
type rig struct {
	t      *testing.T
	src    *testutil.FakeSource
	clock  *testutil.ManualClock
	canvas *canvas.Soft
	w      *worker.Worker
}

func newRig(t *testing.T, opts ...worker.Option) *rig {
	t.Helper()
	r := &rig{
		t:      t,
		src:    testutil.NewFakeSource(),
		clock:  testutil.NewManualClock(time.Time{}),
		canvas: canvas.NewSoft(),
	}
	base := []worker.Option{
		worker.WithClock(r.clock),
		worker.WithDetachTimeout(10 * time.Millisecond),
	}
	r.w = worker.New(r.src, r.canvas, append(base, opts...)...)
	t.Cleanup(func() { _ = r.w.Close() })

	r.handle(worker.AddMemSlot{Slot: worker.MemSlot{Size: 1 << 24}})
	r.handle(worker.CreateSurface{
		ID:     worker.PrimarySurface,
		Width:  surfaceSize,
		Height: surfaceSize,
		Stride: surfaceSize * 4,
		Format: ir.FormatRGB32,
	})
	r.handle(worker.Start{})
	return r
}

func (r *rig) handle(ctrl worker.Control) worker.Reply {
	r.t.Helper()
	reply, err := r.w.Handle(ctrl)
	require.NoError(r.t, err)
	return reply
}

// connect attaches a display channel over a fresh recording connection.
func (r *rig) connect(ackWindow int) (string, *testutil.RecordingConn) {
	r.t.Helper()
	conn := testutil.NewRecordingConn()
	reply := r.handle(worker.ConnectChannel{
		Kind:      worker.ChannelDisplay,
		Conn:      conn,
		Client:    "client-1",
		AckWindow: ackWindow,
	})
	require.NotEmpty(r.t, reply.Channel)
	return reply.Channel, conn
}

func (r *rig) state(channel string) worker.ChannelState {
	r.t.Helper()
	reply := r.handle(worker.QueryChannel{Channel: channel})
	require.NotNil(r.t, reply.State)
	return *reply.State
}

func (r *rig) process() int {
	r.t.Helper()
	n, err := r.w.ProcessCommands()
	require.NoError(r.t, err)
	return n
}

func (r *rig) step() int {
	r.t.Helper()
	n, err := r.w.Step()
	require.NoError(r.t, err)
	return n
}

// checkInvariants asserts tree structure and reference accounting.
func (r *rig) checkInvariants() {
	r.t.Helper()
	require.NoError(r.t, r.w.CheckTree())
	require.NoError(r.t, r.w.CheckRefs())
}

func (r *rig) draw(d *ir.Draw) ir.Handle {
	return r.src.Push(&ir.Command{Kind: ir.CommandDraw, Draw: d})
}

func fill(rect region.Rect, color uint32) *ir.Draw {
	return &ir.Draw{
		Surface: worker.PrimarySurface,
		Type:    ir.DrawFill,
		Effect:  ir.EffectOpaque,
		BBox:    rect,
		Brush:   ir.Brush{Color: color},
		Rop:     ir.RopPut,
	}
}

func blendFill(rect region.Rect, color uint32) *ir.Draw {
	d := fill(rect, color)
	d.Effect = ir.EffectBlend
	d.Rop = ir.RopXor
	return d
}

func copyBits(dest region.Rect, src ir.Point) *ir.Draw {
	return &ir.Draw{
		Surface: worker.PrimarySurface,
		Type:    ir.DrawCopyBits,
		Effect:  ir.EffectOpaque,
		BBox:    dest,
		SrcPos:  src,
	}
}

// frame is an opaque bitmap copy to dest, the shape of a video frame.
func frame(dest region.Rect, b *ir.Bitmap) *ir.Draw {
	return &ir.Draw{
		Surface: worker.PrimarySurface,
		Type:    ir.DrawCopy,
		Effect:  ir.EffectOpaque,
		BBox:    dest,
		Rop:     ir.RopPut,
		Src:     &ir.Image{Kind: ir.ImageBitmap, Bitmap: b},
		SrcArea: region.R(0, 0, b.Width, b.Height),
	}
}

// gradientBitmap has one-step horizontal ramps, which score as smooth.
func gradientBitmap(w, h int32) *ir.Bitmap {
	b := &ir.Bitmap{Format: ir.FormatRGB32, Width: w, Height: h, Stride: w * 4, TopDown: true}
	b.Data = make([]byte, int(b.Stride)*int(h))
	for y := 0; y < int(h); y++ {
		for x := 0; x < int(w); x++ {
			p := b.Data[y*int(b.Stride)+x*4:]
			p[0], p[1], p[2] = byte(x), byte(x), byte(y)
		}
	}
	return b
}

// checkerBitmap alternates black and white pixels, which scores as sharp.
func checkerBitmap(w, h int32) *ir.Bitmap {
	b := &ir.Bitmap{Format: ir.FormatRGB32, Width: w, Height: h, Stride: w * 4, TopDown: true}
	b.Data = make([]byte, int(b.Stride)*int(h))
	for y := 0; y < int(h); y++ {
		for x := 0; x < int(w); x++ {
			if (x+y)%2 == 0 {
				p := b.Data[y*int(b.Stride)+x*4:]
				p[0], p[1], p[2] = 0xff, 0xff, 0xff
			}
		}
	}
	return b
}

func countKind(items []worker.ItemKind, kind worker.ItemKind) int {
	n := 0
	for _, k := range items {
		if k == kind {
			n++
		}
	}
	return n
}

func sumCounts(m map[worker.ItemKind]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
