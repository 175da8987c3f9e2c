package worker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
	"github.com/roach88/redworker/internal/worker"
)

func TestRelease_DisconnectReleasesEveryQueuedItem(t *testing.T) {
	r := newRig(t)
	ch, conn := r.connect(0)

	for i := int32(0); i < 6; i++ {
		r.draw(fill(region.XYWH(i*40, 0, 30, 30), 0xff000000|uint32(i)))
	}
	r.draw(frame(region.XYWH(0, 100, 32, 32), gradientBitmap(32, 32)))
	r.process()
	r.checkInvariants()
	require.Equal(t, 9, r.state(ch).PipeSize)

	r.handle(worker.DisconnectChannel{Channel: ch})

	stats := r.w.Stats()
	assert.Equal(t, sumCounts(stats.Pushed), sumCounts(stats.Released))
	assert.True(t, conn.Closed())
	assert.Empty(t, r.w.Snapshot().Channels)
	r.checkInvariants()

	r.handle(worker.DestroySurfaces{})
	assert.Equal(t, 0, r.w.Snapshot().LiveDrawables)
	assert.Empty(t, r.src.Outstanding())
	assert.Empty(t, r.src.DoubleReleased())
}

func TestRelease_SentItemsReleaseOnce(t *testing.T) {
	r := newRig(t)
	_, conn := r.connect(0)

	for i := int32(0); i < 4; i++ {
		r.draw(fill(region.XYWH(i*50, 10, 40, 40), 0xff336699))
	}
	r.step()
	r.checkInvariants()

	assert.Equal(t, 4, conn.Count(worker.MsgDraw))
	// sent drawables stay in the tree until rendered
	assert.Empty(t, r.src.Released())

	r.handle(worker.UpdateArea{Surface: worker.PrimarySurface, Area: region.R(0, 0, surfaceSize, surfaceSize)})
	assert.ElementsMatch(t, []ir.Handle{1, 2, 3, 4}, r.src.Released())
	assert.Empty(t, r.src.DoubleReleased())
	assert.Equal(t, 0, r.w.Snapshot().LiveDrawables)
}

func TestRelease_BlockedDisconnectReleasesInflight(t *testing.T) {
	r := newRig(t)
	ch, conn := r.connect(0)

	r.draw(fill(region.R(0, 0, 10, 10), 0xff000000))
	r.process()
	conn.SetBlocking(true)
	require.NoError(t, r.w.SendAll())
	require.True(t, r.state(ch).Blocked)
	r.checkInvariants()

	r.handle(worker.DisconnectChannel{Channel: ch})

	stats := r.w.Stats()
	assert.Equal(t, sumCounts(stats.Pushed), sumCounts(stats.Released))
	r.handle(worker.DestroySurfaces{})
	assert.Empty(t, r.src.Outstanding())
	assert.Empty(t, r.src.DoubleReleased())
}

func TestPool_ReclaimsOldestDrawables(t *testing.T) {
	r := newRig(t, worker.WithNumDrawables(4))

	for i := int32(0); i < 10; i++ {
		r.draw(fill(region.XYWH(i*20, 0, 10, 10), 0xff000000))
	}
	assert.Equal(t, 10, r.process())

	snap := r.w.Snapshot()
	assert.LessOrEqual(t, snap.LiveDrawables, 4)
	assert.Equal(t, 6, snap.Stats.Reclaims)
	assert.Equal(t, 6, snap.Stats.Rendered)
	assert.Equal(t, []ir.Handle{1, 2, 3, 4, 5, 6}, r.src.Released())
	r.checkInvariants()
}

func TestPool_ExhaustedWhenPipesHoldEverything(t *testing.T) {
	r := newRig(t, worker.WithNumDrawables(2))
	r.connect(0)

	for i := int32(0); i < 3; i++ {
		r.draw(fill(region.XYWH(i*20, 0, 10, 10), 0xff000000))
	}
	_, err := r.w.ProcessCommands()
	require.Error(t, err)
	assert.True(t, worker.IsCode(err, worker.ErrCodePoolExhausted))
	assert.True(t, worker.IsInvariantError(err))
}

func TestPool_OomFlushesOlderHalf(t *testing.T) {
	r := newRig(t)

	for i := int32(0); i < 4; i++ {
		r.draw(fill(region.XYWH(i*20, 0, 10, 10), 0xff000000))
	}
	r.process()

	reply := r.handle(worker.Oom{})
	assert.Equal(t, 2, reply.Flushed)
	assert.Equal(t, 2, r.w.Snapshot().TreeDrawables)
	assert.Equal(t, []ir.Handle{1, 2}, r.src.Released())
	r.checkInvariants()
}

// offscreen creates surface 1 and fills it.
func offscreen(r *rig) {
	r.handle(worker.CreateSurface{ID: 1, Width: 64, Height: 64, Stride: 256, Format: ir.FormatRGB32})
	d := fill(region.R(0, 0, 64, 64), 0xffaa5500)
	d.Surface = 1
	r.draw(d)
}

func copyFromOffscreen(dest region.Rect) *ir.Draw {
	return &ir.Draw{
		Surface: worker.PrimarySurface,
		Type:    ir.DrawCopy,
		Effect:  ir.EffectOpaque,
		BBox:    dest,
		Rop:     ir.RopPut,
		Deps:    []ir.SurfaceDep{{Surface: 1, Rect: region.R(0, 0, 64, 64)}},
		Src:     &ir.Image{Kind: ir.ImageSurface, Surface: 1},
		SrcArea: region.R(0, 0, 64, 64),
	}
}

func TestDepend_DrawingOnSourceFlushesReaders(t *testing.T) {
	r := newRig(t)
	offscreen(r)
	r.draw(copyFromOffscreen(region.R(0, 0, 64, 64)))
	r.process()
	require.Equal(t, 2, r.w.Snapshot().TreeDrawables)
	// the offscreen surface is referenced by its creation, its fill and
	// the reader on the primary surface
	assert.Equal(t, 3, r.w.SurfaceRefs(1))

	d := fill(region.R(0, 0, 32, 32), 0xff0000ff)
	d.Surface = 1
	r.draw(d)
	r.process()

	snap := r.w.Snapshot()
	assert.Equal(t, 1, snap.TreeDrawables)
	assert.Equal(t, 2, snap.Stats.Rendered)
	assert.Equal(t, 2, r.w.SurfaceRefs(1))
	assert.ElementsMatch(t, []ir.Handle{1, 2}, r.src.Released())
	r.checkInvariants()
}

func TestDepend_DestroyingSourceRendersReadersFirst(t *testing.T) {
	r := newRig(t)
	offscreen(r)
	r.draw(copyFromOffscreen(region.R(10, 10, 74, 74)))
	r.process()

	r.handle(worker.DestroySurface{ID: 1})

	assert.Equal(t, -1, r.w.SurfaceRefs(1))
	assert.Equal(t, 0, r.w.Snapshot().TreeDrawables)
	assert.Equal(t, 2, r.w.Stats().Rendered)
	px := r.canvas.Image(worker.PrimarySurface).RGBAAt(20, 20)
	assert.Equal(t, uint8(0xaa), px.R)
	assert.Equal(t, uint8(0x55), px.G)
	assert.Empty(t, r.src.Outstanding())
}

func TestDepend_DestroySurfacesLeavesNothing(t *testing.T) {
	r := newRig(t)
	offscreen(r)
	r.draw(copyFromOffscreen(region.R(0, 0, 64, 64)))
	r.draw(fill(region.R(100, 100, 120, 120), 0xff000000))
	r.process()

	r.handle(worker.DestroySurfaces{})

	snap := r.w.Snapshot()
	assert.Empty(t, snap.Surfaces)
	assert.Equal(t, 0, snap.LiveDrawables)
	assert.Empty(t, r.src.Outstanding())
	assert.Empty(t, r.src.DoubleReleased())
}

func TestDepend_SelfBitmapCapturesTarget(t *testing.T) {
	r := newRig(t)
	_, conn := r.connect(0)

	r.draw(fill(region.R(0, 0, 32, 32), 0xff00ff00))
	d := blendFill(region.R(0, 0, 32, 32), 0xff0000ff)
	d.SelfBitmap = true
	d.SelfArea = region.R(0, 0, 16, 16)
	r.draw(d)
	r.step()

	var self *worker.ImageData
	for _, m := range conn.Messages() {
		if m.Type == worker.MsgDraw && m.Draw.SelfBitmap != nil {
			self = m.Draw.SelfBitmap
		}
	}
	require.NotNil(t, self)
	assert.Equal(t, int32(16), self.Width)
	assert.Equal(t, int32(16), self.Height)
	// capturing rendered the fill underneath
	assert.Equal(t, 1, r.w.Stats().Rendered)
	r.checkInvariants()
}
