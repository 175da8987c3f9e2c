package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redworker/internal/canvas"
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
	"github.com/roach88/redworker/internal/testutil"
	"github.com/roach88/redworker/internal/worker"
)

func TestControl_UpdateAreaReportsDirtyRects(t *testing.T) {
	r := newRig(t)
	r.draw(fill(region.R(10, 10, 20, 20), 0xff00ff00))
	r.process()

	reply := r.handle(worker.UpdateArea{Surface: worker.PrimarySurface, Area: region.R(0, 0, surfaceSize, surfaceSize)})
	assert.Equal(t, []region.Rect{region.R(10, 10, 20, 20)}, reply.Dirty)
	assert.Equal(t, 0, r.w.Snapshot().TreeDrawables)

	px := r.canvas.Image(worker.PrimarySurface).RGBAAt(15, 15)
	assert.Equal(t, uint8(0xff), px.G)
	assert.Equal(t, uint8(0), px.R)

	reply = r.handle(worker.UpdateArea{Surface: worker.PrimarySurface, Area: region.R(0, 0, surfaceSize, surfaceSize)})
	assert.Empty(t, reply.Dirty)
}

func TestControl_UpdateCommandFlushesArea(t *testing.T) {
	r := newRig(t)
	r.draw(fill(region.R(0, 0, 10, 10), 0xff000000))
	r.draw(fill(region.R(100, 100, 110, 110), 0xff000000))
	h := r.src.Push(&ir.Command{Kind: ir.CommandUpdate, Update: &ir.Update{
		Surface: worker.PrimarySurface,
		Area:    region.R(0, 0, 10, 10),
	}})
	r.process()

	assert.Equal(t, 1, r.src.ReleaseCount(h))
	// the newer drawable outside the area stays
	assert.Equal(t, 1, r.w.Snapshot().TreeDrawables)
	assert.Equal(t, 1, r.src.ReleaseCount(1))
}

func TestControl_StopFlushesAndPauses(t *testing.T) {
	r := newRig(t)
	r.draw(fill(region.R(0, 0, 10, 10), 0xff000000))
	r.process()

	r.handle(worker.Stop{})
	assert.False(t, r.w.Running())
	assert.Equal(t, 0, r.w.Snapshot().TreeDrawables)

	r.draw(fill(region.R(0, 0, 10, 10), 0xff000000))
	assert.Equal(t, 0, r.process())

	r.handle(worker.Start{})
	assert.Equal(t, 1, r.process())
}

func TestControl_SaveAndRestore(t *testing.T) {
	r := newRig(t)
	r.draw(fill(region.R(10, 10, 20, 20), 0xff204060))
	r.process()

	reply := r.handle(worker.Save{})
	require.Len(t, reply.Surfaces, 1)
	saved := reply.Surfaces[0]
	assert.Len(t, saved.Pixels, surfaceSize*surfaceSize*4)
	assert.False(t, r.w.Running())

	target := canvas.NewSoft()
	fresh := worker.New(testutil.NewFakeSource(), target)
	t.Cleanup(func() { _ = fresh.Close() })
	_, err := fresh.Handle(worker.Restore{Surfaces: reply.Surfaces})
	require.NoError(t, err)

	assert.True(t, fresh.Running())
	snap := fresh.Snapshot()
	require.Len(t, snap.Surfaces, 1)
	assert.Equal(t, int32(surfaceSize), snap.Surfaces[0].Width)

	px := target.Image(worker.PrimarySurface).RGBAAt(15, 15)
	assert.Equal(t, [3]uint8{0x20, 0x40, 0x60}, [3]uint8{px.R, px.G, px.B})
}

func TestControl_SurfaceErrors(t *testing.T) {
	r := newRig(t)

	_, err := r.w.Handle(worker.CreateSurface{ID: worker.PrimarySurface, Width: 8, Height: 8, Stride: 32, Format: ir.FormatRGB32})
	assert.True(t, worker.IsCode(err, worker.ErrCodeSurfaceExists))

	_, err = r.w.Handle(worker.CreateSurface{ID: 2, Width: 8, Height: 8, Format: ir.Format(99)})
	assert.True(t, worker.IsCode(err, worker.ErrCodeBadDepth))

	_, err = r.w.Handle(worker.CreateSurface{ID: 5000, Width: 8, Height: 8, Format: ir.FormatRGB32})
	assert.True(t, worker.IsCode(err, worker.ErrCodeBadSurface))

	_, err = r.w.Handle(worker.DestroySurface{ID: 3})
	assert.True(t, worker.IsCode(err, worker.ErrCodeBadSurface))
}

func TestControl_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		cmd  *ir.Command
		code worker.ErrorCode
	}{
		{
			name: "unregistered memslot",
			cmd:  &ir.Command{Kind: ir.CommandDraw, Group: 3, Draw: fill(region.R(0, 0, 4, 4), 0)},
			code: worker.ErrCodeBadMemslot,
		},
		{
			name: "missing surface",
			cmd: &ir.Command{Kind: ir.CommandDraw, Draw: func() *ir.Draw {
				d := fill(region.R(0, 0, 4, 4), 0)
				d.Surface = 9
				return d
			}()},
			code: worker.ErrCodeBadSurface,
		},
		{
			name: "outside the surface",
			cmd:  &ir.Command{Kind: ir.CommandDraw, Draw: fill(region.R(250, 250, 300, 300), 0)},
			code: worker.ErrCodeBadGeometry,
		},
		{
			name: "copy without source",
			cmd: &ir.Command{Kind: ir.CommandDraw, Draw: &ir.Draw{
				Surface: worker.PrimarySurface, Type: ir.DrawCopy, BBox: region.R(0, 0, 4, 4),
			}},
			code: worker.ErrCodeBadCommand,
		},
		{
			name: "unknown kind",
			cmd:  &ir.Command{Kind: ir.CommandKind(42)},
			code: worker.ErrCodeBadCommand,
		},
		{
			name: "cursor without shape",
			cmd:  &ir.Command{Kind: ir.CommandCursor, Cursor: &ir.CursorCmd{Op: ir.CursorSet}},
			code: worker.ErrCodeBadCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			r.src.Push(tt.cmd)

			_, err := r.w.ProcessCommands()
			require.Error(t, err)
			assert.True(t, worker.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestControl_MemSlotsCanBeRemoved(t *testing.T) {
	r := newRig(t)
	r.handle(worker.AddMemSlot{Slot: worker.MemSlot{Group: 1, Slot: 2, Size: 4096}})
	r.src.Push(&ir.Command{Kind: ir.CommandDraw, Group: 1, Slot: 2, Draw: fill(region.R(0, 0, 4, 4), 0)})
	assert.Equal(t, 1, r.process())

	r.handle(worker.DelMemSlot{Group: 1, Slot: 2})
	r.src.Push(&ir.Command{Kind: ir.CommandDraw, Group: 1, Slot: 2, Draw: fill(region.R(0, 0, 4, 4), 0)})
	_, err := r.w.ProcessCommands()
	assert.True(t, worker.IsCode(err, worker.ErrCodeBadMemslot))
}

func TestControl_ResetMemSlots(t *testing.T) {
	r := newRig(t)
	r.handle(worker.ResetMemSlots{})
	r.draw(fill(region.R(0, 0, 4, 4), 0))

	_, err := r.w.ProcessCommands()
	assert.True(t, worker.IsCode(err, worker.ErrCodeBadMemslot))
}

func TestControl_UnknownChannel(t *testing.T) {
	r := newRig(t)

	_, err := r.w.Handle(worker.DisconnectChannel{Channel: "nope"})
	var unknown *worker.ErrUnknownChannel
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Channel)
}

func TestControl_CompressionAndStreamingModes(t *testing.T) {
	r := newRig(t)
	r.handle(worker.SetStreamingVideo{Mode: worker.StreamingOff})
	r.playFrames(25, videoRect, gradientBitmap(128, 96), 40*time.Millisecond)
	assert.Equal(t, 0, r.w.Stats().StreamsCreated)

	r.handle(worker.SetStreamingVideo{Mode: worker.StreamingAll})
	r.playFrames(25, videoRect, checkerBitmap(128, 96), 40*time.Millisecond)
	assert.Equal(t, 1, r.w.Stats().StreamsCreated)
}

// memJournal keeps recorded events in memory.
type memJournal struct {
	mu     sync.Mutex
	events []worker.Event
}

func (j *memJournal) Record(ev worker.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

func (j *memJournal) kinds() []worker.EventKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]worker.EventKind, len(j.events))
	for i, ev := range j.events {
		out[i] = ev.Kind
	}
	return out
}

func TestJournal_RecordsOrderedEvents(t *testing.T) {
	j := &memJournal{}
	r := newRig(t, worker.WithJournal(j, "session-1"))
	ch, _ := r.connect(0)
	r.draw(fill(region.R(0, 0, 10, 10), 0xff000000))
	r.step()
	r.handle(worker.DisconnectChannel{Channel: ch})

	assert.Equal(t, "session-1", r.w.Session())
	assert.Equal(t, []worker.EventKind{
		worker.EventSessionStart,
		worker.EventSurfaceCreate,
		worker.EventChannelConnect,
		worker.EventMessageSent,
		worker.EventMessageSent,
		worker.EventMessageSent,
		worker.EventChannelDisconnect,
	}, j.kinds())
	for i, ev := range j.events {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, "session-1", ev.Session)
	}
	assert.Equal(t, "draw", j.events[5].Message)
	assert.Equal(t, ch, j.events[5].Channel)
}

func TestRun_ServesControlsAndCommands(t *testing.T) {
	src := testutil.NewFakeSource()
	w := worker.New(src, canvas.NewSoft(), worker.WithPolling(2, time.Millisecond))
	_, err := w.Handle(worker.AddMemSlot{Slot: worker.MemSlot{Size: 4096}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	_, err = w.Do(ctx, worker.CreateSurface{ID: 0, Width: 64, Height: 64, Stride: 256, Format: ir.FormatRGB32})
	require.NoError(t, err)
	_, err = w.Do(ctx, worker.Start{})
	require.NoError(t, err)

	conn := testutil.NewRecordingConn()
	reply, err := w.Do(ctx, worker.ConnectChannel{Kind: worker.ChannelDisplay, Conn: conn, Client: "c"})
	require.NoError(t, err)
	require.NotEmpty(t, reply.Channel)

	src.Push(&ir.Command{Kind: ir.CommandDraw, Draw: fill(region.R(0, 0, 8, 8), 0xff000000)})
	require.Eventually(t, func() bool {
		return conn.Count(worker.MsgDraw) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// the worker slept on a notification at some point after going idle
	require.Eventually(t, func() bool {
		return src.NotificationRequests() > 0
	}, 2*time.Second, 5*time.Millisecond)
	src.Push(&ir.Command{Kind: ir.CommandDraw, Draw: fill(region.R(20, 20, 28, 28), 0xff000000)})
	require.Eventually(t, func() bool {
		return conn.Count(worker.MsgDraw) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.True(t, conn.Closed())

	_, err = w.Do(context.Background(), worker.Stop{})
	assert.ErrorIs(t, err, worker.ErrClosed)
}

func TestRun_InvariantErrorAbortsLoop(t *testing.T) {
	src := testutil.NewFakeSource()
	w := worker.New(src, canvas.NewSoft(), worker.WithPolling(1, time.Millisecond))
	_, err := w.Handle(worker.Start{})
	require.NoError(t, err)
	src.Push(&ir.Command{Kind: ir.CommandDraw, Draw: fill(region.R(0, 0, 4, 4), 0)})

	err = w.Run(context.Background())
	assert.True(t, worker.IsCode(err, worker.ErrCodeBadMemslot))
}

func TestProcessCommands_BusyBudgetYields(t *testing.T) {
	r := newRig(t, worker.WithBusyBudget(10*time.Millisecond))
	for i := 0; i < 10; i++ {
		r.draw(fill(region.XYWH(int32(i)*10, 0, 8, 8), 0xff0000ff))
	}
	// every clock reading costs 3ms
	r.clock.Tick(3 * time.Millisecond)

	n := r.process()
	assert.Greater(t, n, 0)
	assert.Less(t, n, 10)
	assert.Equal(t, 10-n, r.src.Pending())

	total := n
	for r.src.Pending() > 0 {
		total += r.process()
	}
	assert.Equal(t, 10, total)
	r.clock.Tick(0)
	r.checkInvariants()
}
