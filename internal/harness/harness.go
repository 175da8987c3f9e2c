package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/redworker/internal/canvas"
	"github.com/roach88/redworker/internal/codec"
	"github.com/roach88/redworker/internal/config"
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
	"github.com/roach88/redworker/internal/store"
	"github.com/roach88/redworker/internal/testutil"
	"github.com/roach88/redworker/internal/worker"
)

// harnessDetachTimeout bounds how long a disconnect waits for a blocked
// recording connection. Recording connections only unblock on a step, so
// waiting longer never helps.
const harnessDetachTimeout = 10 * time.Millisecond

// RunOptions tunes a scenario execution.
type RunOptions struct {
	// Journal is the SQLite path the session is journaled to. Empty falls
	// back to the config's journal, then to a fresh in-memory database.
	Journal string
	// Logger receives step logs. Nil discards them.
	Logger *slog.Logger
}

// Harness drives one worker through a scenario.
//
// Everything the worker touches is deterministic: commands come from a
// testutil.FakeSource, clients are testutil.RecordingConn, time is a
// testutil.ManualClock and pixels land on a canvas.Soft.
type Harness struct {
	scenario *Scenario
	cfg      config.Config
	store    *store.Store
	session  string
	source   *testutil.FakeSource
	clock    *testutil.ManualClock
	canvas   *canvas.Soft
	worker   *worker.Worker
	logger   *slog.Logger

	// conns, ids and specs are keyed by scenario channel name; names maps
	// every channel id ever connected back to its name.
	conns map[string]*testutil.RecordingConn
	ids   map[string]string
	specs map[string]ChannelSpec
	names map[string]string

	updates uint32
}

// Run executes a scenario against an in-memory journal and returns the
// result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWith(context.Background(), scenario, RunOptions{})
}

// RunWith executes a scenario.
//
// Execution flow:
//  1. Open the journal and create the worker from the scenario config
//  2. Register a memory slot, create the surfaces and start the worker
//  3. Connect the channels that are not deferred
//  4. Execute the steps
//  5. Capture worker state and sample pixels, then close the worker
//  6. Read the journal back as the trace and evaluate assertions
func RunWith(ctx context.Context, scenario *Scenario, opts RunOptions) (*Result, error) {
	cfg, err := config.Parse(scenario.Config)
	if err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}
	workerOpts, err := cfg.Options()
	if err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}

	path := opts.Journal
	if path == "" {
		path = cfg.Journal
	}
	if path == "" {
		path = ":memory:"
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer st.Close()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	session := scenario.Session
	if session == "" {
		session = "scenario"
	}

	h := &Harness{
		scenario: scenario,
		cfg:      cfg,
		store:    st,
		session:  session,
		source:   testutil.NewFakeSource(),
		clock:    testutil.NewManualClock(time.Time{}),
		canvas:   canvas.NewSoft(),
		logger:   logger,
		conns:    make(map[string]*testutil.RecordingConn),
		ids:      make(map[string]string),
		specs:    make(map[string]ChannelSpec),
		names:    make(map[string]string),
	}
	workerOpts = append(workerOpts,
		worker.WithClock(h.clock),
		worker.WithDetachTimeout(harnessDetachTimeout),
		worker.WithJournal(st, session),
	)
	h.worker = worker.New(h.source, h.canvas, workerOpts...)

	result := NewResult()
	if err := h.setup(); err != nil {
		_ = h.worker.Close()
		return nil, fmt.Errorf("failed to set up scenario: %w", err)
	}
	if err := h.executeSteps(scenario.Steps, "steps"); err != nil {
		_ = h.worker.Close()
		return nil, err
	}

	h.captureState(result)
	if err := h.samplePixels(result); err != nil {
		_ = h.worker.Close()
		return nil, err
	}
	if err := h.worker.Close(); err != nil {
		return nil, fmt.Errorf("failed to close worker: %w", err)
	}
	result.State["double_released"] = int64(len(h.source.DoubleReleased()))

	trace, err := h.readTrace(ctx)
	if err != nil {
		return nil, err
	}
	result.Trace = trace

	actx := &AssertionContext{
		Store:   st,
		Ctx:     ctx,
		Session: session,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) setup() error {
	if _, err := h.worker.Handle(worker.AddMemSlot{Slot: worker.MemSlot{Size: 1 << 32}}); err != nil {
		return err
	}
	for _, s := range h.scenario.Surfaces {
		format := ir.FormatRGB32
		if s.Format != "" {
			format, _ = ir.ParseFormat(s.Format)
		}
		_, err := h.worker.Handle(worker.CreateSurface{
			ID:     s.ID,
			Width:  s.Width,
			Height: s.Height,
			Stride: s.Width * int32(format.BytesPerPixel()),
			Format: format,
		})
		if err != nil {
			return fmt.Errorf("surface %d: %w", s.ID, err)
		}
	}
	if _, err := h.worker.Handle(worker.Start{}); err != nil {
		return err
	}
	for _, ch := range h.scenario.Channels {
		h.specs[ch.Name] = ch
		if ch.Deferred {
			continue
		}
		if err := h.connect(ch.Name); err != nil {
			return fmt.Errorf("channel %s: %w", ch.Name, err)
		}
	}
	return nil
}

func (h *Harness) connect(name string) error {
	cs := h.specs[name]
	kind := worker.ChannelDisplay
	if cs.Kind != "" {
		kind, _ = worker.ParseChannelKind(cs.Kind)
	}
	conn := testutil.NewRecordingConn()
	ctrl := h.cfg.Connect(kind, conn, name)
	if cs.AckWindow != nil {
		ctrl.AckWindow = *cs.AckWindow
	}
	reply, err := h.worker.Handle(ctrl)
	if err != nil {
		return err
	}
	h.conns[name] = conn
	h.ids[name] = reply.Channel
	h.names[reply.Channel] = name
	h.logger.Info("channel connected", "name", name, "channel", reply.Channel, "kind", kind.String())
	return nil
}

func (h *Harness) executeSteps(steps []Step, path string) error {
	for i, st := range steps {
		where := fmt.Sprintf("%s[%d]", path, i)
		err := h.executeStep(st, where)
		if st.Error != "" {
			if !worker.IsCode(err, worker.ErrorCode(st.Error)) {
				return fmt.Errorf("%s: expected %s, got %v", where, st.Error, err)
			}
			h.logger.Info("step failed as expected", "step", where, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
	}
	return nil
}

func (h *Harness) executeStep(st Step, where string) error {
	switch {
	case st.Draw != nil:
		h.source.Push(&ir.Command{
			Kind:  ir.CommandDraw,
			Group: st.Draw.Group,
			Slot:  st.Draw.Slot,
			Draw:  buildDraw(st.Draw),
		})
	case st.Update != nil:
		h.updates++
		h.source.Push(&ir.Command{Kind: ir.CommandUpdate, Update: &ir.Update{
			Surface:  st.Update.Surface,
			Area:     st.Update.Area.rect(),
			UpdateID: h.updates,
		}})
	case st.Cursor != nil:
		h.source.PushCursor(&ir.Command{Kind: ir.CommandCursor, Cursor: buildCursor(st.Cursor)})
	case st.Control != nil:
		return h.control(st.Control)
	case st.Ack != nil:
		return h.ack(st.Ack)
	case st.Repeat != nil:
		for n := 0; n < st.Repeat.Count; n++ {
			if err := h.executeSteps(st.Repeat.Steps, fmt.Sprintf("%s.repeat[%d]", where, n)); err != nil {
				return err
			}
		}
	case st.Advance != "":
		d, _ := time.ParseDuration(st.Advance)
		h.clock.Advance(d)
	case st.Run > 0:
		for n := 0; n < st.Run; n++ {
			processed, err := h.worker.Step()
			if err != nil {
				return err
			}
			h.logger.Debug("worker step", "step", where, "commands", processed)
		}
	case st.Block != "":
		if conn, ok := h.conns[st.Block]; ok {
			conn.SetBlocking(true)
		}
	case st.Unblock != "":
		if conn, ok := h.conns[st.Unblock]; ok {
			conn.SetBlocking(false)
			return h.worker.Resume(h.ids[st.Unblock])
		}
	}
	return nil
}

func (h *Harness) control(c *ControlStep) error {
	id := h.ids[c.Channel]
	area := h.surfaceArea(c.Surface)
	if c.Area != nil {
		area = c.Area.rect()
	}

	var ctrl worker.Control
	switch c.Op {
	case "connect":
		return h.connect(c.Channel)
	case "disconnect":
		ctrl = worker.DisconnectChannel{Channel: id}
	case "migrate":
		ctrl = worker.MigrateChannel{Channel: id}
	case "create_surface":
		ctrl = worker.CreateSurface{ID: c.Surface, Width: c.Width, Height: c.Height, Stride: c.Width * 4, Format: ir.FormatRGB32}
	case "destroy_surface":
		ctrl = worker.DestroySurface{ID: c.Surface}
	case "destroy_surfaces":
		ctrl = worker.DestroySurfaces{}
	case "update_area":
		ctrl = worker.UpdateArea{Surface: c.Surface, Area: area}
	case "start":
		ctrl = worker.Start{}
	case "stop":
		ctrl = worker.Stop{}
	case "oom":
		ctrl = worker.Oom{}
	case "reset_image_cache":
		ctrl = worker.ResetImageCache{}
	case "reset_cursor":
		ctrl = worker.ResetCursor{}
	case "set_streaming":
		mode, err := worker.ParseStreamingMode(c.Mode)
		if err != nil {
			return err
		}
		ctrl = worker.SetStreamingVideo{Mode: mode}
	case "set_compression":
		mode, err := codec.ParseMode(c.Mode)
		if err != nil {
			return err
		}
		ctrl = worker.SetCompression{Mode: mode}
	case "push_verb":
		verb, ok := worker.ParseMessageType(c.Verb)
		if !ok {
			return fmt.Errorf("unknown verb %q", c.Verb)
		}
		ctrl = worker.PushVerb{Channel: id, Verb: verb}
	default:
		return fmt.Errorf("unknown control %q", c.Op)
	}

	reply, err := h.worker.Handle(ctrl)
	if err != nil {
		return err
	}
	h.logger.Info("control applied", "op", c.Op, "flushed", reply.Flushed, "dirty", len(reply.Dirty))
	return nil
}

func (h *Harness) ack(a *AckStep) error {
	id := h.ids[a.Channel]
	if a.Sync != nil {
		msg := worker.ClientMessage{Type: worker.ClientAckSync, Generation: *a.Sync}
		if _, err := h.worker.Handle(worker.Receive{Channel: id, Message: msg}); err != nil {
			return err
		}
	}
	count := a.Count
	if count == 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		msg := worker.ClientMessage{Type: worker.ClientAck}
		if _, err := h.worker.Handle(worker.Receive{Channel: id, Message: msg}); err != nil {
			return err
		}
	}
	return nil
}

// stateFields are the names worker_state assertions may check.
var stateFields = map[string]bool{
	"running":            true,
	"live_drawables":     true,
	"pool_capacity":      true,
	"tree_drawables":     true,
	"active_streams":     true,
	"surfaces":           true,
	"channels":           true,
	"draws":              true,
	"rendered":           true,
	"flushes":            true,
	"reclaims":           true,
	"containers":         true,
	"shadows":            true,
	"streams_created":    true,
	"upgrades":           true,
	"cursor_commands":    true,
	"frames_sent":        true,
	"frames_dropped":     true,
	"sent":               true,
	"pending_commands":   true,
	"source_outstanding": true,
	"double_released":    true,
}

func (h *Harness) captureState(result *Result) {
	snap := h.worker.Snapshot()
	running := int64(0)
	if snap.Running {
		running = 1
	}
	s := snap.Stats
	for k, v := range map[string]int64{
		"running":            running,
		"live_drawables":     int64(snap.LiveDrawables),
		"pool_capacity":      int64(snap.PoolCapacity),
		"tree_drawables":     int64(snap.TreeDrawables),
		"active_streams":     int64(len(snap.ActiveStreams)),
		"surfaces":           int64(len(snap.Surfaces)),
		"channels":           int64(len(snap.Channels)),
		"draws":              int64(s.Draws),
		"rendered":           int64(s.Rendered),
		"flushes":            int64(s.Flushes),
		"reclaims":           int64(s.Reclaims),
		"containers":         int64(s.Containers),
		"shadows":            int64(s.Shadows),
		"streams_created":    int64(s.StreamsCreated),
		"upgrades":           int64(s.Upgrades),
		"cursor_commands":    int64(s.CursorCommands),
		"frames_sent":        int64(s.FramesSent),
		"frames_dropped":     int64(s.FramesDropped),
		"sent":               int64(s.Sent),
		"pending_commands":   int64(h.source.Pending()),
		"source_outstanding": int64(len(h.source.Outstanding())),
	} {
		result.State[k] = v
	}
}

// samplePixels renders each surface a pixel assertion names and records
// the sampled colors as 0xRRGGBB.
func (h *Harness) samplePixels(result *Result) error {
	rendered := make(map[uint32]bool)
	for _, a := range h.scenario.Assertions {
		if a.Type != AssertPixel {
			continue
		}
		if !rendered[a.Surface] {
			if _, err := h.worker.Handle(worker.UpdateArea{Surface: a.Surface, Area: h.surfaceArea(a.Surface)}); err != nil {
				return fmt.Errorf("render surface %d: %w", a.Surface, err)
			}
			rendered[a.Surface] = true
		}
		img := h.canvas.Image(a.Surface)
		if img == nil {
			return errors.New("pixel assertion on a surface that does not exist")
		}
		c := img.RGBAAt(int(a.X), int(a.Y))
		result.Pixels[pixelKey(a.Surface, a.X, a.Y)] = uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
	}
	return nil
}

func (h *Harness) surfaceArea(id uint32) region.Rect {
	for _, s := range h.worker.Snapshot().Surfaces {
		if s.ID == id {
			return region.R(0, 0, s.Width, s.Height)
		}
	}
	return region.Rect{}
}

func pixelKey(surface uint32, x, y int32) string {
	return fmt.Sprintf("%d:%d,%d", surface, x, y)
}

// readTrace reads the session journal and names channels the way the
// scenario does.
func (h *Harness) readTrace(ctx context.Context) ([]TraceEvent, error) {
	events, err := h.store.ReadEvents(ctx, h.session, store.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	trace := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		te := TraceEvent{
			Seq:     ev.Seq,
			Kind:    string(ev.Kind),
			Message: ev.Message,
			Serial:  ev.Serial,
			Surface: ev.Surface,
			Stream:  ev.Stream,
			Detail:  ev.Detail,
		}
		if ev.Channel != "" {
			te.Channel = h.names[ev.Channel]
		}
		trace = append(trace, te)
	}
	return trace, nil
}
