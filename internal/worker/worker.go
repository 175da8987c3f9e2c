package worker

import (
	"container/list"
	"context"
	"log/slog"
	"time"

	"github.com/roach88/redworker/internal/canvas"
	"github.com/roach88/redworker/internal/codec"
	"github.com/roach88/redworker/internal/dict"
	"github.com/roach88/redworker/internal/ir"
)

// Worker is the single-writer display worker of one virtual display.
//
// All state is owned by the goroutine driving the worker: either Run, or
// a caller using the step API (Handle, Step, ProcessCommands, SendAll,
// Resume) from one goroutine. Do is the only method safe to call from
// other goroutines, and only while Run is active.
//
// Reference counts:
//   - A drawable is held by its tree position, each pipe item carrying it
//     and the code currently processing it.
//   - A command resource is held by its drawable and by each dictionary
//     instance encoded from it; it goes back to the source exactly once.
//   - A stream is held by the active list, each channel agent and each
//     queued clip item.
type Worker struct {
	opts    options
	clock   Clock
	source  CommandSource
	canvas  canvas.Backend
	dicts   *dict.Registry
	journal Journal
	seq     *Sequence

	pool           *drawablePool
	surfaces       []*surface
	current        *list.List
	pendingCleanup []*Container

	streams     []Stream
	freeStreams []*Stream
	active      []*Stream
	trace       [streamTraceSize]streamTrace
	traceNext   int

	streaming   StreamingMode
	compression codec.Mode
	cursor      cursorState

	channels []*Channel
	pixmaps  map[string]*pixmapCache
	memslots map[memslotKey]MemSlot

	running  bool
	ctrl     *controlQueue
	writable *writableSet
	stats    Stats
}

// Stats counts worker activity since creation.
type Stats struct {
	Draws          int
	Rendered       int
	Flushes        int
	Reclaims       int
	Containers     int
	Shadows        int
	StreamsCreated int
	Upgrades       int
	CursorCommands int
	FramesSent     int
	FramesDropped  int
	Sent           int
	Pushed         map[ItemKind]int
	Released       map[ItemKind]int
}

func (s Stats) clone() Stats {
	out := s
	out.Pushed = make(map[ItemKind]int, len(s.Pushed))
	for k, v := range s.Pushed {
		out.Pushed[k] = v
	}
	out.Released = make(map[ItemKind]int, len(s.Released))
	for k, v := range s.Released {
		out.Released[k] = v
	}
	return out
}

// New creates a stopped worker pulling commands from source and rendering
// into backend.
func New(source CommandSource, backend canvas.Backend, opts ...Option) *Worker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = systemClock{}
	}
	if o.dicts == nil {
		o.dicts = dict.NewRegistry()
	}
	if o.session == "" {
		o.session = newChannelID()
	}

	w := &Worker{
		opts:        o,
		clock:       o.clock,
		source:      source,
		canvas:      backend,
		dicts:       o.dicts,
		journal:     o.journal,
		seq:         NewSequenceAt(0),
		pool:        newDrawablePool(o.numDrawables),
		surfaces:    make([]*surface, o.numSurfaces),
		current:     list.New(),
		streams:     make([]Stream, o.numStreams),
		streaming:   o.streaming,
		compression: o.compression,
		pixmaps:     make(map[string]*pixmapCache),
		memslots:    make(map[memslotKey]MemSlot),
		ctrl:        newControlQueue(),
		writable:    newWritableSet(),
		stats: Stats{
			Pushed:   make(map[ItemKind]int),
			Released: make(map[ItemKind]int),
		},
	}
	// pop from the end hands out stream 0 first
	for i := len(w.streams) - 1; i >= 0; i-- {
		w.streams[i].index = i
		w.freeStreams = append(w.freeStreams, &w.streams[i])
	}
	w.record(Event{Kind: EventSessionStart, Detail: map[string]any{
		"drawables": int64(o.numDrawables),
		"surfaces":  int64(o.numSurfaces),
		"streams":   int64(o.numStreams),
	}})
	return w
}

// Session returns the journal session id of the worker.
func (w *Worker) Session() string { return w.opts.session }

// Running reports whether the worker processes commands.
func (w *Worker) Running() bool { return w.running }

// Stats returns a copy of the activity counters.
func (w *Worker) Stats() Stats { return w.stats.clone() }

func (w *Worker) record(ev Event) {
	if w.journal == nil {
		return
	}
	ev.Session = w.opts.session
	ev.Seq = w.seq.Next()
	if err := w.journal.Record(ev); err != nil {
		slog.Warn("journal write failed", "kind", string(ev.Kind), "error", err)
	}
}

// ProcessCommands pulls and applies commands until the source runs dry, a
// display pipe is over the limit, every display channel is blocked or the
// busy budget is spent. It returns the number of commands applied.
func (w *Worker) ProcessCommands() (n int, err error) {
	defer guard(&err)
	if !w.running {
		return 0, nil
	}
	start := w.clock.Now()
	spent := func() bool { return w.clock.Now().Sub(start) >= w.opts.busyBudget }

	for w.canProcess() {
		cmd, ok := w.source.Next()
		if !ok {
			break
		}
		w.processCommand(cmd)
		n++
		if spent() {
			return n, nil
		}
	}
	for w.canProcessCursor() {
		cmd, ok := w.source.NextCursor()
		if !ok {
			break
		}
		w.checkMemSlot(cmd)
		w.processCursor(cmd)
		n++
		if spent() {
			break
		}
	}
	return n, nil
}

func (w *Worker) canProcess() bool {
	channels := w.displayChannels()
	if len(channels) == 0 {
		return true
	}
	blocked := 0
	for _, ch := range channels {
		if ch.pipe.Len() > w.opts.maxPipeSize {
			return false
		}
		if ch.blocked {
			blocked++
		}
	}
	return blocked < len(channels)
}

func (w *Worker) canProcessCursor() bool {
	for _, ch := range w.cursorChannels() {
		if ch.pipe.Len() > w.opts.maxPipeSize {
			return false
		}
	}
	return true
}

func (w *Worker) processCommand(cmd *ir.Command) {
	w.checkMemSlot(cmd)
	switch cmd.Kind {
	case ir.CommandDraw:
		w.processDraw(cmd)
	case ir.CommandUpdate:
		u := cmd.Update
		if u == nil {
			fatal(ErrCodeBadCommand, "update command without payload")
		}
		s := w.liveSurface(u.Surface)
		if area := u.Area.Intersect(s.bounds()); !area.Empty() {
			w.updateArea(s, area, nil)
			w.cleanupContainers()
		}
		w.source.Release(cmd.Handle)
	case ir.CommandMessage:
		if cmd.Message != nil {
			slog.Info("guest message", "text", cmd.Message.Text)
		}
		w.source.Release(cmd.Handle)
	case ir.CommandSurface:
		sc := cmd.Surface
		if sc == nil {
			fatal(ErrCodeBadCommand, "surface command without payload")
		}
		switch sc.Op {
		case ir.SurfaceCreate:
			w.createSurface(sc)
		case ir.SurfaceDestroy:
			w.destroySurface(sc.ID)
		default:
			fatal(ErrCodeBadCommand, "unknown surface operation %d", int(sc.Op))
		}
		w.source.Release(cmd.Handle)
	case ir.CommandCursor:
		w.processCursor(cmd)
	default:
		fatal(ErrCodeBadCommand, "unknown command kind %d", int(cmd.Kind))
	}
}

// Step runs one loop iteration without waiting: deferred dictionary
// releases, writability, stream timeouts, command processing and sending.
func (w *Worker) Step() (n int, err error) {
	defer guard(&err)
	w.drainOwners()
	w.resumeWritable()
	w.timeoutStreams(w.clock.Now())
	if n, err = w.ProcessCommands(); err != nil {
		return n, err
	}
	w.pushAll()
	return n, nil
}

// SendAll writes queued items on every channel as far as flow control
// allows.
func (w *Worker) SendAll() (err error) {
	defer guard(&err)
	w.pushAll()
	return nil
}

// Resume continues a blocked write on a channel and sends what follows.
func (w *Worker) Resume(channel string) (err error) {
	defer guard(&err)
	ch, err := w.lookup(channel)
	if err != nil {
		return err
	}
	if err := ch.resumeWrite(); err != nil {
		w.dropChannel(ch, err)
		return nil
	}
	if err := ch.send(); err != nil {
		w.dropChannel(ch, err)
	}
	return nil
}

func (w *Worker) drainOwners() {
	for _, ch := range w.displayChannels() {
		if ch.owner != nil {
			ch.owner.Drain()
		}
	}
}

func (w *Worker) resumeWritable() {
	for _, id := range w.writable.take() {
		ch := w.channel(id)
		if ch == nil || ch.closed {
			continue
		}
		if err := ch.resumeWrite(); err != nil {
			w.dropChannel(ch, err)
		}
	}
}

// Do hands ctrl to the run loop and waits for its reply.
func (w *Worker) Do(ctx context.Context, ctrl Control) (Reply, error) {
	r := request{ctrl: ctrl, reply: make(chan result, 1)}
	if !w.ctrl.Enqueue(r) {
		return Reply{}, ErrClosed
	}
	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case res := <-r.reply:
		return res.reply, res.err
	}
}

func (w *Worker) drainControls() error {
	for {
		r, ok := w.ctrl.TryDequeue()
		if !ok {
			return nil
		}
		reply, err := w.Handle(r.ctrl)
		r.reply <- result{reply: reply, err: err}
		if IsInvariantError(err) {
			return err
		}
	}
}

// Run drives the worker until ctx is done or an invariant breaks, in which
// case the worker aborts with that error. Run closes the worker on exit.
func (w *Worker) Run(ctx context.Context) (err error) {
	slog.Info("worker started",
		"session", w.opts.session,
		"drawables", w.opts.numDrawables,
		"streaming", w.streaming.String(),
		"compression", w.compression.String(),
	)
	defer func() {
		w.shutdown(err)
	}()

	polls := 0
	armed := false
	for {
		if err := w.drainControls(); err != nil {
			slog.Error("worker aborted", "error", err)
			return err
		}
		n, err := w.Step()
		if err != nil {
			slog.Error("worker aborted", "error", err)
			return err
		}

		// wait < 0 means no timer
		wait := time.Duration(-1)
		var notify <-chan struct{}
		switch {
		case !w.running || !w.canProcess():
			polls = 0
		case n > 0:
			polls, armed = 0, false
			wait = 0
		case armed:
			notify = w.source.Notify()
		case polls < w.opts.pollRetries:
			polls++
			wait = w.opts.pollInterval
		default:
			polls = 0
			if w.source.RequestNotification() {
				armed = true
				notify = w.source.Notify()
			} else {
				wait = 0
			}
		}
		if deadline, ok := w.nextStreamDeadline(); ok {
			d := max(deadline.Sub(w.clock.Now()), 0)
			if wait < 0 || d < wait {
				wait = d
			}
		}

		if wait == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}
		var timer *time.Timer
		var timeout <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-w.ctrl.Wait():
		case <-w.writable.wait():
		case <-notify:
			armed = false
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Close disconnects every channel. Used after step-driven operation; Run
// closes the worker itself.
func (w *Worker) Close() error {
	return w.shutdown(nil)
}

func (w *Worker) shutdown(cause error) (err error) {
	for _, r := range w.ctrl.Close() {
		r.reply <- result{err: ErrClosed}
	}
	if IsInvariantError(cause) {
		for _, ch := range w.channels {
			if !ch.closed {
				ch.closed = true
				close(ch.stop)
				_ = ch.conn.Close()
			}
		}
		w.channels = nil
		return cause
	}
	defer guard(&err)
	for len(w.channels) > 0 {
		w.disconnectChannel(w.channels[0], "worker stopped")
	}
	slog.Info("worker stopped", "session", w.opts.session)
	return nil
}
