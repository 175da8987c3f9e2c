package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

// StreamingMode controls which drawables may become video streams.
type StreamingMode int

const (
	// StreamingOff never creates streams.
	StreamingOff StreamingMode = iota
	// StreamingAll considers every opaque bitmap copy to the primary surface.
	StreamingAll
	// StreamingFilter also requires a minimum size and smooth content.
	StreamingFilter
)

var streamingNames = map[StreamingMode]string{
	StreamingOff:    "off",
	StreamingAll:    "all",
	StreamingFilter: "filter",
}

func (m StreamingMode) String() string {
	if n, ok := streamingNames[m]; ok {
		return n
	}
	return fmt.Sprintf("streaming(%d)", int(m))
}

// ParseStreamingMode maps a configuration name to a StreamingMode.
func ParseStreamingMode(s string) (StreamingMode, error) {
	for m, n := range streamingNames {
		if n == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown streaming mode %q", s)
}

const (
	streamFramesStart    = 20
	streamGradualStart   = 0.2
	streamFramesReset    = 100
	streamMinSize        = 96 * 96
	streamTraceSize      = 16
	streamMaxFPS         = 30
	streamDefaultBitRate = 10 << 20
)

// Stream is a run of same-geometry frames sent through the video path.
// refs counts the worker's active list, each channel agent and every
// queued clip item.
type Stream struct {
	index    int
	refs     int
	active   bool
	current  *Drawable
	lastTime time.Time
	width    int32
	height   int32
	dest     region.Rect
	topDown  bool
	frames   uint64

	// bitRate estimates the encoded frame bits per second, counting each
	// frame once however many channels it goes to. It starts at
	// streamDefaultBitRate and is refreshed once per second of frames.
	bitRate     uint64
	rateStart   time.Time
	rateBits    uint64
	rateSampled DrawableID
}

// sampleBitRate accounts one encoded frame of d sent at now.
func (s *Stream) sampleBitRate(d *Drawable, now time.Time, size int) {
	if s.rateSampled == d.id {
		return
	}
	s.rateSampled = d.id
	if s.rateStart.IsZero() {
		s.rateStart = now
	}
	s.rateBits += uint64(size) * 8
	if elapsed := now.Sub(s.rateStart); elapsed >= time.Second {
		s.bitRate = uint64(float64(s.rateBits) / elapsed.Seconds())
		s.rateStart, s.rateBits = now, 0
	}
}

// Index returns the stream id used on the wire.
func (s *Stream) Index() int { return s.index }

// streamAgent is a channel's view of a stream.
type streamAgent struct {
	stream   *Stream
	vis      region.Region
	clip     region.Region
	frames   int
	drops    int
	fps      int
	lastSend time.Time
}

// streamTrace remembers the counters of a streamable drawable that left
// the tree, so a stream can pick up where it stopped.
type streamTrace struct {
	time        time.Time
	frames      int
	gradual     int
	lastGradual int
	width       int32
	height      int32
	dest        region.Rect
}

// updateStreamable marks d as a possible stream frame and counts it as
// the first frame of a candidate run.
func (w *Worker) updateStreamable(d *Drawable) {
	dr := d.draw
	if w.streaming == StreamingOff || !d.surface.isPrimary() {
		return
	}
	if d.effect != ir.EffectOpaque || dr.Type != ir.DrawCopy || (dr.Rop != 0 && dr.Rop != ir.RopPut) {
		return
	}
	if dr.Src == nil || dr.Src.Kind != ir.ImageBitmap || dr.Src.Bitmap == nil {
		return
	}
	if w.streaming == StreamingFilter && dr.SrcArea.Area() < streamMinSize {
		return
	}
	d.streamable = true
	d.frames = 1
	if w.graduality(d) != GradualityLow {
		d.gradual = 1
		d.lastGradual = 1
	}
}

// graduality returns the cached source graduality of a copy drawable.
func (w *Worker) graduality(d *Drawable) Graduality {
	if d.graduality != GradualityUnknown {
		return d.graduality
	}
	if w.streaming != StreamingFilter {
		d.graduality = GradualityNotAvailable
	} else {
		d.graduality = measureGraduality(d.draw.Src.Bitmap)
	}
	return d.graduality
}

// isNextFrame reports whether candidate continues a run whose last frame
// had the given source size, destination and time.
func (w *Worker) isNextFrame(candidate *Drawable, width, height int32, dest region.Rect, last time.Time, s *Stream) bool {
	if !candidate.streamable {
		return false
	}
	limit := w.opts.streamDetectionDelta
	if s != nil {
		limit = w.opts.streamContinuousDelta
	}
	if candidate.created.Sub(last) > limit {
		return false
	}
	if candidate.draw.BBox != dest {
		return false
	}
	if cw, ch := candidate.srcSize(); cw != width || ch != height {
		return false
	}
	if s != nil && s.topDown != candidate.topDown() {
		return false
	}
	return true
}

// streamMaintenance is called for every drawable prev that the opaque
// candidate covers: the candidate inherits prev's stream or its counters.
func (w *Worker) streamMaintenance(candidate, prev *Drawable) {
	if candidate.stream != nil {
		return
	}
	if s := prev.stream; s != nil {
		if w.isNextFrame(candidate, s.width, s.height, s.dest, s.lastTime, s) {
			w.preStreamItemSwap(s, candidate)
			w.detachStream(s)
			prev.streamable = false
			w.attachStream(candidate, s)
		}
		return
	}
	if !prev.streamable {
		return
	}
	pw, ph := prev.srcSize()
	if w.isNextFrame(candidate, pw, ph, prev.draw.BBox, prev.created, nil) {
		w.streamAddFrame(candidate, prev.frames, prev.gradual, prev.lastGradual)
	}
}

// streamAddFrame counts d as the next frame after a run with the given
// counters and promotes the run once it is long and smooth enough.
func (w *Worker) streamAddFrame(d *Drawable, frames, gradual, lastGradual int) {
	d.framed = true
	d.frames = frames + 1
	d.gradual = gradual
	if w.graduality(d) != GradualityLow {
		if d.frames-lastGradual > streamFramesReset {
			d.frames = 1
			d.gradual = 1
		} else {
			d.gradual++
		}
		d.lastGradual = d.frames
	} else {
		d.lastGradual = lastGradual
	}

	if d.frames >= streamFramesStart && float64(d.gradual)/float64(d.frames) >= streamGradualStart {
		w.createStream(d)
	}
}

func (w *Worker) createStream(d *Drawable) {
	if len(w.freeStreams) == 0 {
		return
	}
	n := len(w.freeStreams) - 1
	s := w.freeStreams[n]
	w.freeStreams = w.freeStreams[:n]

	sw, sh := d.srcSize()
	*s = Stream{
		index:    s.index,
		refs:     1,
		active:   true,
		current:  d,
		lastTime: d.created,
		width:    sw,
		height:   sh,
		dest:     d.draw.BBox,
		topDown:  d.topDown(),
		bitRate:  streamDefaultBitRate,
	}
	d.stream = s
	w.active = append(w.active, s)
	w.stats.StreamsCreated++

	slog.Info("stream created",
		"stream", s.index,
		"dest", s.dest.String(),
		"width", s.width,
		"height", s.height,
	)
	w.record(Event{Kind: EventStreamCreate, Stream: s.index, Detail: map[string]any{
		"dest": s.dest.String(), "width": s.width, "height": s.height,
	}})
	for _, ch := range w.displayChannels() {
		w.agentCreate(ch, s)
	}
}

func (w *Worker) agentCreate(ch *Channel, s *Stream) {
	a := &ch.agents[s.index]
	s.refs++
	*a = streamAgent{stream: s, fps: streamMaxFPS}
	if s.current != nil {
		a.frames = 1
		a.vis = s.current.rgn.Clone()
		a.clip = a.vis.Clone()
	}
	ch.push(&streamCreateItem{agent: a})
}

func (w *Worker) attachStream(d *Drawable, s *Stream) {
	if d.stream != nil || s.current != nil {
		fatal(ErrCodeTreeCorrupt, "attaching stream %d to a busy drawable or stream", s.index)
	}
	s.current = d
	d.stream = s
	s.lastTime = d.created
	s.frames++
	for _, ch := range w.displayChannels() {
		a := &ch.agents[s.index]
		if !a.vis.Equal(d.rgn) {
			a.vis = d.rgn.Clone()
			a.clip = a.vis.Clone()
			ch.pushStreamClip(a)
		}
	}
}

func (w *Worker) detachStream(s *Stream) {
	if s.current == nil || s.current.stream != s {
		fatal(ErrCodeTreeCorrupt, "detaching stream %d without a current frame", s.index)
	}
	s.current.stream = nil
	s.current = nil
}

// preStreamItemSwap accounts for the channel-side fate of the outgoing
// frame and adapts each agent's frame rate once per second of frames.
func (w *Worker) preStreamItemSwap(s *Stream, next *Drawable) {
	for _, ch := range w.displayChannels() {
		a := &ch.agents[s.index]
		if it := s.current.itemFor(ch); it != nil && it.Queued() {
			a.drops++
		}
		if a.frames < a.fps {
			a.frames++
			continue
		}
		drop := float64(a.frames-a.drops) / float64(a.frames)
		switch {
		case drop == 1:
			if a.fps < streamMaxFPS {
				a.fps++
			}
		case drop < 0.9:
			if a.fps > 1 {
				a.fps--
			}
		}
		a.frames = 1
		a.drops = 0
	}
}

// stopStream ends a detached stream on every channel.
func (w *Worker) stopStream(s *Stream) {
	if s.current != nil {
		fatal(ErrCodeTreeCorrupt, "stopping stream %d with a current frame", s.index)
	}
	for _, ch := range w.displayChannels() {
		a := &ch.agents[s.index]
		if a.stream != s {
			continue
		}
		a.vis.Clear()
		a.clip.Clear()
		ch.push(&streamDestroyItem{agent: a})
	}
	for i, cur := range w.active {
		if cur == s {
			w.active = append(w.active[:i], w.active[i+1:]...)
			break
		}
	}
	s.active = false

	slog.Info("stream stopped", "stream", s.index, "frames", s.frames)
	w.record(Event{Kind: EventStreamStop, Stream: s.index, Detail: map[string]any{"frames": int64(s.frames)}})
	w.streamUnref(s)
}

func (w *Worker) streamUnref(s *Stream) {
	if s.refs <= 0 {
		fatal(ErrCodeDoubleRelease, "stream %d released twice", s.index)
	}
	s.refs--
	if s.refs == 0 {
		idx := s.index
		*s = Stream{index: idx}
		w.freeStreams = append(w.freeStreams, s)
	}
}

func (w *Worker) activeStreams() []*Stream {
	return append([]*Stream(nil), w.active...)
}

// detachStreamsBehind detaches every stream showing through rgn. till is
// a drawable already in the tree that flushes must not reach.
func (w *Worker) detachStreamsBehind(rgn region.Region, till *Drawable) {
	channels := w.displayChannels()
	for _, s := range w.activeStreams() {
		detach := false
		for _, ch := range channels {
			if ch.agents[s.index].vis.Intersects(rgn) {
				w.agentDetachGracefully(ch, s, till)
				detach = true
			}
		}
		switch {
		case detach && s.current != nil:
			w.detachStream(s)
		case len(channels) == 0 && s.current != nil && s.current.rgn.Intersects(rgn):
			w.detachStream(s)
		}
	}
}

func (w *Worker) detachStreamGracefully(s *Stream, till *Drawable) {
	for _, ch := range w.displayChannels() {
		w.agentDetachGracefully(ch, s, till)
	}
	if s.current != nil {
		w.detachStream(s)
	}
}

// agentDetachGracefully stops the client playing the stream and makes sure
// it ends up with the right pixels where the stream was visible: either
// the current frame goes out as a plain draw, or it is upgraded, or the
// area is flushed and sent as an image.
func (w *Worker) agentDetachGracefully(ch *Channel, s *Stream, till *Drawable) {
	a := &ch.agents[s.index]
	a.clip.Clear()
	ch.pushStreamClip(a)
	if a.vis.IsEmpty() {
		return
	}
	defer a.vis.Clear()

	if cur := s.current; cur != nil && cur.rgn.Contains(a.vis) {
		if it := cur.itemFor(ch); it != nil && it.Queued() {
			return
		}
		ch.push(newUpgradeItem(w, cur))
		return
	}
	primary := w.surfaces[PrimarySurface]
	if primary == nil {
		return
	}
	area := a.vis.Bounds()
	w.updateArea(primary, area, till)
	w.pushSurfaceAreaImage(ch, primary, area)
}

// streamsUpdateVisibleRegion shrinks the visible region of every other
// stream covered by the opaque drawable d.
func (w *Worker) streamsUpdateVisibleRegion(d *Drawable) {
	if !d.surface.isPrimary() {
		return
	}
	for _, s := range w.active {
		if s.current == d {
			continue
		}
		for _, ch := range w.displayChannels() {
			a := &ch.agents[s.index]
			if a.vis.Intersects(d.rgn) {
				a.vis.Subtract(d.rgn)
				a.clip.Subtract(d.rgn)
				ch.pushStreamClip(a)
			}
		}
	}
}

// useStreamTrace lets a streamable drawable that did not cover a previous
// frame join a live stream or a recently traced run.
func (w *Worker) useStreamTrace(d *Drawable) {
	if !d.streamable || d.framed || d.stream != nil {
		return
	}
	for _, s := range w.active {
		if !w.isNextFrame(d, s.width, s.height, s.dest, s.lastTime, s) {
			continue
		}
		if s.current != nil {
			s.current.streamable = false
			w.preStreamItemSwap(s, d)
			w.detachStream(s)
		}
		w.attachStream(d, s)
		return
	}
	// newest first: the run that just retired carries the highest counters
	for i := 1; i <= streamTraceSize && i <= w.traceNext; i++ {
		t := &w.trace[(w.traceNext-i)%streamTraceSize]
		if w.isNextFrame(d, t.width, t.height, t.dest, t.time, nil) {
			w.streamAddFrame(d, t.frames, t.gradual, t.lastGradual)
			return
		}
	}
}

func (w *Worker) addItemTrace(d *Drawable) {
	if w.streaming == StreamingOff {
		return
	}
	t := &w.trace[w.traceNext%streamTraceSize]
	w.traceNext++
	sw, sh := d.srcSize()
	*t = streamTrace{
		time:        d.created,
		frames:      d.frames,
		gradual:     d.gradual,
		lastGradual: d.lastGradual,
		width:       sw,
		height:      sh,
		dest:        d.draw.BBox,
	}
}

// timeoutStreams stops every stream without a frame for the stream
// timeout.
func (w *Worker) timeoutStreams(now time.Time) {
	for _, s := range w.activeStreams() {
		if now.Before(s.lastTime.Add(w.opts.streamTimeout)) {
			continue
		}
		w.detachStreamGracefully(s, nil)
		w.stopStream(s)
	}
}

// nextStreamDeadline returns when the next stream times out.
func (w *Worker) nextStreamDeadline() (time.Time, bool) {
	var next time.Time
	for _, s := range w.active {
		t := s.lastTime.Add(w.opts.streamTimeout)
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}

func (w *Worker) stopAllStreams() {
	for _, s := range w.activeStreams() {
		if s.current != nil {
			w.detachStream(s)
		}
		w.stopStream(s)
	}
}
