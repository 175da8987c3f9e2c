package worker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/redworker/internal/cache"
	"github.com/roach88/redworker/internal/codec"
	"github.com/roach88/redworker/internal/dict"
	"github.com/roach88/redworker/internal/pipe"
)

// ChannelKind is the kind of a client channel.
type ChannelKind int

const (
	ChannelDisplay ChannelKind = iota + 1
	ChannelCursor
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelDisplay:
		return "display"
	case ChannelCursor:
		return "cursor"
	default:
		return "unknown"
	}
}

// ParseChannelKind maps a name produced by String back to a ChannelKind.
func ParseChannelKind(s string) (ChannelKind, bool) {
	switch s {
	case "display":
		return ChannelDisplay, true
	case "cursor":
		return ChannelCursor, true
	}
	return 0, false
}

const (
	pixmapCacheName = "pixmap"
	cursorCacheName = "cursor"
	cursorCacheSize = 256
)

// Channel is one connected client channel: its pipe, flow control window
// and per-client encoder state. Only the worker goroutine touches it.
type Channel struct {
	w      *Worker
	id     string
	kind   ChannelKind
	client string
	conn   Conn

	pipe      pipe.Pipe
	window    *pipe.Window
	ackWindow int
	serial    *Sequence

	// blocked is set while conn holds a partly written message; inflight
	// is the item that message was built from.
	blocked  bool
	inflight item
	// migrating channels disconnect once their migrate message is out.
	migrating bool
	closed    bool

	pixmaps *pixmapCache
	cursors *cache.Cache
	dict    *dict.Dictionary
	owner   *dict.Owner
	chain   *codec.Chain
	agents  []streamAgent

	stop chan struct{}
	done chan struct{}
}

// ID returns the channel id.
func (ch *Channel) ID() string { return ch.id }

// Kind returns the channel kind.
func (ch *Channel) Kind() ChannelKind { return ch.kind }

// ChannelState is a snapshot of a channel for the outer dispatch loop.
type ChannelState struct {
	ID          string
	Kind        ChannelKind
	PipeSize    int
	Blocked     bool
	Outstanding int
	Serial      uint64
	Items       []ItemKind
}

func (ch *Channel) state() ChannelState {
	st := ChannelState{
		ID:          ch.id,
		Kind:        ch.kind,
		PipeSize:    ch.pipe.Len(),
		Blocked:     ch.blocked,
		Outstanding: ch.window.Outstanding(),
		Serial:      ch.serial.Current(),
	}
	ch.pipe.Each(func(it pipe.Item) {
		st.Items = append(st.Items, it.(item).kind())
	})
	return st
}

// pixmapCache is a client's pixmap cache mirror, shared by the client's
// display channels on this worker.
type pixmapCache struct {
	*cache.Cache
	client string
	refs   int
}

func (w *Worker) acquirePixmapCache(client string, size int64) *pixmapCache {
	if pc, ok := w.pixmaps[client]; ok {
		pc.refs++
		return pc
	}
	pc := &pixmapCache{Cache: cache.New(pixmapCacheName, size), client: client, refs: 1}
	w.pixmaps[client] = pc
	return pc
}

func (w *Worker) releasePixmapCache(pc *pixmapCache) {
	if pc.refs--; pc.refs == 0 {
		delete(w.pixmaps, pc.client)
	}
}

func newChannelID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (w *Worker) connectChannel(c ConnectChannel) *Channel {
	if c.Conn == nil {
		fatal(ErrCodeBadCommand, "connect without a connection")
	}
	ch := &Channel{
		w:         w,
		id:        newChannelID(),
		kind:      c.Kind,
		client:    c.Client,
		conn:      c.Conn,
		window:    pipe.NewWindow(c.AckWindow),
		ackWindow: c.AckWindow,
		serial:    NewSequenceAt(c.Serial),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	switch c.Kind {
	case ChannelDisplay:
		ch.agents = make([]streamAgent, len(w.streams))
		size := c.PixmapCacheSize
		if size <= 0 {
			size = DefaultPixmapCacheSize
		}
		ch.pixmaps = w.acquirePixmapCache(c.Client, size)
		var glz *codec.GLZ
		if c.GLZDictionarySize > 0 {
			d, created := w.dicts.Acquire(dict.Key{Client: c.Client, ID: c.GLZDictionary}, c.GLZDictionarySize)
			ch.dict = d
			ch.owner = dict.NewOwner()
			glz = codec.NewGLZ(d, ch.owner)
			slog.Debug("dictionary attached",
				"channel", ch.id,
				"dictionary", c.GLZDictionary,
				"created", created,
			)
		}
		ch.chain = codec.NewChain(glz)
	case ChannelCursor:
		ch.cursors = cache.New(cursorCacheName, cursorCacheSize)
	default:
		fatal(ErrCodeBadCommand, "unknown channel kind %d", int(c.Kind))
	}

	w.channels = append(w.channels, ch)
	go w.watchWritable(ch)

	if c.AckWindow > 0 {
		ch.push(&setAckItem{})
	}
	switch ch.kind {
	case ChannelDisplay:
		for _, s := range w.liveSurfaces() {
			w.updateArea(s, s.bounds(), nil)
			ch.push(newSurfaceCreateItem(s))
			w.pushSurfaceAreaImage(ch, s, s.bounds())
		}
		for _, s := range w.active {
			w.agentCreate(ch, s)
		}
	case ChannelCursor:
		w.pushCursorInit(ch)
	}

	slog.Info("channel connected",
		"channel", ch.id,
		"kind", ch.kind.String(),
		"client", ch.client,
		"ack_window", c.AckWindow,
	)
	w.record(Event{Kind: EventChannelConnect, Channel: ch.id, Detail: map[string]any{
		"kind": ch.kind.String(), "client": ch.client,
	}})
	return ch
}

// watchWritable forwards writability signals of ch to the run loop.
func (w *Worker) watchWritable(ch *Channel) {
	defer close(ch.done)
	sig := ch.conn.Writable()
	for {
		select {
		case <-ch.stop:
			return
		case _, ok := <-sig:
			if !ok {
				return
			}
			w.writable.add(ch.id)
		}
	}
}

// disconnectChannel clears the pipe of ch, releasing every queued item,
// and closes the connection. A blocked send gets until the detach timeout
// to complete.
func (w *Worker) disconnectChannel(ch *Channel, reason string) {
	if ch.closed {
		return
	}
	ch.closed = true
	close(ch.stop)
	<-ch.done

	if ch.blocked && !ch.waitBlocked(w.opts.detachTimeout) {
		slog.Warn("blocked send timed out on disconnect",
			"channel", ch.id,
			"timeout", w.opts.detachTimeout,
		)
	}
	released := ch.pipe.Clear(func(it pipe.Item) {
		w.releaseItem(it.(item))
	})
	if ch.inflight != nil {
		w.releaseItem(ch.inflight)
		ch.inflight = nil
	}
	for i := range ch.agents {
		a := &ch.agents[i]
		if s := a.stream; s != nil {
			a.stream = nil
			w.streamUnref(s)
		}
	}
	if ch.dict != nil {
		ch.dict.DetachOwner(ch.owner)
		ch.owner.Drain()
		w.dicts.Release(ch.dict)
		ch.dict = nil
	}
	if ch.pixmaps != nil {
		w.releasePixmapCache(ch.pixmaps)
	}
	if err := ch.conn.Close(); err != nil {
		slog.Debug("closing channel connection", "channel", ch.id, "error", err)
	}
	for i, cur := range w.channels {
		if cur == ch {
			w.channels = append(w.channels[:i], w.channels[i+1:]...)
			break
		}
	}

	slog.Info("channel disconnected",
		"channel", ch.id,
		"reason", reason,
		"released", released,
	)
	w.record(Event{Kind: EventChannelDisconnect, Channel: ch.id, Detail: map[string]any{
		"reason": reason, "released": released,
	}})
}

func (ch *Channel) waitBlocked(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for ch.blocked {
		select {
		case <-ch.conn.Writable():
			if err := ch.resumeWrite(); err != nil {
				return false
			}
		case <-deadline.C:
			return false
		}
	}
	return true
}

func (w *Worker) releaseItem(it item) {
	it.release(w)
	w.stats.Released[it.kind()]++
}

func (ch *Channel) push(it item) {
	ch.pipe.Push(it)
	ch.w.stats.Pushed[it.kind()]++
}

func (ch *Channel) pushStreamClip(a *streamAgent) {
	s := a.stream
	if s == nil {
		return
	}
	s.refs++
	ch.push(&streamClipItem{agent: a, stream: s, rects: a.clip.Rects()})
}

// pushDrawable queues d on ch, right behind anchor's item when anchor is
// still queued there.
func (ch *Channel) pushDrawable(d *Drawable, anchor *Drawable) {
	it := &drawItem{ch: ch, d: d}
	d.refs++
	d.items = append(d.items, it)
	if anchor != nil {
		if ai := anchor.itemFor(ch); ai != nil && ai.Queued() {
			ch.pipe.PushAfter(ai, it)
			ch.w.stats.Pushed[ItemDraw]++
			return
		}
	}
	ch.push(it)
}

func (w *Worker) pipesAdd(d *Drawable) {
	for _, ch := range w.displayChannels() {
		ch.pushDrawable(d, nil)
	}
}

func (w *Worker) pipesAddAfter(d, anchor *Drawable) {
	for _, ch := range w.displayChannels() {
		ch.pushDrawable(d, anchor)
	}
}

// pipesRemove takes every still queued item of d out of the pipes.
func (w *Worker) pipesRemove(d *Drawable) {
	for _, it := range append([]*drawItem(nil), d.items...) {
		if it.Queued() {
			it.ch.pipe.Remove(it)
			w.releaseItem(it)
		}
	}
}

// clearSurfaceFromPipes drops queued draws targeting s.
func (w *Worker) clearSurfaceFromPipes(s *surface) {
	for _, ch := range w.displayChannels() {
		var drop []item
		ch.pipe.Each(func(pi pipe.Item) {
			switch v := pi.(type) {
			case *drawItem:
				if v.d.surface == s {
					drop = append(drop, v)
				}
			case *upgradeItem:
				if v.d.surface == s {
					drop = append(drop, v)
				}
			}
		})
		for _, it := range drop {
			ch.pipe.Remove(it)
			w.releaseItem(it)
		}
	}
}

func (w *Worker) displayChannels() []*Channel {
	return w.channelsOf(ChannelDisplay)
}

func (w *Worker) cursorChannels() []*Channel {
	return w.channelsOf(ChannelCursor)
}

func (w *Worker) channelsOf(kind ChannelKind) []*Channel {
	var out []*Channel
	for _, ch := range w.channels {
		if ch.kind == kind && !ch.closed {
			out = append(out, ch)
		}
	}
	return out
}

func (w *Worker) channel(id string) *Channel {
	for _, ch := range w.channels {
		if ch.id == id {
			return ch
		}
	}
	return nil
}

func (ch *Channel) canSend() bool {
	return !ch.closed && !ch.blocked && !ch.window.Waiting() && ch.pipe.Len() > 0
}

// send writes queued items until the pipe is empty, the connection
// blocks or the ack window is full.
func (ch *Channel) send() error {
	w := ch.w
	for ch.canSend() {
		pi, _ := ch.pipe.Pop()
		it := pi.(item)
		m := w.marshal(ch, it)
		if m == nil {
			w.releaseItem(it)
			continue
		}
		m.Serial = ch.serial.Next()
		err := ch.conn.WriteMessage(m)
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			w.releaseItem(it)
			return err
		}
		ch.window.Sent()
		w.stats.Sent++
		w.record(Event{Kind: EventMessageSent, Channel: ch.id, Serial: m.Serial, Message: m.Type.String(),
			Detail: map[string]any{"bytes": m.size()}})
		if err != nil {
			ch.blocked = true
			ch.inflight = it
			return nil
		}
		w.releaseItem(it)
		if ch.migrating && m.Type == MsgMigrate {
			return errMigrated
		}
	}
	return nil
}

var errMigrated = errors.New("channel migrated")

// resumeWrite continues a blocked write.
func (ch *Channel) resumeWrite() error {
	if !ch.blocked {
		return nil
	}
	err := ch.conn.Resume()
	if errors.Is(err, ErrWouldBlock) {
		return nil
	}
	ch.blocked = false
	it := ch.inflight
	ch.inflight = nil
	if it != nil {
		ch.w.releaseItem(it)
	}
	return err
}

// pushAll sends on every channel, disconnecting the ones whose
// connection failed.
func (w *Worker) pushAll() {
	for _, ch := range append([]*Channel(nil), w.channels...) {
		if err := ch.send(); err != nil {
			w.dropChannel(ch, err)
		}
	}
}

func (w *Worker) dropChannel(ch *Channel, err error) {
	switch {
	case errors.Is(err, errMigrated):
		w.disconnectChannel(ch, "migrated")
	case IsProtocolError(err):
		slog.Warn("protocol violation", "channel", ch.id, "error", err)
		w.disconnectChannel(ch, "protocol violation")
	default:
		slog.Warn("channel write failed", "channel", ch.id, "error", err)
		w.disconnectChannel(ch, "write failed")
	}
}

// ClientMessageType is the type of an inbound channel message.
type ClientMessageType int

const (
	ClientAck ClientMessageType = iota + 1
	ClientAckSync
	ClientDisconnecting
)

// ClientMessage is an inbound channel message.
type ClientMessage struct {
	Type       ClientMessageType
	Generation uint32
}

func (w *Worker) receive(ch *Channel, m ClientMessage) error {
	switch m.Type {
	case ClientAck:
		if !ch.window.Ack() {
			slog.Debug("ack for an old generation ignored", "channel", ch.id)
		}
	case ClientAckSync:
		if m.Generation > ch.window.Generation() {
			return &ProtocolError{Channel: ch.id, Message: "ack sync for a generation never announced"}
		}
		ch.window.Sync(m.Generation)
	case ClientDisconnecting:
	default:
		return &ProtocolError{Channel: ch.id, Message: "unknown message type"}
	}
	return nil
}
