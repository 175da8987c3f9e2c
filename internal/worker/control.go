package worker

import (
	"fmt"
	"log/slog"

	"github.com/roach88/redworker/internal/codec"
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

// Control is a synchronous request to the worker. Every control gets a
// Reply once the worker applied it.
type Control interface {
	controlName() string
}

// CreateSurface creates a surface slot.
type CreateSurface struct {
	ID     uint32
	Width  int32
	Height int32
	Stride int32
	Format ir.Format
	Data   []byte
}

// DestroySurface destroys one surface.
type DestroySurface struct {
	ID uint32
}

// DestroySurfaces destroys every surface.
type DestroySurfaces struct{}

// AddMemSlot registers a guest memory slot.
type AddMemSlot struct {
	Slot MemSlot
}

// DelMemSlot unregisters a guest memory slot.
type DelMemSlot struct {
	Group uint32
	Slot  uint32
}

// ResetMemSlots unregisters every memory slot.
type ResetMemSlots struct{}

// ConnectChannel attaches a client channel. The reply carries its id.
type ConnectChannel struct {
	Kind   ChannelKind
	Conn   Conn
	Client string
	// AckWindow is the number of messages the client acknowledges at once;
	// zero disables flow control.
	AckWindow       int
	PixmapCacheSize int64
	// GLZDictionary and GLZDictionarySize select the shared dictionary;
	// a zero size disables the dictionary encoder.
	GLZDictionary     uint8
	GLZDictionarySize int64
	// Serial is the last serial the client saw, for migrated channels.
	Serial uint64
}

// DisconnectChannel detaches a channel.
type DisconnectChannel struct {
	Channel string
}

// MigrateChannel sends a migrate message and detaches the channel once it
// is out.
type MigrateChannel struct {
	Channel string
}

// SetCompression changes the image compression mode.
type SetCompression struct {
	Mode codec.Mode
}

// SetStreamingVideo changes the streaming mode.
type SetStreamingVideo struct {
	Mode StreamingMode
}

// Start lets the worker process commands.
type Start struct{}

// Stop halts command processing after rendering every tree.
type Stop struct{}

// UpdateArea renders area of a surface and reports what changed on the
// canvas since the last report.
type UpdateArea struct {
	Surface uint32
	Area    region.Rect
}

// Save stops the worker and reports every surface with its pixels.
type Save struct{}

// Restore recreates the surfaces of a save report and starts the worker.
type Restore struct {
	Surfaces []SurfaceInfo
}

// ResetImageCache empties the pixmap caches of every display channel.
type ResetImageCache struct{}

// ResetCursor forgets the cursor.
type ResetCursor struct{}

// Oom renders and frees the older half of the live drawables.
type Oom struct{}

// Receive delivers an inbound client message.
type Receive struct {
	Channel string
	Message ClientMessage
}

// PushVerb queues a message without body on a channel.
type PushVerb struct {
	Channel string
	Verb    MessageType
}

// QueryChannel reports a channel's state.
type QueryChannel struct {
	Channel string
}

func (CreateSurface) controlName() string     { return "create_surface" }
func (DestroySurface) controlName() string    { return "destroy_surface" }
func (DestroySurfaces) controlName() string   { return "destroy_surfaces" }
func (AddMemSlot) controlName() string        { return "add_memslot" }
func (DelMemSlot) controlName() string        { return "del_memslot" }
func (ResetMemSlots) controlName() string     { return "reset_memslots" }
func (ConnectChannel) controlName() string    { return "connect_channel" }
func (DisconnectChannel) controlName() string { return "disconnect_channel" }
func (MigrateChannel) controlName() string    { return "migrate_channel" }
func (SetCompression) controlName() string    { return "set_compression" }
func (SetStreamingVideo) controlName() string { return "set_streaming_video" }
func (Start) controlName() string             { return "start" }
func (Stop) controlName() string              { return "stop" }
func (UpdateArea) controlName() string        { return "update_area" }
func (Save) controlName() string              { return "save" }
func (Restore) controlName() string           { return "restore" }
func (ResetImageCache) controlName() string   { return "reset_image_cache" }
func (ResetCursor) controlName() string       { return "reset_cursor" }
func (Oom) controlName() string               { return "oom" }
func (Receive) controlName() string           { return "receive" }
func (PushVerb) controlName() string          { return "push_verb" }
func (QueryChannel) controlName() string      { return "query_channel" }

// Reply is the answer to a Control. Only the fields of the control's kind
// are set.
type Reply struct {
	Channel  string
	Surfaces []SurfaceInfo
	Dirty    []region.Rect
	Flushed  int
	State    *ChannelState
}

// ErrUnknownChannel is returned for controls naming a channel that is not
// connected.
type ErrUnknownChannel struct {
	Channel string
}

func (e *ErrUnknownChannel) Error() string {
	return fmt.Sprintf("unknown channel %q", e.Channel)
}

// Handle applies ctrl on the calling goroutine, which must be the one
// driving the worker.
func (w *Worker) Handle(ctrl Control) (reply Reply, err error) {
	defer guard(&err)
	slog.Debug("control", "name", ctrl.controlName())

	switch c := ctrl.(type) {
	case CreateSurface:
		w.createSurface(&ir.SurfaceCmd{
			Op: ir.SurfaceCreate, ID: c.ID, Width: c.Width, Height: c.Height,
			Stride: c.Stride, Format: c.Format, Data: c.Data,
		})
	case DestroySurface:
		w.destroySurface(c.ID)
	case DestroySurfaces:
		w.destroyAllSurfaces()
	case AddMemSlot:
		w.addMemSlot(c.Slot)
	case DelMemSlot:
		w.delMemSlot(c.Group, c.Slot)
	case ResetMemSlots:
		w.resetMemSlots()
	case ConnectChannel:
		ch := w.connectChannel(c)
		reply.Channel = ch.id
	case DisconnectChannel:
		ch, err := w.lookup(c.Channel)
		if err != nil {
			return reply, err
		}
		w.disconnectChannel(ch, "requested")
	case MigrateChannel:
		ch, err := w.lookup(c.Channel)
		if err != nil {
			return reply, err
		}
		ch.migrating = true
		ch.push(&migrateItem{})
	case SetCompression:
		w.compression = c.Mode
		slog.Info("image compression changed", "mode", c.Mode.String())
	case SetStreamingVideo:
		w.streaming = c.Mode
		slog.Info("streaming video changed", "mode", c.Mode.String())
	case Start:
		w.running = true
	case Stop:
		w.stop()
	case UpdateArea:
		s := w.liveSurface(c.Surface)
		area := c.Area.Intersect(s.bounds())
		if !area.Empty() {
			w.updateArea(s, area, nil)
			w.cleanupContainers()
		}
		reply.Dirty = s.dirty.Rects()
		s.dirty.Clear()
	case Save:
		w.stop()
		reply.Surfaces = w.save()
	case Restore:
		w.restore(c.Surfaces)
		w.running = true
	case ResetImageCache:
		for _, ch := range w.displayChannels() {
			ch.pixmaps.Reset(ch.pixmaps.Stats().Capacity)
			ch.push(&invalAllItem{cache: pixmapCacheName})
		}
	case ResetCursor:
		w.resetCursor()
	case Oom:
		reply.Flushed = w.flushOldest()
		w.cleanupContainers()
	case Receive:
		ch, err := w.lookup(c.Channel)
		if err != nil {
			return reply, err
		}
		if err := w.receive(ch, c.Message); err != nil {
			w.dropChannel(ch, err)
			return reply, err
		}
	case PushVerb:
		ch, err := w.lookup(c.Channel)
		if err != nil {
			return reply, err
		}
		ch.push(&verbItem{verb: c.Verb})
	case QueryChannel:
		ch, err := w.lookup(c.Channel)
		if err != nil {
			return reply, err
		}
		st := ch.state()
		reply.State = &st
	default:
		fatal(ErrCodeBadCommand, "unknown control %T", ctrl)
	}
	return reply, nil
}

func (w *Worker) lookup(id string) (*Channel, error) {
	ch := w.channel(id)
	if ch == nil || ch.closed {
		return nil, &ErrUnknownChannel{Channel: id}
	}
	return ch, nil
}

// stop renders every tree and halts command processing.
func (w *Worker) stop() {
	for _, s := range w.liveSurfaces() {
		w.flushSurface(s)
	}
	w.running = false
}

func (w *Worker) save() []SurfaceInfo {
	var out []SurfaceInfo
	for _, s := range w.liveSurfaces() {
		info := w.surfaceInfo(s)
		pixels, err := w.canvas.ReadPixels(s.id, s.bounds())
		if err != nil {
			fatalWith(ErrCodeBadSurface, map[string]string{"error": err.Error()}, "reading surface %d", s.id)
		}
		info.Pixels = pixels
		out = append(out, info)
	}
	return out
}

func (w *Worker) restore(infos []SurfaceInfo) {
	for _, info := range infos {
		cmd := &ir.SurfaceCmd{
			Op:     ir.SurfaceCreate,
			ID:     info.ID,
			Width:  info.Width,
			Height: info.Height,
			Stride: info.Stride,
			Format: info.Format,
		}
		if info.Pixels != nil && (info.Format == ir.FormatRGB32 || info.Format == ir.FormatRGBA) {
			cmd.Stride = info.Width * 4
			cmd.Data = rgbaToBGRA(info.Pixels)
		}
		w.createSurface(cmd)
	}
}

// rgbaToBGRA converts packed canvas pixels to the guest byte order.
func rgbaToBGRA(px []byte) []byte {
	out := make([]byte, len(px))
	for i := 0; i+3 < len(px); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = px[i+2], px[i+1], px[i], px[i+3]
	}
	return out
}
