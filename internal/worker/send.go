package worker

import (
	"time"

	"github.com/roach88/redworker/internal/codec"
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

// marshal builds the message for it on ch. A nil message means the item
// produces no output, as for a rate-limited stream frame.
func (w *Worker) marshal(ch *Channel, it item) *Message {
	switch v := it.(type) {
	case *drawItem:
		if s := v.d.stream; s != nil {
			if m, handled := w.streamFrame(ch, v.d, s); handled {
				return m
			}
		}
		return w.drawMessage(ch, v.d)
	case *upgradeItem:
		m := w.drawMessage(ch, v.d)
		m.Draw.Clip = v.rects
		return m
	case *imageItem:
		return &Message{Type: MsgImage, Image: &ImageBody{
			Surface: v.surface,
			Dest:    v.rect,
			Image:   *ch.encodePixels(w, v.pixels, v.rect),
		}}
	case *streamCreateItem:
		s := v.agent.stream
		if s == nil {
			return nil
		}
		return &Message{Type: MsgStreamCreate, Stream: &StreamBody{
			ID:      s.index,
			Surface: PrimarySurface,
			Dest:    s.dest,
			Width:   s.width,
			Height:  s.height,
			TopDown: s.topDown,
			BitRate: s.bitRate,
			Clip:    v.agent.clip.Rects(),
		}}
	case *streamClipItem:
		return &Message{Type: MsgStreamClip, Stream: &StreamBody{ID: v.stream.index, Clip: v.rects}}
	case *streamDestroyItem:
		s := v.agent.stream
		if s == nil {
			return nil
		}
		return &Message{Type: MsgStreamDestroy, Stream: &StreamBody{ID: s.index}}
	case *invalOneItem:
		return &Message{Type: MsgInvalOne, Inval: &InvalBody{Cache: v.cache, ID: v.id}}
	case *invalAllItem:
		return &Message{Type: MsgInvalAll, Inval: &InvalBody{Cache: v.cache}}
	case *surfaceCreateItem:
		return &Message{Type: MsgSurfaceCreate, Surface: &SurfaceBody{
			ID:      v.info.ID,
			Width:   v.info.Width,
			Height:  v.info.Height,
			Format:  v.info.Format,
			Primary: v.info.ID == PrimarySurface,
		}}
	case *surfaceDestroyItem:
		return &Message{Type: MsgSurfaceDestroy, Surface: &SurfaceBody{ID: v.surface, Primary: v.surface == PrimarySurface}}
	case *verbItem:
		return &Message{Type: v.verb}
	case *setAckItem:
		gen := ch.window.SetAck(ch.ackWindow)
		return &Message{Type: MsgSetAck, Ack: &AckBody{Generation: gen, Window: ch.ackWindow}}
	case *migrateItem:
		body := &MigrateBody{DictionaryImages: -1, Serial: ch.serial.Current() + 1}
		if ch.dict != nil {
			body.DictionaryImages = len(ch.dict.Freeze().Images)
		}
		return &Message{Type: MsgMigrate, Migrate: body}
	case *cursorItem:
		return ch.cursorMessage(cursorMessageType(v.op), v.state, v.op == ir.CursorSet)
	case *cursorInitItem:
		return ch.cursorMessage(MsgCursorInit, v.state, true)
	default:
		fatal(ErrCodeBadCommand, "no message for item kind %s", it.kind())
		return nil
	}
}

func cursorMessageType(op ir.CursorOp) MessageType {
	switch op {
	case ir.CursorSet:
		return MsgCursorSet
	case ir.CursorMove:
		return MsgCursorMove
	case ir.CursorHide:
		return MsgCursorHide
	default:
		return MsgCursorTrail
	}
}

func (ch *Channel) cursorMessage(t MessageType, st cursorState, withShape bool) *Message {
	body := &CursorBody{
		Pos:            st.pos,
		Visible:        st.visible,
		TrailLength:    st.trailLength,
		TrailFrequency: st.trailFrequency,
	}
	if withShape {
		body.Shape = ch.cursorShapeData(st.shape)
	}
	return &Message{Type: t, Cursor: body}
}

// streamFrame sends d as a frame of s. handled is false when the channel
// does not know the stream and d must go out as a plain draw.
func (w *Worker) streamFrame(ch *Channel, d *Drawable, s *Stream) (m *Message, handled bool) {
	if s.index >= len(ch.agents) {
		return nil, false
	}
	a := &ch.agents[s.index]
	if a.stream != s {
		return nil, false
	}
	now := w.clock.Now()
	fps := a.fps
	if fps <= 0 {
		fps = streamMaxFPS
	}
	if !a.lastSend.IsZero() && now.Sub(a.lastSend) < time.Second/time.Duration(fps) {
		a.frames--
		a.drops++
		w.stats.FramesDropped++
		return nil, true
	}
	a.lastSend = now

	img := cropBitmap(d.draw.Src.Bitmap, d.draw.SrcArea)
	enc, err := ch.chain.Quic.Encode(img)
	if err != nil {
		enc = codec.Raw(img)
	}
	s.sampleBitRate(d, now, len(enc.Data))
	w.stats.FramesSent++
	return &Message{Type: MsgStreamData, Stream: &StreamBody{
		ID:       s.index,
		Time:     now.UnixMilli(),
		Encoding: enc.Kind,
		Data:     enc.Data,
	}}, true
}

// cropBitmap returns the rows of area inside b as an encoder input.
func cropBitmap(b *ir.Bitmap, area region.Rect) *codec.Image {
	bpp := b.Format.BytesPerPixel()
	area = area.Intersect(region.XYWH(0, 0, b.Width, b.Height))
	w, h := int(area.Width()), int(area.Height())
	row := w * bpp
	out := make([]byte, 0, row*h)
	for y := 0; y < h; y++ {
		line := int(area.Y1) + y
		if !b.TopDown {
			line = int(b.Height) - 1 - line
		}
		off := line*int(b.Stride) + int(area.X1)*bpp
		out = append(out, b.Data[off:off+row]...)
	}
	return &codec.Image{Format: b.Format, Width: w, Height: h, Stride: row, TopDown: true, Pixels: out}
}

func (w *Worker) drawMessage(ch *Channel, d *Drawable) *Message {
	dr := d.draw
	body := &DrawBody{
		Surface:          dr.Surface,
		Type:             dr.Type,
		Effect:           dr.Effect,
		BBox:             dr.BBox,
		Clip:             append([]region.Rect(nil), dr.Clip...),
		Brush:            dr.Brush,
		Rop:              dr.Rop,
		SrcArea:          dr.SrcArea,
		SrcPos:           dr.SrcPos,
		Alpha:            dr.Alpha,
		TransparentColor: dr.TransparentColor,
	}
	if dr.Src != nil {
		body.Src = ch.imageData(w, d, &body.FreeList)
	}
	if d.selfBitmap != nil {
		body.SelfBitmap = ch.encodePixels(w, d.selfBitmap, dr.SelfArea)
	}
	return &Message{Type: MsgDraw, Draw: body}
}

// imageData returns the source image of d as sent on ch: a surface
// reference, a pixmap cache hit or encoded pixels.
func (ch *Channel) imageData(w *Worker, d *Drawable, freeList *[]uint64) *ImageData {
	img := d.draw.Src
	if img.Kind == ir.ImageSurface {
		return &ImageData{Source: SourceSurface, Surface: img.Surface}
	}
	b := img.Bitmap
	id := img.ID
	if id == 0 && img.CacheMe {
		id = ir.BitmapID(b)
	}
	if img.CacheMe && ch.pixmaps.TryHit(id) {
		return &ImageData{Source: SourceCache, ID: id}
	}

	in := &codec.Image{
		ID:      id,
		Format:  b.Format,
		Width:   int(b.Width),
		Height:  int(b.Height),
		Stride:  int(b.Stride),
		TopDown: b.TopDown,
		Pixels:  b.Data,
	}
	cmd := d.cmd
	retained := false
	if cmd != nil {
		w.retainCommand(cmd)
		retained = true
		in.Release = func() { w.releaseCommand(cmd) }
	}
	enc := ch.chain.Encode(w.compression, photographic(d), in)
	if retained && (enc.Kind != codec.KindGLZ || id == 0) {
		w.releaseCommand(cmd)
	}

	out := &ImageData{
		Source:   SourceEncoded,
		ID:       id,
		Encoding: enc.Kind,
		Ref:      enc.Ref,
		Format:   b.Format,
		Width:    b.Width,
		Height:   b.Height,
		TopDown:  b.TopDown,
		Data:     enc.Data,
	}
	if img.CacheMe && id != 0 {
		evicted, ok := ch.pixmaps.Insert(id, int64(in.RawSize()))
		out.CacheMe = ok
		*freeList = append(*freeList, evicted...)
	}
	return out
}

// photographic reports whether the source of d is smooth enough for the
// photographic encoder.
func photographic(d *Drawable) bool {
	g := d.graduality
	if (g == GradualityUnknown || g == GradualityNotAvailable) && d.draw.Src.Bitmap != nil {
		g = measureGraduality(d.draw.Src.Bitmap)
	}
	return g == GradualityMedium || g == GradualityHigh
}

// encodePixels encodes packed RGBA pixels covering rect.
func (ch *Channel) encodePixels(w *Worker, pixels []byte, rect region.Rect) *ImageData {
	b := &ir.Bitmap{
		Format:  ir.FormatRGBA,
		Width:   rect.Width(),
		Height:  rect.Height(),
		Stride:  rect.Width() * 4,
		TopDown: true,
		Data:    pixels,
	}
	in := &codec.Image{
		Format:  b.Format,
		Width:   int(b.Width),
		Height:  int(b.Height),
		Stride:  int(b.Stride),
		TopDown: true,
		Pixels:  pixels,
	}
	mode := w.compression
	if mode == codec.ModeGLZ || mode == codec.ModeAutoGLZ {
		mode = codec.ModeAutoLZ
	}
	var enc codec.Encoded
	if ch.chain != nil {
		g := measureGraduality(b)
		enc = ch.chain.Encode(mode, g == GradualityMedium || g == GradualityHigh, in)
	} else {
		enc = codec.Raw(in)
	}
	return &ImageData{
		Source:   SourceEncoded,
		Encoding: enc.Kind,
		Format:   b.Format,
		Width:    b.Width,
		Height:   b.Height,
		TopDown:  true,
		Data:     enc.Data,
	}
}

// pushSurfaceAreaImage queues the current pixels of area on s.
func (w *Worker) pushSurfaceAreaImage(ch *Channel, s *surface, area region.Rect) {
	area = area.Intersect(s.bounds())
	if area.Empty() {
		return
	}
	pixels, err := w.canvas.ReadPixels(s.id, area)
	if err != nil {
		fatalWith(ErrCodeBadSurface, map[string]string{"error": err.Error()}, "reading surface %d", s.id)
	}
	ch.push(&imageItem{surface: s.id, rect: area, pixels: pixels})
}
