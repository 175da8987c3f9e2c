package worker

import (
	"github.com/roach88/redworker/internal/codec"
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

// MessageType is the type of an outgoing message.
type MessageType int

const (
	MsgDraw MessageType = iota + 1
	MsgImage
	MsgSurfaceCreate
	MsgSurfaceDestroy
	MsgStreamCreate
	MsgStreamData
	MsgStreamClip
	MsgStreamDestroy
	MsgStreamDestroyAll
	MsgInvalOne
	MsgInvalAll
	MsgSetAck
	MsgMigrate
	MsgMark
	MsgReset
	MsgCursorInit
	MsgCursorReset
	MsgCursorSet
	MsgCursorMove
	MsgCursorHide
	MsgCursorTrail
)

var messageNames = map[MessageType]string{
	MsgDraw:             "draw",
	MsgImage:            "image",
	MsgSurfaceCreate:    "surface_create",
	MsgSurfaceDestroy:   "surface_destroy",
	MsgStreamCreate:     "stream_create",
	MsgStreamData:       "stream_data",
	MsgStreamClip:       "stream_clip",
	MsgStreamDestroy:    "stream_destroy",
	MsgStreamDestroyAll: "stream_destroy_all",
	MsgInvalOne:         "inval_one",
	MsgInvalAll:         "inval_all",
	MsgSetAck:           "set_ack",
	MsgMigrate:          "migrate",
	MsgMark:             "mark",
	MsgReset:            "reset",
	MsgCursorInit:       "cursor_init",
	MsgCursorReset:      "cursor_reset",
	MsgCursorSet:        "cursor_set",
	MsgCursorMove:       "cursor_move",
	MsgCursorHide:       "cursor_hide",
	MsgCursorTrail:      "cursor_trail",
}

// String returns the message type name used in traces.
func (t MessageType) String() string {
	if n, ok := messageNames[t]; ok {
		return n
	}
	return "unknown"
}

// ParseMessageType maps a name produced by String back to a MessageType.
func ParseMessageType(s string) (MessageType, bool) {
	for t, n := range messageNames {
		if n == s {
			return t, true
		}
	}
	return 0, false
}

// Message is one outgoing message. Exactly the body matching Type is set;
// verbs carry none.
type Message struct {
	Serial uint64
	Type   MessageType

	Draw    *DrawBody
	Image   *ImageBody
	Surface *SurfaceBody
	Stream  *StreamBody
	Inval   *InvalBody
	Ack     *AckBody
	Migrate *MigrateBody
	Cursor  *CursorBody
}

// ImageSource says how an image reached the message.
type ImageSource int

const (
	// SourceEncoded carries pixels compressed by Encoding.
	SourceEncoded ImageSource = iota + 1
	// SourceCache refers to an image the client holds in its pixmap cache.
	SourceCache
	// SourceSurface refers to another surface.
	SourceSurface
)

// ImageData is an image inside a message.
type ImageData struct {
	Source   ImageSource
	ID       uint64
	Surface  uint32
	Encoding codec.Kind
	// Ref is set for dictionary back references.
	Ref bool
	// CacheMe asks the client to keep the image in its pixmap cache.
	CacheMe bool
	Format  ir.Format
	Width   int32
	Height  int32
	TopDown bool
	Data    []byte
}

// DrawBody is a draw command as sent to the client.
type DrawBody struct {
	Surface uint32
	Type    ir.DrawType
	Effect  ir.Effect
	BBox    region.Rect
	Clip    []region.Rect
	Brush   ir.Brush
	Rop     ir.Rop
	Src     *ImageData
	SrcArea region.Rect
	SrcPos  ir.Point
	Alpha   uint8
	// TransparentColor is the key color of transparent draws.
	TransparentColor uint32
	SelfBitmap       *ImageData
	// FreeList names pixmap cache entries the client must drop first.
	FreeList []uint64
}

// ImageBody puts pixels read back from a surface at Dest.
type ImageBody struct {
	Surface uint32
	Dest    region.Rect
	Image   ImageData
}

// SurfaceBody creates or destroys a client surface.
type SurfaceBody struct {
	ID      uint32
	Width   int32
	Height  int32
	Format  ir.Format
	Primary bool
}

// StreamBody carries stream creation, clipping and frame data.
type StreamBody struct {
	ID      int
	Surface uint32
	Dest    region.Rect
	Width   int32
	Height  int32
	TopDown bool
	BitRate uint64
	Clip    []region.Rect
	// Time is the frame timestamp in milliseconds of the worker clock.
	Time     int64
	Encoding codec.Kind
	Data     []byte
}

// InvalBody names cache entries to drop.
type InvalBody struct {
	Cache string
	ID    uint64
}

// AckBody announces a new ack window generation.
type AckBody struct {
	Generation uint32
	Window     int
}

// MigrateBody starts a migration of the channel.
type MigrateBody struct {
	// DictionaryImages is the number of images in the frozen dictionary
	// window, -1 when the channel has no dictionary.
	DictionaryImages int
	Serial           uint64
}

// CursorBody carries cursor state.
type CursorBody struct {
	Pos            ir.Point
	Visible        bool
	Shape          *CursorShapeData
	TrailLength    uint16
	TrailFrequency uint16
}

// CursorShapeData is a cursor shape, or a reference to one the client has
// cached.
type CursorShapeData struct {
	ID      uint64
	Cached  bool
	CacheMe bool
	Width   int32
	Height  int32
	HotX    int32
	HotY    int32
	Data    []byte
}

// size returns the payload bytes of m, used in journal details.
func (m *Message) size() int {
	n := 0
	img := func(d *ImageData) {
		if d != nil {
			n += len(d.Data)
		}
	}
	if m.Draw != nil {
		img(m.Draw.Src)
		img(m.Draw.SelfBitmap)
	}
	if m.Image != nil {
		n += len(m.Image.Image.Data)
	}
	if m.Stream != nil {
		n += len(m.Stream.Data)
	}
	if m.Cursor != nil && m.Cursor.Shape != nil {
		n += len(m.Cursor.Shape.Data)
	}
	return n
}
