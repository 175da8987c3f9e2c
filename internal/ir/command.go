package ir

import "github.com/roach88/redworker/internal/region"

// Handle identifies the command-source resource backing a command. The
// worker returns it through the source's release call exactly once.
type Handle uint64

// CommandKind distinguishes the payload carried by a Command.
type CommandKind int

const (
	// CommandDraw carries a Draw.
	CommandDraw CommandKind = iota + 1
	// CommandUpdate carries an Update.
	CommandUpdate
	// CommandMessage carries a Message.
	CommandMessage
	// CommandSurface carries a SurfaceCmd.
	CommandSurface
	// CommandCursor carries a CursorCmd.
	CommandCursor
)

// String returns the command kind name used in logs and traces.
func (k CommandKind) String() string {
	switch k {
	case CommandDraw:
		return "draw"
	case CommandUpdate:
		return "update"
	case CommandMessage:
		return "message"
	case CommandSurface:
		return "surface"
	case CommandCursor:
		return "cursor"
	default:
		return "unknown"
	}
}

// Command is one entry pulled from the command source.
//
// Exactly one payload pointer matching Kind is set.
type Command struct {
	Kind   CommandKind
	Handle Handle
	// Group and Slot name the memory slot the command memory lives in.
	Group uint32
	Slot  uint32

	Draw    *Draw
	Update  *Update
	Message *Message
	Surface *SurfaceCmd
	Cursor  *CursorCmd
}

// Point is a pixel position.
type Point struct {
	X, Y int32
}

// Update asks the worker to flush everything drawn to Area of Surface.
type Update struct {
	Surface  uint32
	Area     region.Rect
	UpdateID uint32
}

// Message is a guest log line.
type Message struct {
	Text string
}

// SurfaceOp is the operation of a SurfaceCmd.
type SurfaceOp int

const (
	// SurfaceCreate allocates a surface slot.
	SurfaceCreate SurfaceOp = iota + 1
	// SurfaceDestroy releases a surface slot.
	SurfaceDestroy
)

// SurfaceCmd creates or destroys a render target.
type SurfaceCmd struct {
	Op     SurfaceOp
	ID     uint32
	Width  int32
	Height int32
	// Stride is negative for bottom-up surfaces.
	Stride int32
	Format Format
	Data   []byte
}

// CursorOp is the operation of a CursorCmd.
type CursorOp int

const (
	// CursorSet installs a new shape at Pos.
	CursorSet CursorOp = iota + 1
	// CursorMove moves the cursor.
	CursorMove
	// CursorHide hides the cursor.
	CursorHide
	// CursorTrail configures the cursor trail.
	CursorTrail
)

// CursorShape is a cursor image. Shapes with a non-zero ID are cacheable by
// the client.
type CursorShape struct {
	ID     uint64
	Width  int32
	Height int32
	HotX   int32
	HotY   int32
	Data   []byte
}

// CursorCmd changes cursor state.
type CursorCmd struct {
	Op      CursorOp
	Pos     Point
	Visible bool
	Shape   *CursorShape
	// Trail parameters for CursorTrail.
	TrailLength    uint16
	TrailFrequency uint16
}
