package worker

// EventKind names a journaled worker event.
type EventKind string

const (
	EventSessionStart      EventKind = "session_start"
	EventChannelConnect    EventKind = "channel_connect"
	EventChannelDisconnect EventKind = "channel_disconnect"
	EventSurfaceCreate     EventKind = "surface_create"
	EventSurfaceDestroy    EventKind = "surface_destroy"
	EventStreamCreate      EventKind = "stream_create"
	EventStreamStop        EventKind = "stream_stop"
	EventMessageSent       EventKind = "message_sent"
)

// Event is one journal record. Seq orders the events of a session.
type Event struct {
	Session string
	Seq     uint64
	Kind    EventKind
	Channel string
	Surface uint32
	Stream  int
	Serial  uint64
	Message string
	Detail  map[string]any
}

// Journal persists worker events. Record is called from the worker
// goroutine; a failing journal is logged and otherwise ignored.
type Journal interface {
	Record(ev Event) error
}
