package harness

import "github.com/roach88/redworker/internal/worker"

// TraceEvent is one journaled worker event with the channel id replaced by
// the scenario's channel name.
type TraceEvent struct {
	Seq     uint64         `json:"seq"`
	Kind    string         `json:"kind"`
	Channel string         `json:"channel,omitempty"`
	Message string         `json:"message,omitempty"`
	Serial  uint64         `json:"serial,omitempty"`
	Surface uint32         `json:"surface,omitempty"`
	Stream  int            `json:"stream,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// Name is the message type of message_sent events and the event kind of
// every other event.
func (e TraceEvent) Name() string {
	if e.Kind == string(worker.EventMessageSent) {
		return e.Message
	}
	return e.Kind
}

// fields returns the event as a map with every number as int64, for
// subset matching and canonical encoding.
func (e TraceEvent) fields() map[string]any {
	m := map[string]any{
		"seq":  int64(e.Seq),
		"kind": e.Kind,
		"name": e.Name(),
	}
	if e.Channel != "" {
		m["channel"] = e.Channel
	}
	if e.Message != "" {
		m["message"] = e.Message
		m["serial"] = int64(e.Serial)
	}
	switch worker.EventKind(e.Kind) {
	case worker.EventSurfaceCreate, worker.EventSurfaceDestroy:
		m["surface"] = int64(e.Surface)
	case worker.EventStreamCreate, worker.EventStreamStop:
		m["stream"] = int64(e.Stream)
	}
	if len(e.Detail) > 0 && e.Kind != string(worker.EventMessageSent) {
		d := make(map[string]any, len(e.Detail))
		for k, v := range e.Detail {
			d[k] = normalize(v)
		}
		m["detail"] = d
	}
	return m
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace is the session journal in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed assertion messages.
	Errors []string `json:"errors,omitempty"`

	// State holds worker counters captured after the last step, keyed by
	// the names worker_state assertions use.
	State map[string]int64 `json:"state,omitempty"`

	// Pixels holds the colors sampled for pixel assertions.
	Pixels map[string]uint32 `json:"pixels,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]int64),
		Pixels: make(map[string]uint32),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// normalize converts YAML and journal numbers to int64 so that values from
// both sides compare equal.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalize(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalize(elem)
		}
		return out
	default:
		return val
	}
}
