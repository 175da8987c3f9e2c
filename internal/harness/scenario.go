package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/worker"
)

// Scenario drives one worker through a sequence of guest commands, client
// events and control messages, then asserts on the journal and the final
// worker state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is TOML applied over the default configuration.
	Config string `yaml:"config,omitempty"`

	// Session is the journal session id. Defaults to "scenario".
	Session string `yaml:"session,omitempty"`

	// Surfaces are created before the first step, in order.
	Surfaces []SurfaceSpec `yaml:"surfaces"`

	// Channels are connected after the surfaces unless deferred.
	Channels []ChannelSpec `yaml:"channels,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// SurfaceSpec describes a surface to create.
type SurfaceSpec struct {
	ID     uint32 `yaml:"id"`
	Width  int32  `yaml:"width"`
	Height int32  `yaml:"height"`
	// Format defaults to rgb32.
	Format string `yaml:"format,omitempty"`
}

// ChannelSpec describes a client channel.
type ChannelSpec struct {
	// Name refers to the channel in steps, assertions and the trace.
	Name string `yaml:"name"`
	// Kind is display (default) or cursor.
	Kind string `yaml:"kind,omitempty"`
	// AckWindow overrides the configured ack window when set.
	AckWindow *int `yaml:"ack_window,omitempty"`
	// Deferred channels are connected by a connect control step.
	Deferred bool `yaml:"deferred,omitempty"`
}

// Rect is x1, y1, x2, y2.
type Rect [4]int32

// Step is one scenario step. Exactly one field is set.
type Step struct {
	Draw    *DrawStep    `yaml:"draw,omitempty"`
	Update  *AreaStep    `yaml:"update,omitempty"`
	Cursor  *CursorStep  `yaml:"cursor,omitempty"`
	Control *ControlStep `yaml:"control,omitempty"`
	Ack     *AckStep     `yaml:"ack,omitempty"`
	Repeat  *RepeatStep  `yaml:"repeat,omitempty"`

	// Advance moves the worker clock, e.g. "40ms".
	Advance string `yaml:"advance,omitempty"`
	// Run performs that many worker loop iterations.
	Run int `yaml:"run,omitempty"`
	// Block switches a channel's connection into would-block mode.
	Block string `yaml:"block,omitempty"`
	// Unblock lets a blocked channel write again and resumes it.
	Unblock string `yaml:"unblock,omitempty"`

	// Error is the invariant error code the step must fail with, e.g.
	// BAD_SURFACE.
	Error string `yaml:"error,omitempty"`
}

// DrawStep queues a draw command.
type DrawStep struct {
	// Type defaults to fill.
	Type    string `yaml:"type,omitempty"`
	Surface uint32 `yaml:"surface,omitempty"`
	// Effect defaults to opaque.
	Effect string `yaml:"effect,omitempty"`
	BBox   Rect   `yaml:"bbox"`
	Clip   []Rect `yaml:"clip,omitempty"`
	Color  uint32 `yaml:"color,omitempty"`
	// Rop is put (default), or, and or xor.
	Rop   string     `yaml:"rop,omitempty"`
	Image *ImageStep `yaml:"image,omitempty"`
	// Source makes a copy read another surface.
	Source  *uint32  `yaml:"source,omitempty"`
	SrcArea *Rect    `yaml:"src_area,omitempty"`
	SrcPos  []int32  `yaml:"src_pos,omitempty"`
	Alpha   uint8    `yaml:"alpha,omitempty"`
	Self    *Rect    `yaml:"self_bitmap,omitempty"`
	Group   uint32   `yaml:"group,omitempty"`
	Slot    uint32   `yaml:"slot,omitempty"`
	Key     *uint32  `yaml:"transparent_color,omitempty"`
}

// ImageStep describes a generated source bitmap.
type ImageStep struct {
	// Pattern is gradient (smooth), checker (sharp) or solid.
	Pattern string `yaml:"pattern"`
	Width   int32  `yaml:"width"`
	Height  int32  `yaml:"height"`
	Color   uint32 `yaml:"color,omitempty"`
	// ID is the content id; zero lets the image never be cached.
	ID    uint64 `yaml:"id,omitempty"`
	Cache bool   `yaml:"cache,omitempty"`
}

// AreaStep names an area of a surface.
type AreaStep struct {
	Surface uint32 `yaml:"surface,omitempty"`
	Area    Rect   `yaml:"area"`
}

// CursorStep queues a cursor command.
type CursorStep struct {
	// Op is set, move, hide or trail.
	Op     string `yaml:"op"`
	X      int32  `yaml:"x,omitempty"`
	Y      int32  `yaml:"y,omitempty"`
	Width  int32  `yaml:"width,omitempty"`
	Height int32  `yaml:"height,omitempty"`
	// Shape is the shape id of set; zero derives it from the pixels.
	Shape  uint64 `yaml:"shape,omitempty"`
	Length uint16 `yaml:"length,omitempty"`
	Freq   uint16 `yaml:"frequency,omitempty"`
}

// ControlStep sends a control message to the worker.
type ControlStep struct {
	// Op names the control, see controlOps.
	Op      string `yaml:"op"`
	Channel string `yaml:"channel,omitempty"`
	Surface uint32 `yaml:"surface,omitempty"`
	Area    *Rect  `yaml:"area,omitempty"`
	Width   int32  `yaml:"width,omitempty"`
	Height  int32  `yaml:"height,omitempty"`
	Mode    string `yaml:"mode,omitempty"`
	Verb    string `yaml:"verb,omitempty"`
}

var controlOps = map[string]bool{
	"connect":           true,
	"disconnect":        true,
	"migrate":           true,
	"create_surface":    true,
	"destroy_surface":   true,
	"destroy_surfaces":  true,
	"update_area":       true,
	"start":             true,
	"stop":              true,
	"oom":               true,
	"reset_image_cache": true,
	"reset_cursor":      true,
	"set_streaming":     true,
	"set_compression":   true,
	"push_verb":         true,
}

// AckStep delivers client acknowledgements.
type AckStep struct {
	Channel string `yaml:"channel"`
	// Sync, when set, first confirms that ack window generation.
	Sync *uint32 `yaml:"sync,omitempty"`
	// Count is the number of acks, default 1.
	Count int `yaml:"count,omitempty"`
}

// RepeatStep runs Steps Count times.
type RepeatStep struct {
	Count int    `yaml:"count"`
	Steps []Step `yaml:"steps"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Name is a message type or event kind (trace_contains, trace_count).
	Name string `yaml:"name,omitempty"`

	// Channel restricts trace assertions to one channel.
	Channel string `yaml:"channel,omitempty"`

	// Match is a subset of trace event fields (trace_contains).
	Match map[string]any `yaml:"match,omitempty"`

	// Names is the expected order (trace_order).
	Names []string `yaml:"names,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect query the journal (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Field and Value check a worker counter (worker_state).
	Field string `yaml:"field,omitempty"`
	Value int64  `yaml:"value,omitempty"`

	// Surface, X, Y and Color check one canvas pixel (pixel).
	Surface uint32 `yaml:"surface,omitempty"`
	X       int32  `yaml:"x,omitempty"`
	Y       int32  `yaml:"y,omitempty"`
	Color   uint32 `yaml:"color,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertWorkerState   = "worker_state"
	AssertPixel         = "pixel"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks required fields and references.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Surfaces) == 0 {
		return fmt.Errorf("at least one surface is required")
	}
	for i, surf := range s.Surfaces {
		if surf.Width <= 0 || surf.Height <= 0 {
			return fmt.Errorf("surfaces[%d]: width and height must be positive", i)
		}
		if surf.Format != "" {
			if _, ok := ir.ParseFormat(surf.Format); !ok {
				return fmt.Errorf("surfaces[%d]: unknown format %q", i, surf.Format)
			}
		}
	}

	channels := make(map[string]bool)
	for i, ch := range s.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channels[%d]: name is required", i)
		}
		if channels[ch.Name] {
			return fmt.Errorf("channels[%d]: duplicate name %q", i, ch.Name)
		}
		if ch.Kind != "" {
			if _, ok := worker.ParseChannelKind(ch.Kind); !ok {
				return fmt.Errorf("channels[%d]: unknown kind %q", i, ch.Kind)
			}
		}
		channels[ch.Name] = true
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if err := validateSteps(s.Steps, "steps", channels); err != nil {
		return err
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("at least one assertion is required")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i, channels); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(steps []Step, path string, channels map[string]bool) error {
	for i, st := range steps {
		where := fmt.Sprintf("%s[%d]", path, i)
		if n := st.fieldsSet(); n != 1 {
			return fmt.Errorf("%s: exactly one action per step, got %d", where, n)
		}
		switch {
		case st.Draw != nil:
			if err := validateDraw(st.Draw); err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
		case st.Cursor != nil:
			switch st.Cursor.Op {
			case "set":
				if st.Cursor.Width <= 0 || st.Cursor.Height <= 0 {
					return fmt.Errorf("%s: cursor set needs a size", where)
				}
			case "move", "hide", "trail":
			default:
				return fmt.Errorf("%s: unknown cursor op %q", where, st.Cursor.Op)
			}
		case st.Control != nil:
			if !controlOps[st.Control.Op] {
				return fmt.Errorf("%s: unknown control %q", where, st.Control.Op)
			}
			if st.Control.Channel != "" && !channels[st.Control.Channel] {
				return fmt.Errorf("%s: unknown channel %q", where, st.Control.Channel)
			}
		case st.Ack != nil:
			if !channels[st.Ack.Channel] {
				return fmt.Errorf("%s: unknown channel %q", where, st.Ack.Channel)
			}
		case st.Advance != "":
			if _, err := time.ParseDuration(st.Advance); err != nil {
				return fmt.Errorf("%s: advance: %w", where, err)
			}
		case st.Run < 0:
			return fmt.Errorf("%s: run must be positive", where)
		case st.Block != "" || st.Unblock != "":
			name := st.Block + st.Unblock
			if !channels[name] {
				return fmt.Errorf("%s: unknown channel %q", where, name)
			}
		case st.Repeat != nil:
			if st.Repeat.Count <= 0 {
				return fmt.Errorf("%s: repeat count must be positive", where)
			}
			if err := validateSteps(st.Repeat.Steps, where+".steps", channels); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st Step) fieldsSet() int {
	n := 0
	for _, set := range []bool{
		st.Draw != nil, st.Update != nil, st.Cursor != nil, st.Control != nil,
		st.Ack != nil, st.Repeat != nil, st.Advance != "", st.Run != 0,
		st.Block != "", st.Unblock != "",
	} {
		if set {
			n++
		}
	}
	return n
}

func validateDraw(d *DrawStep) error {
	if d.Type != "" {
		if _, ok := ir.ParseDrawType(d.Type); !ok {
			return fmt.Errorf("unknown draw type %q", d.Type)
		}
	}
	if d.Effect != "" {
		if _, ok := ir.ParseEffect(d.Effect); !ok {
			return fmt.Errorf("unknown effect %q", d.Effect)
		}
	}
	if _, ok := rops[d.Rop]; !ok {
		return fmt.Errorf("unknown rop %q", d.Rop)
	}
	if d.Image != nil {
		switch d.Image.Pattern {
		case "gradient", "checker", "solid":
		default:
			return fmt.Errorf("unknown image pattern %q", d.Image.Pattern)
		}
		if d.Image.Width <= 0 || d.Image.Height <= 0 {
			return fmt.Errorf("image needs a size")
		}
	}
	if d.SrcPos != nil && len(d.SrcPos) != 2 {
		return fmt.Errorf("src_pos needs two coordinates")
	}
	return nil
}

func validateAssertion(a Assertion, index int, channels map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Channel != "" && !channels[a.Channel] {
		return fmt.Errorf("assertions[%d]: unknown channel %q", index, a.Channel)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Name == "" && len(a.Match) == 0 {
			return fmt.Errorf("assertions[%d]: name or match is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Names) == 0 {
			return fmt.Errorf("assertions[%d]: names list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertWorkerState:
		if !stateFields[a.Field] {
			return fmt.Errorf("assertions[%d]: unknown worker_state field %q", index, a.Field)
		}
	case AssertPixel:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
