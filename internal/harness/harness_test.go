package harness

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redworker/internal/store"
)

func runFixture(t *testing.T, name string) *Result {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func TestRun_Fixtures(t *testing.T) {
	for _, name := range []string{"surface_lifecycle", "display_basic", "bad_draw"} {
		t.Run(name, func(t *testing.T) {
			result := runFixture(t, name)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_DisplayTrace(t *testing.T) {
	result := runFixture(t, "display_basic")
	require.True(t, result.Pass, "errors: %v", result.Errors)

	var sent []string
	for _, ev := range result.Trace {
		if ev.Kind == "message_sent" {
			assert.Equal(t, "display", ev.Channel)
			sent = append(sent, ev.Message)
		}
	}
	assert.Equal(t, []string{"set_ack", "surface_create", "image", "draw"}, sent)

	// serials count up per channel
	var serial uint64
	for _, ev := range result.Trace {
		if ev.Kind == "message_sent" {
			assert.Equal(t, serial+1, ev.Serial)
			serial = ev.Serial
		}
	}
	assert.Equal(t, int64(1), result.State["channels"])
	assert.Equal(t, uint32(0xff0000), result.Pixels[pixelKey(0, 10, 10)])
}

func TestRun_FailingAssertionsReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: failing
surfaces: [{ id: 0, width: 16, height: 16 }]
steps: [{ run: 1 }]
assertions:
  - { type: trace_count, name: session_start, count: 2 }
  - { type: worker_state, field: surfaces, value: 1 }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "2 occurrences of session_start")
}

func TestRun_UnexpectedStepErrorAborts(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: unexpected
surfaces: [{ id: 0, width: 16, height: 16 }]
steps:
  - draw: { surface: 3, bbox: [0, 0, 4, 4] }
  - run: 1
assertions:
  - { type: worker_state, field: draws, value: 0 }
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[1]")
	assert.Contains(t, err.Error(), "BAD_SURFACE")
}

func TestRun_ExpectedErrorMustOccur(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: no_error
surfaces: [{ id: 0, width: 16, height: 16 }]
steps:
  - run: 1
    error: BAD_SURFACE
assertions:
  - { type: worker_state, field: draws, value: 0 }
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected BAD_SURFACE")
}

func TestRun_InvalidConfig(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_config
config: "num_drawables = 1"
surfaces: [{ id: 0, width: 16, height: 16 }]
steps: [{ run: 1 }]
assertions:
  - { type: worker_state, field: draws, value: 0 }
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario config")
}

func TestRun_DeferredChannelAndDisconnect(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: deferred
surfaces: [{ id: 0, width: 16, height: 16 }]
channels:
  - { name: late, deferred: true, ack_window: 0 }
steps:
  - control: { op: connect, channel: late }
  - run: 1
  - control: { op: disconnect, channel: late }
assertions:
  - type: trace_order
    channel: late
    names: [channel_connect, surface_create, image, channel_disconnect]
  - type: trace_count
    name: set_ack
    count: 0
  - type: worker_state
    field: channels
    value: 0
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWith_PersistentJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "display_basic.yaml"))
	require.NoError(t, err)
	scenario.Session = "persisted"

	result, err := RunWith(context.Background(), scenario, RunOptions{Journal: path})
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	summary, err := st.ReplaySession(context.Background(), "persisted")
	require.NoError(t, err)
	assert.Equal(t, len(result.Trace), summary.Events)
	assert.Empty(t, summary.Gaps)
	assert.Equal(t, []uint32{0}, summary.Surfaces)
	require.Len(t, summary.Channels, 1)
	assert.False(t, summary.Channels[0].Open)
	assert.Equal(t, "worker stopped", summary.Channels[0].Reason)
	assert.Equal(t, 1, summary.Channels[0].Messages["draw"])
}

func TestRunWith_ConfigJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "from_config.db")
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "surface_lifecycle.yaml"))
	require.NoError(t, err)
	scenario.Config = "journal = " + strconv.Quote(path)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	events, err := st.ReadEvents(context.Background(), "scenario", store.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, len(result.Trace))
}
