package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journalOf runs the fill scenario into a fresh journal and returns its
// path.
func journalOf(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := writeFile(t, dir, "fill.yaml", passingScenario)
	db := filepath.Join(dir, "journal.db")
	_, err := executeRun(t, "text", path, "--db", db)
	require.NoError(t, err)
	return db
}

func executeTrace(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceCommand_RequiresDB(t *testing.T) {
	_, err := executeTrace(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"db" not set`)
}

func TestTraceCommand_MissingJournal(t *testing.T) {
	_, err := executeTrace(t, "text", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal not found")
}

func TestTraceCommand_UnknownKind(t *testing.T) {
	_, err := executeTrace(t, "text", "--db", "x.db", "--kind", "draw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown event kind "draw"`)
}

func TestTraceCommand_Text(t *testing.T) {
	db := journalOf(t)

	out, err := executeTrace(t, "text", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Session fill-")
	assert.Contains(t, out, "[1] session_start")
	assert.Contains(t, out, "message_sent draw")
	assert.Contains(t, out, "channel_disconnect")
	assert.Contains(t, out, "reason=worker stopped")
}

func TestTraceCommand_JSONFiltered(t *testing.T) {
	db := journalOf(t)

	out, err := executeTrace(t, "json", "--db", db, "--kind", "message_sent")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotEmpty(t, resp.Data.Events)

	var messages []string
	for _, ev := range resp.Data.Events {
		assert.Equal(t, "message_sent", ev.Kind)
		messages = append(messages, ev.Message)
	}
	assert.Equal(t, []string{"set_ack", "surface_create", "image", "draw"}, messages)

	out, err = executeTrace(t, "json", "--db", db, "--kind", "message_sent", "--limit", "1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data.Events, 1)
}

func TestTraceCommand_Summary(t *testing.T) {
	db := journalOf(t)

	out, err := executeTrace(t, "json", "--db", db, "--summary")
	require.NoError(t, err)
	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Data.Summary)
	sum := resp.Data.Summary
	assert.Equal(t, []uint32{0}, sum.Surfaces)
	assert.Empty(t, sum.Gaps)
	require.Len(t, sum.Channels, 1)
	assert.Equal(t, "display", sum.Channels[0].Kind)
	assert.False(t, sum.Channels[0].Open)
	assert.Equal(t, 1, sum.Channels[0].Messages["draw"])

	out, err = executeTrace(t, "text", "--db", db, "--summary")
	require.NoError(t, err)
	assert.Contains(t, out, "surfaces: [0]")
	assert.Contains(t, out, "closed: worker stopped")
}

func TestTraceCommand_UnknownSession(t *testing.T) {
	db := journalOf(t)

	out, err := executeTrace(t, "text", "--db", db, "--session", "nope")
	require.NoError(t, err)
	assert.Contains(t, out, "No events for session nope")

	_, err = executeTrace(t, "text", "--db", db, "--session", "nope", "--summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `session "nope" not found`)
}
