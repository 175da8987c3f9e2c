package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateCommand_MissingArgs(t *testing.T) {
	_, err := executeValidate(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestValidateCommand_ValidFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "worker.toml", "num_streams = 4\nstreaming_video = \"all\"\n")
	scenario := writeFile(t, dir, "fill.yaml", passingScenario)

	out, err := executeValidate(t, "text", cfg, scenario)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+cfg+" (config)")
	assert.Contains(t, out, "✓ "+scenario+" (scenario)")
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"unknown key", "num_widgets = 3\n", "unknown config keys: num_widgets"},
		{"schema violation", "num_drawables = 1\n", "invalid config"},
		{"bad toml", "num_streams = \n", "decode config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.toml", tt.content)
			out, err := executeValidate(t, "text", path)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "✗ "+path)
			assert.Contains(t, out, tt.errMsg)
		})
	}
}

func TestValidateCommand_InvalidScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "fill.yaml", passingScenario)
	bad := writeFile(t, dir, "bad.yml", "name: x\nsurfaces: []\nsteps: [{ run: 1 }]\nassertions: [{ type: trace_count, name: draw }]\n")

	out, err := executeValidate(t, "json", good, bad)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Files, 2)
	assert.True(t, resp.Data.Files[0].Valid)
	assert.False(t, resp.Data.Files[1].Valid)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "at least one surface")
}

func TestValidateCommand_ScenarioConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cfg.yaml", `
name: cfg
config: "num_drawables = 1"
surfaces: [{ id: 0, width: 8, height: 8 }]
steps: [{ run: 1 }]
assertions: [{ type: trace_count, name: draw, count: 0 }]
`)
	out, err := executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Contains(t, out, "scenario config")
}

func TestValidateCommand_CommandErrors(t *testing.T) {
	_, err := executeValidate(t, "text", "/nonexistent/worker.toml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	path := writeFile(t, t.TempDir(), "notes.txt", "hello")
	_, err = executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unsupported file type ".txt"`)
}
