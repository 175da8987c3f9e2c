package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/redworker/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // journal every session to this SQLite file
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name    string   `json:"name"`
	Session string   `json:"session,omitempty"`
	Pass    bool     `json:"pass"`
	Golden  string   `json:"golden,omitempty"` // "match" | "updated" | ""
	Errors  []string `json:"errors,omitempty"`
}

// RunSummary holds the overall result of a run.
type RunSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file-or-dir>",
		Short: "Run worker scenarios",
		Long: `Run scenario files against a fresh worker each, checking their
assertions and, when a golden file exists next to the scenario under
golden/<name>.golden, the canonical trace.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  redworker run ./scenarios
  redworker run ./scenarios --filter "stream_*"
  redworker run ./scenarios --update
  redworker run ./scenarios/display_basic.yaml --db journal.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal sessions to this SQLite database")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runScenarios(cmd *cobra.Command, opts *RunOptions, target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario path not found", err)
	}

	files := []string{target}
	if info.IsDir() {
		if files, err = findScenarioFiles(target, opts.Filter); err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
	}

	summary := RunSummary{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if len(files) == 0 {
		if opts.Format == "json" {
			return out.JSON(summary, "", "")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	for _, file := range files {
		res := runScenario(cmd.Context(), opts, file)
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		if opts.Format != "json" {
			printScenario(out, res)
		}
	}

	if opts.Format == "json" {
		code, msg := "", ""
		if summary.Failed > 0 {
			code, msg = ErrCodeFailed, fmt.Sprintf("%d of %d scenarios failed", summary.Failed, summary.Total)
		}
		if err := out.JSON(summary, code, msg); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out.Writer, "\n%d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}

func printScenario(out *OutputFormatter, res ScenarioResult) {
	mark := "✓"
	if !res.Pass {
		mark = "✗"
	}
	suffix := ""
	if res.Golden == "updated" {
		suffix = " (golden updated)"
	}
	fmt.Fprintf(out.Writer, "%s %s%s\n", mark, res.Name, suffix)
	for _, e := range res.Errors {
		fmt.Fprintf(out.Writer, "  %s\n", e)
	}
	if res.Session != "" {
		out.VerboseLog("  session %s", res.Session)
	}
}

// findScenarioFiles returns every YAML file under dir whose base name
// matches filter.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

func runScenario(ctx context.Context, opts *RunOptions, file string) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	res := ScenarioResult{Name: scenario.Name}
	if opts.Database != "" {
		id, err := uuid.NewV7()
		if err != nil {
			res.Errors = []string{fmt.Sprintf("session id: %v", err)}
			return res
		}
		scenario.Session = scenario.Name + "-" + id.String()
		res.Session = scenario.Session
	}

	if ctx == nil {
		ctx = context.Background()
	}
	result, err := harness.RunWith(ctx, scenario, harness.RunOptions{
		Journal: opts.Database,
		Logger:  opts.logger().With("scenario", scenario.Name),
	})
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}

	res.Pass = result.Pass
	res.Errors = append(res.Errors, result.Errors...)

	golden := goldenFilePath(file)
	trace, err := harness.MarshalTrace(scenario.Name, result.Trace)
	if err != nil {
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("failed to marshal trace: %v", err))
		return res
	}

	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(golden), 0755); err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, fmt.Sprintf("failed to create golden directory: %v", err))
			return res
		}
		if err := os.WriteFile(golden, trace, 0644); err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, fmt.Sprintf("failed to write golden file: %v", err))
			return res
		}
		res.Golden = "updated"
		return res
	}

	want, err := os.ReadFile(golden)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// assertions only
	case err != nil:
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(bytes.TrimSpace(want), trace):
		res.Pass = false
		res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
	default:
		res.Golden = "match"
	}
	return res
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}
