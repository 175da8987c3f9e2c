package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/redworker/internal/config"
	"github.com/roach88/redworker/internal/harness"
)

// FileValidation is the validation outcome of one input file.
type FileValidation struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"` // "config" | "scenario"
	Valid   bool   `json:"valid"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate worker configs and scenarios",
		Long: `Validate TOML worker configurations against the config schema and
YAML scenario files against the scenario format, without running anything.

Files ending in .toml are configs; .yaml and .yml files are scenarios.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return WrapExitError(ExitCommandError, "file not found", err)
		}
		fv, err := validateFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, path, err)
		}
		formatter.VerboseLog("checked %s %s", fv.Kind, path)
		result.Files = append(result.Files, fv)
		if !fv.Valid {
			result.Valid = false
		}
	}

	if opts.Format == "json" {
		code, msg := "", ""
		if !result.Valid {
			code, msg = result.firstFailure()
		}
		if err := formatter.JSON(result, code, msg); err != nil {
			return err
		}
	} else {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s (%s)\n", fv.Path, fv.Kind)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s (%s)\n  %s\n", fv.Path, fv.Kind, fv.Message)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func (r ValidationResult) firstFailure() (string, string) {
	for _, fv := range r.Files {
		if !fv.Valid {
			return fv.Code, fmt.Sprintf("%s: %s", fv.Path, fv.Message)
		}
	}
	return "", ""
}

// validateFile checks one file. The error is only set when the file kind
// cannot be told from its extension.
func validateFile(path string) (FileValidation, error) {
	switch filepath.Ext(path) {
	case ".toml":
		fv := FileValidation{Path: path, Kind: "config", Valid: true}
		if _, err := config.Load(path); err != nil {
			fv.Valid, fv.Code, fv.Message = false, ErrCodeConfig, err.Error()
			var verr *config.ValidationError
			if errors.As(err, &verr) {
				fv.Message = verr.Error()
			}
		}
		return fv, nil
	case ".yaml", ".yml":
		fv := FileValidation{Path: path, Kind: "scenario", Valid: true}
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			fv.Valid, fv.Code, fv.Message = false, ErrCodeScenario, err.Error()
			return fv, nil
		}
		if scenario.Config != "" {
			if _, err := config.Parse(scenario.Config); err != nil {
				fv.Valid, fv.Code, fv.Message = false, ErrCodeConfig, "scenario config: "+err.Error()
			}
		}
		return fv, nil
	default:
		return FileValidation{}, fmt.Errorf("unsupported file type %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
}
