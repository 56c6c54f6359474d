package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/uirun/internal/engine"
	"github.com/roach88/uirun/internal/scenario"
)

// ValidationError is one problem found by validate.
type ValidationError struct {
	Scenario string `json:"scenario,omitempty"`
	Source   string `json:"source,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Scenarios int               `json:"scenarios"`
	Fixtures  int               `json:"fixtures"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate scenarios without running them",
		Long: `Load and validate scenario files without opening a page.

Checks file syntax, step and condition shape, block expansion, that every
referenced fixture exists, and that navigate URLs resolve against the
configured base URL. Faster than run for development feedback.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	addConfigFlags(cmd, "base-url", "fixtures")

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	files, err := scenario.FindFiles(paths...)
	if err != nil {
		return commandError(a.out, ExitCommandError, ErrCodeNotFound, "scenario path not found", err)
	}
	if len(files) == 0 {
		return commandError(a.out, ExitCommandError, ErrCodeLoadFailed, "no scenario files found", nil)
	}
	a.out.VerboseLog("Found %d scenario file(s)", len(files))

	suite, err := scenario.Load(paths...)
	if err != nil {
		return outputValidationErrors(a.out, ValidationResult{
			Errors: []ValidationError{{Code: ErrCodeLoadFailed, Message: err.Error()}},
		})
	}

	reg, err := a.fixtures()
	if err != nil {
		return outputValidationErrors(a.out, ValidationResult{
			Scenarios: len(suite.Scenarios),
			Errors:    []ValidationError{{Code: ErrCodeFixture, Message: err.Error()}},
		})
	}

	exec, err := a.executor()
	if err != nil {
		return commandError(a.out, ExitCommandError, ErrCodeConfig, "invalid config", err)
	}

	result := ValidationResult{Scenarios: len(suite.Scenarios), Fixtures: reg.Len()}
	for _, sc := range suite.Scenarios {
		a.out.VerboseLog("Validating scenario: %s", sc.Name)
		result.Errors = append(result.Errors, validateScenario(sc, reg.Load, exec)...)
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(a.out, result)
	}

	// Output success
	result.Valid = true
	return outputValidateSuccess(a.out, result)
}

// validateScenario checks what only becomes known at run time: fixture
// references and navigate URLs after binding.
func validateScenario(sc *scenario.Scenario, lookup scenario.Lookup, exec *engine.Executor) []ValidationError {
	bound, err := sc.Bind(lookup)
	if err != nil {
		return []ValidationError{{Scenario: sc.Name, Source: sc.Source, Code: ErrCodeFixture, Message: err.Error()}}
	}

	var errs []ValidationError
	for i, step := range bound.Steps {
		if step.Action != scenario.ActionNavigate {
			continue
		}
		if _, err := exec.ResolveURL(step.Value); err != nil {
			errs = append(errs, ValidationError{
				Scenario: sc.Name,
				Source:   sc.Source,
				Code:     ErrCodeInvalidURL,
				Message:  fmt.Sprintf("step %d (%s): %v", i, step.Label(), err),
			})
		}
	}
	return errs
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All scenarios valid (%d scenarios, %d fixtures)\n", result.Scenarios, result.Fixtures)
	return nil
}

// outputValidationErrors outputs validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	// Validation failures = exit code 1 (test/validation failure)
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.IsJSON() {
		if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}
		return exitErr
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Scenario != "" {
			fmt.Fprintf(formatter.Writer, "%s (%s)\n", err.Scenario, err.Source)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return exitErr
}
