package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/uirun/internal/harness"
	"github.com/roach88/uirun/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// HistoryResult is the JSON payload of the history command.
type HistoryResult struct {
	Scenario string               `json:"scenario,omitempty"`
	Runs     []*harness.RunResult `json:"runs"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [scenario]",
		Short: "Show recorded runs",
		Long: `Show runs recorded by previous invocations of run and schedule,
newest first. Without a scenario name, runs of every scenario are listed.

Example:
  uirun history
  uirun history "admin creates a project" --limit 5`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runHistory(opts, name, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs to show (0 for all)")
	addConfigFlags(cmd, "db")

	return cmd
}

func runHistory(opts *HistoryOptions, name string, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	path := a.cfg.Store.Path
	if path == "" {
		return commandError(a.out, ExitCommandError, ErrCodeHistory, "history is disabled (store.path is empty)", nil)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return commandError(a.out, ExitCommandError, ErrCodeNotFound, "history database not found: "+path, nil)
	}

	st, err := store.Open(path)
	if err != nil {
		return commandError(a.out, ExitCommandError, ErrCodeHistory, "open history database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			a.logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runs, err := st.ReadRuns(ctx, name, opts.Limit)
	if err != nil {
		return commandError(a.out, ExitCommandError, ErrCodeHistory, "read history", err)
	}

	if a.out.IsJSON() {
		return a.out.Success(HistoryResult{Scenario: name, Runs: runs})
	}
	return writeHistory(a.out.Writer, name, runs, opts.Verbose)
}

func writeHistory(w io.Writer, name string, runs []*harness.RunResult, verbose bool) error {
	if len(runs) == 0 {
		if name != "" {
			_, err := fmt.Fprintf(w, "No runs recorded for %q\n", name)
			return err
		}
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}

	for _, run := range runs {
		mark := "✓"
		if !run.Passed() {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s  %-9s %8s  %s\n",
			mark,
			run.Started.Local().Format(time.DateTime),
			run.Status,
			run.Duration().Round(time.Millisecond),
			run.Scenario)
		if run.Error != "" {
			fmt.Fprintf(w, "    %s\n", run.Error)
		}
		if verbose {
			fmt.Fprintf(w, "    run %s\n", run.RunID)
		}
	}
	_, err := fmt.Fprintf(w, "\n%d run(s)\n", len(runs))
	return err
}
