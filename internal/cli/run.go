package cli

import (
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter    string
	Tags      []string
	JUnit     string
	Watch     bool
	NoHistory bool
}

func (o *RunOptions) suite() suiteOptions {
	return suiteOptions{Filter: o.Filter, Tags: o.Tags, JUnit: o.JUnit, History: !o.NoHistory}
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <path>...",
		Short: "Run scenarios and report the results",
		Long: `Run the scenarios found in the given files and directories.

Each scenario runs in its own page session. Steps run in order and the
scenario stops at the first failing step, capturing the page for diagnosis.
Results are printed, recorded in the run history and optionally written as
JUnit XML.

Exit status is 0 when every scenario passed, 1 when any failed or timed out,
and 2 for command or config errors.

Example:
  uirun run ./scenarios
  uirun run --driver http --base-url http://localhost:8080 ./scenarios
  uirun run --tag smoke --filter 'project*' --junit out/junit.xml ./scenarios
  uirun run --watch ./scenarios`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only scenarios whose name matches this glob")
	cmd.Flags().StringSliceVarP(&opts.Tags, "tag", "t", nil, "run only scenarios carrying this tag (repeatable)")
	cmd.Flags().StringVar(&opts.JUnit, "junit", "", "write a JUnit XML report to this file")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "re-run when scenario or fixture files change")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "do not record runs in the history database")
	addConfigFlags(cmd, "base-url", "driver", "fixtures", "workers", "timeout", "db")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	// Setup signal handling for graceful shutdown
	ctx, cancel := a.signalContext(cmd)
	defer cancel()

	if opts.Watch {
		return a.watch(ctx, opts.suite(), paths)
	}
	return a.runSuite(ctx, opts.suite(), paths)
}
