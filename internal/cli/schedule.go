package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	RunOptions
	Cron string
	Now  bool
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RunOptions: RunOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "schedule <path>... --cron EXPR",
		Short: "Run scenarios on a cron schedule",
		Long: `Run the scenarios found in the given paths repeatedly on a cron schedule
until interrupted. Every run is reported and recorded in the history like
uirun run. A run that is still going when the next one is due is skipped.

EXPR is a standard five-field cron expression or a descriptor such as
@hourly or @every 15m.

Example:
  uirun schedule --cron '*/30 * * * *' ./scenarios
  uirun schedule --cron '@every 10m' --now --tag smoke ./scenarios`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Cron, "cron", "", "cron expression (required)")
	cmd.Flags().BoolVar(&opts.Now, "now", false, "run once immediately before the first scheduled time")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only scenarios whose name matches this glob")
	cmd.Flags().StringSliceVarP(&opts.Tags, "tag", "t", nil, "run only scenarios carrying this tag (repeatable)")
	cmd.Flags().StringVar(&opts.JUnit, "junit", "", "write a JUnit XML report to this file after every run")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "do not record runs in the history database")
	addConfigFlags(cmd, "base-url", "driver", "fixtures", "workers", "timeout", "db")
	_ = cmd.MarkFlagRequired("cron")

	return cmd
}

func runSchedule(opts *ScheduleOptions, paths []string, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := cron.ParseStandard(opts.Cron)
	if err != nil {
		return commandError(a.out, ExitCommandError, ErrCodeSchedule, fmt.Sprintf("invalid cron expression %q", opts.Cron), err)
	}

	so := opts.suite()
	// Fail fast on unloadable scenarios instead of at the first tick.
	if _, err := a.selectScenarios(so, paths); err != nil {
		return err
	}

	ctx, cancel := a.signalContext(cmd)
	defer cancel()

	logger := cronLogger{a.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(sched, cron.FuncJob(func() { a.runScheduled(ctx, so, paths) }))

	if opts.Now {
		a.runScheduled(ctx, so, paths)
	}

	c.Start()
	a.logger.Info("schedule started", "cron", opts.Cron, "next", sched.Next(time.Now()))
	fmt.Fprintf(a.out.GetErrWriter(), "Scheduled %q. Next run at %s. Press Ctrl-C to stop.\n",
		opts.Cron, sched.Next(time.Now()).Format(time.DateTime))

	<-ctx.Done()
	// Wait for a running suite to observe cancellation
	<-c.Stop().Done()
	a.logger.Info("schedule stopped")
	return nil
}

// runScheduled runs the suite once. Failures are reported and logged; they
// never stop the schedule.
func (a *app) runScheduled(ctx context.Context, so suiteOptions, paths []string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := a.runSuite(ctx, so, paths)
	a.logger.Info("scheduled run finished", "duration", time.Since(start), "exit_code", GetExitCode(err))
}

// cronLogger adapts slog to cron.Logger. Routine scheduler messages are
// debug level.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
