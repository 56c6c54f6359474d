package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/uirun/internal/browser"
	"github.com/roach88/uirun/internal/config"
	"github.com/roach88/uirun/internal/engine"
	"github.com/roach88/uirun/internal/fixture"
	"github.com/roach88/uirun/internal/harness"
	"github.com/roach88/uirun/internal/htmlpage"
	"github.com/roach88/uirun/internal/logging"
	"github.com/roach88/uirun/internal/page"
	"github.com/roach88/uirun/internal/report"
	"github.com/roach88/uirun/internal/scenario"
	"github.com/roach88/uirun/internal/store"
)

// flagKeys maps command flags to the config keys they override.
var flagKeys = map[string]string{
	"base-url": "base_url",
	"driver":   "driver",
	"fixtures": "fixtures_dir",
	"workers":  "workers",
	"timeout":  "timing.timeout",
	"db":       "store.path",
}

// addConfigFlags registers the named config override flags on cmd.
func addConfigFlags(cmd *cobra.Command, names ...string) {
	flags := cmd.Flags()
	for _, name := range names {
		switch name {
		case "base-url":
			flags.String(name, "", "base URL for relative navigate steps (base_url)")
		case "driver":
			flags.String(name, config.DriverChrome, "page driver: chrome or http (driver)")
		case "fixtures":
			flags.String(name, "fixtures", "fixtures directory (fixtures_dir)")
		case "workers":
			flags.IntP(name, "j", 1, "scenarios run in parallel (workers)")
		case "timeout":
			flags.Duration(name, engine.DefaultTimeout, "default step and condition timeout (timing.timeout)")
		case "db":
			flags.String(name, ".uirun/history.db", "run history database (store.path)")
		}
	}
}

// app is the environment shared by all commands: config, logger and output.
type app struct {
	opts      *RootOptions
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	out       *OutputFormatter
}

// newApp loads the config with cmd's flags bound over it and builds the
// logger. Errors are printed and returned as ExitErrors.
func newApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	v := config.NewViper()
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, commandError(out, ExitCommandError, ErrCodeConfig, "bind flag --"+name, err)
			}
		}
	}

	cfg, err := config.Load(v, opts.ConfigFile)
	if err != nil {
		return nil, commandError(out, ExitCommandError, ErrCodeConfig, "load config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, commandError(out, ExitCommandError, ErrCodeConfig, "configure logging", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		out.VerboseLog("Using config %s", used)
	}

	return &app{opts: opts, cfg: cfg, logger: logger, logCloser: closer, out: out}, nil
}

func (a *app) close() {
	if err := a.logCloser.Close(); err != nil {
		fmt.Fprintf(a.out.GetErrWriter(), "close log file: %v\n", err)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// Uses the command's context if available (for testing).
func (a *app) signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// fixtures loads the fixture directory. A missing directory yields an empty
// registry so suites without fixtures need no setup.
func (a *app) fixtures() (*fixture.Registry, error) {
	if a.cfg.FixturesDir == "" {
		return fixture.New(nil), nil
	}
	reg, err := fixture.LoadDir(a.cfg.FixturesDir)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Debug("fixtures directory not found", "dir", a.cfg.FixturesDir)
		return fixture.New(nil), nil
	}
	if err != nil {
		return nil, err
	}
	a.out.VerboseLog("Loaded %d fixture(s) from %s", reg.Len(), a.cfg.FixturesDir)
	return reg, nil
}

// pages returns the page factory for the configured driver.
func (a *app) pages() page.Factory {
	if a.cfg.Driver == config.DriverHTTP {
		return htmlpage.NewFactory(htmlpage.Options{
			UserAgent: a.cfg.Browser.UserAgent,
			Logger:    a.logger,
		})
	}
	return browser.NewFactory(browser.Options{
		Headless:  a.cfg.Browser.Headless,
		ExecPath:  a.cfg.Browser.ExecPath,
		Width:     a.cfg.Browser.Width,
		Height:    a.cfg.Browser.Height,
		NoSandbox: a.cfg.Browser.NoSandbox,
	}, a.logger)
}

func (a *app) executor() (*engine.Executor, error) {
	return engine.NewExecutor(engine.Options{
		BaseURL: a.cfg.BaseURL,
		Timing:  a.cfg.EngineTiming(),
		Logger:  a.logger,
	})
}

func (a *app) runner(reg *fixture.Registry) (*harness.Runner, error) {
	exec, err := a.executor()
	if err != nil {
		return nil, err
	}
	return harness.New(exec, a.pages(),
		harness.WithFixtures(reg.Load),
		harness.WithLogger(a.logger),
		harness.WithWorkers(a.cfg.Workers),
		harness.WithRate(a.cfg.Rate),
	), nil
}

// suiteOptions selects scenarios and report outputs for one suite run.
type suiteOptions struct {
	Filter  string
	Tags    []string
	JUnit   string
	History bool
}

// selectScenarios loads paths and applies the name and tag filters.
func (a *app) selectScenarios(so suiteOptions, paths []string) ([]*scenario.Scenario, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, commandError(a.out, ExitCommandError, ErrCodeNotFound, "scenario path not found", err)
		}
	}

	suite, err := scenario.Load(paths...)
	if err != nil {
		return nil, commandError(a.out, ExitCommandError, ErrCodeLoadFailed, "load scenarios", err)
	}

	selected, err := suite.Filter(so.Filter, so.Tags)
	if err != nil {
		return nil, commandError(a.out, ExitCommandError, ErrCodeGeneric, "invalid --filter pattern", err)
	}
	if len(selected) == 0 {
		return nil, commandError(a.out, ExitCommandError, ErrCodeNoScenarios, "no scenarios match the filter", nil)
	}
	a.out.VerboseLog("Selected %d of %d scenario(s)", len(selected), len(suite.Scenarios))
	return selected, nil
}

// runSuite loads, runs and reports the scenarios under paths once. It
// returns an ExitFailure error when any scenario did not pass.
func (a *app) runSuite(ctx context.Context, so suiteOptions, paths []string) error {
	scenarios, err := a.selectScenarios(so, paths)
	if err != nil {
		return err
	}

	reg, err := a.fixtures()
	if err != nil {
		return commandError(a.out, ExitCommandError, ErrCodeFixture, "load fixtures", err)
	}
	runner, err := a.runner(reg)
	if err != nil {
		return commandError(a.out, ExitCommandError, ErrCodeConfig, "create runner", err)
	}

	a.out.VerboseLog("Running %d scenario(s) with %d worker(s) using the %s driver", len(scenarios), a.cfg.Workers, a.cfg.Driver)
	rep, runErr := runner.RunAll(ctx, scenarios)

	if so.History {
		a.record(ctx, rep)
	}
	if so.JUnit != "" {
		if err := writeJUnit(so.JUnit, rep); err != nil {
			return commandError(a.out, ExitCommandError, ErrCodeWriteFailed, "write JUnit report", err)
		}
		a.out.VerboseLog("Wrote JUnit report to %s", so.JUnit)
	}

	if err := a.printReport(rep); err != nil {
		return WrapExitError(ExitCommandError, "write report", err)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "run interrupted", runErr)
	}
	if !rep.Passed() {
		return NewExitError(ExitFailure, failureMessage(rep))
	}
	return nil
}

func failureMessage(rep *harness.Report) string {
	s := rep.Summary()
	return fmt.Sprintf("%d of %d scenario(s) did not pass", s.Failed+s.TimedOut, s.Total)
}

func (a *app) printReport(rep *harness.Report) error {
	if a.out.IsJSON() {
		doc := report.NewDocument(rep)
		if rep.Passed() {
			return a.out.Success(doc)
		}
		return a.out.Failure(ErrCodeScenarioFailed, failureMessage(rep), doc)
	}
	return report.WriteText(a.out.Writer, rep, report.TextOptions{Verbose: a.opts.Verbose})
}

// openStore opens the history database, creating its directory.
func (a *app) openStore() (*store.Store, error) {
	if dir := filepath.Dir(a.cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	return store.Open(a.cfg.Store.Path)
}

// record writes every result to the history and prunes old runs. History
// errors are logged and never change the outcome of the run.
func (a *app) record(ctx context.Context, rep *harness.Report) {
	if a.cfg.Store.Path == "" {
		return
	}
	st, err := a.openStore()
	if err != nil {
		a.logger.Warn("history not recorded", "path", a.cfg.Store.Path, "error", err)
		return
	}
	defer func() {
		if err := st.Close(); err != nil {
			a.logger.Warn("close history database", "error", err)
		}
	}()

	// Interrupted runs are still recorded.
	ctx = context.WithoutCancel(ctx)
	for _, res := range rep.Results {
		if err := st.WriteRun(ctx, res); err != nil {
			a.logger.Warn("record run", "scenario", res.Scenario, "run_id", res.RunID, "error", err)
		}
	}

	if a.cfg.Store.Keep > 0 {
		n, err := st.Prune(ctx, a.cfg.Store.Keep)
		if err != nil {
			a.logger.Warn("prune history", "error", err)
			return
		}
		a.logger.Debug("history pruned", "deleted", n, "keep", a.cfg.Store.Keep)
	}
}

func writeJUnit(path string, rep *harness.Report) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return report.WriteJUnit(f, rep, report.JUnitOptions{})
}
