package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/uirun/internal/fixture"
	"github.com/roach88/uirun/internal/scenario"
)

// watchDebounce is the quiet period after the last file event before the
// suite re-runs.
const watchDebounce = 300 * time.Millisecond

// watch runs the suite, then again after every burst of changes to scenario
// or fixture files, until ctx is cancelled. Failed runs are reported but do
// not stop watching.
func (a *app) watch(ctx context.Context, so suiteOptions, paths []string) error {
	dirs, err := watchDirs(paths, a.cfg.FixturesDir)
	if err != nil {
		return commandError(a.out, ExitCommandError, ErrCodeNotFound, "scenario path not found", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return commandError(a.out, ExitCommandError, ErrCodeGeneric, "create file watcher", err)
	}
	defer watcher.Close()

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return commandError(a.out, ExitCommandError, ErrCodeGeneric, "watch "+dir, err)
		}
	}
	a.logger.Debug("watching for changes", "dirs", dirs)

	a.runWatched(ctx, so, paths)

	// Debounce: wait after last change before re-running
	var debounce *time.Timer
	rerun := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						a.logger.Warn("watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if !relevantChange(event) {
				continue
			}
			a.logger.Debug("file changed", "path", event.Name, "op", event.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})

		case <-rerun:
			a.runWatched(ctx, so, paths)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("file watcher error", "error", err)
		}
	}
}

// runWatched runs the suite once. Its errors have already been printed.
func (a *app) runWatched(ctx context.Context, so suiteOptions, paths []string) {
	if err := a.runSuite(ctx, so, paths); err != nil {
		a.logger.Debug("watched run finished with errors", "error", err)
	}
	if ctx.Err() == nil {
		fmt.Fprintln(a.out.GetErrWriter(), "Watching for changes. Press Ctrl-C to stop.")
	}
}

// relevantChange reports whether event touches a scenario or fixture file.
func relevantChange(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return scenario.IsScenarioFile(event.Name) || fixture.IsFixtureFile(event.Name)
}

// watchDirs returns the sorted directories to watch: every directory under
// the scenario paths, the parent of each scenario file, and the fixtures
// directory when it exists.
func watchDirs(paths []string, fixturesDir string) ([]string, error) {
	seen := make(map[string]bool)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			seen[filepath.Clean(filepath.Dir(p))] = true
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				seen[filepath.Clean(path)] = true
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if fixturesDir != "" {
		if info, err := os.Stat(fixturesDir); err == nil && info.IsDir() {
			seen[filepath.Clean(fixturesDir)] = true
		}
	}

	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs, nil
}
