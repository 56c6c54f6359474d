package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uirun/internal/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uirun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, DriverChrome, cfg.Driver)
	assert.Equal(t, "fixtures", cfg.FixturesDir)
	assert.Equal(t, 1, cfg.Workers)
	assert.Zero(t, cfg.Rate)
	assert.Equal(t, engine.DefaultTiming(), cfg.EngineTiming())
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.Width)
	assert.Equal(t, ".uirun/history.db", cfg.Store.Path)
	assert.Equal(t, 100, cfg.Store.Keep)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_DefaultFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uirun.yaml"), []byte("workers: 3\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
}

const sampleConfig = `
base_url: https://faceanalyzer.test
driver: http
fixtures_dir: fixtures
workers: 4
rate: 2.5
timing:
  timeout: 5s
  poll: 50ms
  max_poll: 500ms
browser:
  headless: false
  width: 1920
  height: 1080
store:
  path: history.db
  keep: 10
log:
  level: debug
  format: json
`

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	dir := filepath.Dir(path)

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://faceanalyzer.test", cfg.BaseURL)
	assert.Equal(t, DriverHTTP, cfg.Driver)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2.5, cfg.Rate)
	assert.Equal(t, engine.Timing{Timeout: 5 * time.Second, Poll: 50 * time.Millisecond, MaxPoll: 500 * time.Millisecond}, cfg.EngineTiming())
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.Width)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, filepath.Join(dir, "fixtures"), cfg.FixturesDir, "relative paths resolve against the file")
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.Store.Path)
	assert.Empty(t, cfg.Log.File, "defaults are not anchored")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("UIRUN_WORKERS", "8")
	t.Setenv("UIRUN_TIMING_TIMEOUT", "2s")
	t.Setenv("UIRUN_BROWSER_NO_SANDBOX", "true")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.Timing.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Timing.Poll)
	assert.True(t, cfg.Browser.NoSandbox)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("UIRUN_WORKERS", "8")

	cmd := &cobra.Command{}
	cmd.Flags().Int("workers", 1, "")
	require.NoError(t, cmd.Flags().Set("workers", "2"))

	v := NewViper()
	require.NoError(t, v.BindPFlag("workers", cmd.Flags().Lookup("workers")))

	cfg, err := Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "workers: [1, 2\n")

	_, err := Load(NewViper(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, `
driver: firefox
workers: 0
base_url: "not a url"
timing:
  poll: 0s
log:
  level: loud
`)

	_, err := Load(NewViper(), path)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "invalid config: ")
	assert.Contains(t, msg, "driver: firefox violates oneof=chrome http")
	assert.Contains(t, msg, "workers: 0 violates gte=1")
	assert.Contains(t, msg, "base_url: not a url violates url")
	assert.Contains(t, msg, "timing.poll: 0s violates gt=0")
	assert.Contains(t, msg, "log.level: loud violates oneof=debug info warn error")
}

func TestValidate_MaxPollBelowPoll(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	cfg.Timing.MaxPoll = cfg.Timing.Poll / 2
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timing.max_poll")
	assert.Contains(t, err.Error(), "gtefield=Poll")
}
