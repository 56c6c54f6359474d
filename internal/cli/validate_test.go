package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidScenarios(t *testing.T) {
	env := newSuiteEnv(t, "http://app.test")

	cmd := NewValidateCommand(&RootOptions{Format: "text", ConfigFile: env.config})
	out, err := execute(cmd, env.scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All scenarios valid (2 scenarios, 1 fixtures)")
}

func TestValidateValidScenariosJSON(t *testing.T) {
	env := newSuiteEnv(t, "http://app.test")

	cmd := NewValidateCommand(&RootOptions{Format: "json", ConfigFile: env.config})
	out, err := execute(cmd, env.scenarios)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Scenarios)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidateMissingFixture(t *testing.T) {
	env := newSuiteEnv(t, "http://app.test")
	writeFile(t, filepath.Join(env.scenarios, "ghost.yaml"), `scenarios:
  - name: ghost login
    steps:
      - action: navigate
        value: /login
      - action: type
        target: {selector: "#username"}
        value: "${ghost.username}"
`)

	cmd := NewValidateCommand(&RootOptions{Format: "text", ConfigFile: env.config})
	out, err := execute(cmd, env.scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "ghost login")
	assert.Contains(t, out, "E006")
	assert.Contains(t, out, `fixture "ghost" not found`)
}

func TestValidateRelativeURLWithoutBase(t *testing.T) {
	env := newSuiteEnv(t, "http://app.test")
	// An empty base_url leaves relative navigate steps unresolvable.
	writeFile(t, env.config, "fixtures_dir: fixtures\n")

	cmd := NewValidateCommand(&RootOptions{Format: "json", ConfigFile: env.config})
	out, err := execute(cmd, env.scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2, "one per scenario with a relative navigate")
	assert.Equal(t, ErrCodeInvalidURL, resp.Data.Errors[0].Code)
	assert.Contains(t, resp.Data.Errors[0].Message, "needs a base URL")
	assert.Equal(t, ErrCodeInvalidURL, resp.Error.Code)
}

func TestValidateBaseURLFlag(t *testing.T) {
	env := newSuiteEnv(t, "http://app.test")
	writeFile(t, env.config, "fixtures_dir: fixtures\n")

	cmd := NewValidateCommand(&RootOptions{Format: "text", ConfigFile: env.config})
	_, err := execute(cmd, "--base-url", "http://localhost:3000", env.scenarios)
	require.NoError(t, err)
}

func TestValidateBrokenFile(t *testing.T) {
	env := newSuiteEnv(t, "http://app.test")
	writeFile(t, filepath.Join(env.scenarios, "broken.yaml"), `scenarios:
  - name: bad step
    steps:
      - action: teleport
`)

	cmd := NewValidateCommand(&RootOptions{Format: "text", ConfigFile: env.config})
	out, err := execute(cmd, env.scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E003")
}

func TestValidateNonExistentPath(t *testing.T) {
	env := newSuiteEnv(t, "http://app.test")

	cmd := NewValidateCommand(&RootOptions{Format: "text", ConfigFile: env.config})
	out, err := execute(cmd, "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005") // ErrCodeNotFound
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	env := newSuiteEnv(t, "http://app.test")
	empty := t.TempDir()

	cmd := NewValidateCommand(&RootOptions{Format: "text", ConfigFile: env.config})
	_, err := execute(cmd, empty)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E003")
}

func TestValidateMissingConfigFile(t *testing.T) {
	env := newSuiteEnv(t, "http://app.test")
	require.NoError(t, os.Remove(env.config))

	cmd := NewValidateCommand(&RootOptions{Format: "text", ConfigFile: env.config})
	out, err := execute(cmd, env.scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestValidateReferenceSuite(t *testing.T) {
	dir := filepath.Join("..", "..", "examples", "faceanalyzer")

	cmd := NewValidateCommand(&RootOptions{Format: "json", ConfigFile: filepath.Join(dir, "uirun.yaml")})
	out, err := execute(cmd, filepath.Join(dir, "scenarios"))
	require.NoError(t, err, out)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 25, resp.Data.Scenarios)
	assert.Equal(t, 3, resp.Data.Fixtures)
}
