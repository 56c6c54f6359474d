package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "uirun", cmd.Use)
	assert.Contains(t, cmd.Long, "scenarios")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "validate", "history", "schedule"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"filter", "tag", "junit", "watch", "no-history", "base-url", "driver", "fixtures", "workers", "timeout", "db"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run --%s", name)
	}
	assert.Equal(t, "w", runCmd.Flags().Lookup("watch").Shorthand)
	assert.Equal(t, "t", runCmd.Flags().Lookup("tag").Shorthand)
	assert.Equal(t, "j", runCmd.Flags().Lookup("workers").Shorthand)
}

func TestScheduleCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	schedCmd, _, err := cmd.Find([]string{"schedule"})
	require.NoError(t, err)

	cronFlag := schedCmd.Flags().Lookup("cron")
	require.NotNil(t, cronFlag)
	// --cron is required, so default is empty
	assert.Equal(t, "", cronFlag.DefValue)
	assert.NotNil(t, schedCmd.Flags().Lookup("now"))
}

func TestHistoryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	histCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)

	limitFlag := histCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)
	assert.NotNil(t, histCmd.Flags().Lookup("db"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "validate", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}
