package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "synthd", root.Use)
	assert.True(t, root.SilenceUsage)

	want := []string{"run", "add", "tasks", "show", "export", "health"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %s", name)
	}
}

func TestRootCommandRejectsUnknownSubcommand(t *testing.T) {
	_, err := execute(t, "frobnicate")
	require.Error(t, err)
}

func TestPersistentDBFlagReachesSubcommands(t *testing.T) {
	dbPath := tempDB(t)
	out, err := execute(t, "tasks", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks found")
	assert.FileExists(t, dbPath)
}
