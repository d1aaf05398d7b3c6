package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersAllSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "tick", "migrate", "inspect"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestMigrateCommandCreatesSchemaAtPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "noema.db")
	cmd := newMigrateCmd()
	cmd.SetArgs([]string{"--db", dbPath})
	require.NoError(t, cmd.Execute())
}

func TestTickCommandRunsOneTickAgainstInMemoryStorage(t *testing.T) {
	cmd := newTickCmd()
	cmd.SetArgs([]string{"hello there", "--db", ":memory:"})
	require.NoError(t, cmd.Execute())
}

func TestInspectCommandReportsNotFoundForMissingFact(t *testing.T) {
	cmd := newInspectCmd()
	cmd.SetArgs([]string{"thread-1", "missing-key", "--db", ":memory:"})
	require.NoError(t, cmd.Execute())
}
