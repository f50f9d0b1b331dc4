package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCommand(t *testing.T) {
	dir := t.TempDir()

	cmd := newRootCommand()
	cmd.SetArgs([]string{"create", "add_books_publisher", "--dir", dir})
	require.NoError(t, cmd.Execute())

	matches, err := filepath.Glob(filepath.Join(dir, "*_add_books_publisher.sql"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestCommandsRequireDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	for _, sub := range []string{"up", "down", "status", "version"} {
		t.Run(sub, func(t *testing.T) {
			cmd := newRootCommand()
			cmd.SilenceErrors = true
			cmd.SetArgs([]string{sub})
			assert.ErrorContains(t, cmd.Execute(), "DATABASE_URL is required")
		})
	}
}
