package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesWorkspaceDatabase(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(context.Background(), Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "sqlite", conn.DriverName())
	_, err = os.Stat(filepath.Join(dir, ".sprintboard", "sprintboard.db"))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".sprintboard", "sprintboard.db"), Path(dir))

	var fk int
	require.NoError(t, conn.Get(&fk, `PRAGMA foreign_keys`))
	assert.Equal(t, 1, fk)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "nope", DSN: "x"})
	assert.Error(t, err)
}
