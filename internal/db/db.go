// Package db opens the store behind the engine: an embedded SQLite file in the
// workspace by default, or any database/sql driver registered below.
package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Dir is the workspace subdirectory holding local state.
const Dir = ".sprintboard"

const fileName = "sprintboard.db"

type Config struct {
	Workspace string
	Driver    string
	DSN       string
}

// Path returns where the SQLite file for workspace lives.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, Dir, fileName)
}

// EnsureWorkspace creates the state directory under workspace.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Dir(Path(workspace))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

var sqlitePragmas = []string{"foreign_keys(1)", "busy_timeout(5000)", "journal_mode(WAL)"}

func sqliteDSN(file string) string {
	dsn := "file:" + file
	for i, p := range sqlitePragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		dsn += sep + "_pragma=" + p
	}
	return dsn
}

// Open connects to the configured database and pings it. An empty Driver
// means sqlite, and an empty sqlite DSN means the workspace file.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	driver, dsn := cfg.Driver, cfg.DSN
	if driver == "" {
		driver = "sqlite"
	}
	if driver == "sqlite" && dsn == "" {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
		dsn = sqliteDSN(Path(cfg.Workspace))
	}
	conn, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return conn, nil
}
