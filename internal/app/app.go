// Package app wires configuration, logging, storage and the engine for the
// CLI and the API server.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"sprintboard/internal/config"
	"sprintboard/internal/db"
	"sprintboard/internal/engine"
	"sprintboard/internal/logger"
	"sprintboard/internal/migrate"
)

// Env is an opened workspace.
type Env struct {
	Workspace string
	Config    *config.Config
	Logger    *zap.Logger
	DB        *sqlx.DB
	Engine    engine.Engine
}

// Options override parts of the workspace config.
type Options struct {
	LogLevel string
	DSN      string
}

// Open loads sprintboard.yml from workspace (defaults when absent), builds the
// logger, connects and migrates the database and returns a ready engine.
func Open(ctx context.Context, workspace string, opts Options) (*Env, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.DSN != "" {
		cfg.Database.DSN = opts.DSN
	}
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	conn, err := db.Open(ctx, db.Config{
		Workspace: workspace,
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
	})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("workspace opened",
		zap.String("workspace", workspace),
		zap.String("driver", cfg.Database.Driver))
	return &Env{
		Workspace: workspace,
		Config:    cfg,
		Logger:    log,
		DB:        conn,
		Engine:    engine.New(conn, cfg, log),
	}, nil
}

func (e *Env) Close() error {
	_ = e.Logger.Sync()
	return e.DB.Close()
}
