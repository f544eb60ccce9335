package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/actor"
	"sprintboard/internal/config"
	"sprintboard/internal/db"
	"sprintboard/internal/engine"
)

func TestOpenWithDefaults(t *testing.T) {
	workspace := t.TempDir()
	env, err := Open(context.Background(), workspace, Options{})
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, config.AuditAll, env.Config.Reorder.Audit)
	assert.FileExists(t, db.Path(workspace))

	a := actor.Actor{ID: "admin-1", OrgID: "org-1", Role: actor.RoleAdmin}
	p, err := env.Engine.CreateProject(context.Background(), a, engine.CreateProjectInput{Name: "Board", Key: "BRD"})
	require.NoError(t, err)
	assert.Equal(t, "org-1", p.OrgID)
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	workspace := t.TempDir()
	logPath := filepath.Join(workspace, "sb.log")
	yml := "log:\n  output: " + logPath + "\nreorder:\n  audit: first\nsprints:\n  single_active: true\n"
	require.NoError(t, os.WriteFile(config.Path(workspace), []byte(yml), 0o644))

	env, err := Open(context.Background(), workspace, Options{LogLevel: "debug"})
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, config.AuditFirst, env.Config.Reorder.Audit)
	assert.True(t, env.Engine.Config.Sprints.SingleActive)
	assert.Equal(t, "debug", env.Config.Log.Level)
	require.NoError(t, env.Logger.Sync())
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "workspace opened")
}

func TestOpenRejectsBadConfig(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(workspace), []byte("database:\n  driver: oracle\n"), 0o644))
	_, err := Open(context.Background(), workspace, Options{})
	require.Error(t, err)
}
