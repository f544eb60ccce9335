package events_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/db"
	"sprintboard/internal/events"
	"sprintboard/internal/migrate"
)

func TestAppendWritesRowInsideTx(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))

	w := events.Writer{Now: func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)) }}

	tx, err := conn.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, tx, events.Record{Type: events.IssueReordered, ProjectID: "p1", EntityKind: "sprint", EntityID: "s1", ActorID: "a1", Payload: events.EventPayload{"count": 2}}))
	require.NoError(t, tx.Rollback())

	var n int
	require.NoError(t, conn.Get(&n, `SELECT COUNT(*) FROM events`))
	assert.Zero(t, n)

	tx, err = conn.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, tx, events.Record{Type: events.MemberAdded, EntityKind: "org", EntityID: "org-1", ActorID: "a1"}))
	require.NoError(t, tx.Commit())

	var row struct {
		TS        string         `db:"ts"`
		Type      string         `db:"type"`
		ProjectID sql.NullString `db:"project_id"`
		Payload   string         `db:"payload_json"`
	}
	require.NoError(t, conn.Get(&row, `SELECT ts, type, project_id, payload_json FROM events`))
	assert.Equal(t, "2025-01-02T02:04:05Z", row.TS)
	assert.Equal(t, events.MemberAdded, row.Type)
	assert.False(t, row.ProjectID.Valid)
	assert.Equal(t, "{}", row.Payload)
}
