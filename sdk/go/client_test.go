package sprintboardsdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/config"
	"sprintboard/internal/db"
	"sprintboard/internal/engine"
	"sprintboard/internal/migrate"
	"sprintboard/internal/server"
)

func newTestAPI(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	e := engine.New(conn, config.Default(), nil)
	e.Now = func() time.Time { return time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC) }
	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientBoardFlow(t *testing.T) {
	ctx := context.Background()
	c := newTestAPI(t)
	_, err := c.DevLogin(ctx, "admin-1", "org-1", "admin")
	require.NoError(t, err)

	p, err := c.CreateProject(ctx, "", "Web", "web")
	require.NoError(t, err)
	assert.Equal(t, "WEB", p.Key)

	s, err := c.CreateSprint(ctx, p.ID, "Sprint 1", "2025-01-01", "2025-01-14")
	require.NoError(t, err)
	assert.True(t, s.CanStart)

	s, err = c.Transition(ctx, s.ID, "ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", s.Status)

	_, err = c.Transition(ctx, s.ID, "ACTIVE")
	require.Error(t, err)
	assert.True(t, IsCode(err, "invalid_transition"), err.Error())

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		issue, err := c.CreateIssue(ctx, p.ID, IssueInput{Title: title, SprintID: s.ID})
		require.NoError(t, err)
		assert.Equal(t, len(ids), issue.Order)
		ids = append(ids, issue.ID)
	}

	require.NoError(t, c.Reorder(ctx, []IssueMove{
		{IssueID: ids[1], Status: "TODO", Order: 0},
		{IssueID: ids[0], Status: "TODO", Order: 1},
		{IssueID: ids[2], Status: "IN_PROGRESS", Order: 0},
	}))

	b, err := c.Board(ctx, s.ID, BoardFilter{})
	require.NoError(t, err)
	require.Len(t, b.Columns, 4)
	require.Len(t, b.Columns[0].Issues, 2)
	assert.Equal(t, ids[1], b.Columns[0].Issues[0].ID)
	assert.Equal(t, ids[0], b.Columns[0].Issues[1].ID)
	require.Len(t, b.Columns[1].Issues, 1)
	assert.Equal(t, ids[2], b.Columns[1].Issues[0].ID)

	filtered, err := c.Board(ctx, s.ID, BoardFilter{Search: "thr"})
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Shown)

	events, err := c.Events(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "issue.reordered", events[0].Type)

	key, err := c.CreateAPIKey(ctx, "sdk")
	require.NoError(t, err)
	keyed := New(c.BaseURL)
	keyed.APIKey = key
	// API keys carry no active organization and admin-1 has no membership row.
	_, err = keyed.Board(ctx, s.ID, BoardFilter{})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.StatusCode)
}

func TestClientUnauthorized(t *testing.T) {
	c := newTestAPI(t)
	_, err := c.CreateProject(context.Background(), "org-1", "Web", "WEB")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)
}
