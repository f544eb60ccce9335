package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/db"
	"sprintboard/internal/domain"
	"sprintboard/internal/migrate"
)

const ts = "2025-01-01T00:00:00Z"

func newTestRepo(t *testing.T) (Repo, context.Context) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return Repo{DB: conn}, ctx
}

func seedSprint(t *testing.T, r Repo, ctx context.Context) {
	t.Helper()
	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, r.InsertProject(ctx, tx, domain.Project{ID: "p1", OrgID: "org-1", Key: "PRJ", Name: "Project", CreatedAt: ts}))
	require.NoError(t, r.InsertSprint(ctx, tx, domain.Sprint{
		ID: "s1", ProjectID: "p1", Name: "Sprint 1", StartDate: ts, EndDate: "2025-01-14T00:00:00Z",
		Status: domain.SprintActive, CreatedAt: ts, UpdatedAt: ts,
	}))
	u, err := r.EnsureUserTx(ctx, tx, domain.User{ID: "user-1", ExternalID: "ext-1", Name: "Ada", CreatedAt: ts, UpdatedAt: ts})
	require.NoError(t, err)
	sprint := "s1"
	for i, id := range []string{"i1", "i2", "i3"} {
		require.NoError(t, r.InsertIssue(ctx, tx, domain.Issue{
			ID: id, ProjectID: "p1", SprintID: &sprint, Title: id, Status: domain.StatusTodo,
			Priority: domain.PriorityMedium, Order: i, ReporterID: u.ID, CreatedAt: ts, UpdatedAt: ts,
		}))
	}
	require.NoError(t, tx.Commit())
}

func TestProjectKeyConflict(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedSprint(t, r, ctx)
	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	err = r.InsertProject(ctx, tx, domain.Project{ID: "p2", OrgID: "org-1", Key: "PRJ", Name: "Dup", CreatedAt: ts})
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)

	taken, err := r.ProjectKeyExists(ctx, "org-1", "PRJ")
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = r.ProjectKeyExists(ctx, "org-2", "PRJ")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestListSprintIssuesResolvesUsers(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedSprint(t, r, ctx)
	items, err := r.ListSprintIssues(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, i, it.Order)
		require.NotNil(t, it.Reporter)
		assert.Equal(t, "Ada", it.Reporter.Name)
		assert.Nil(t, it.Assignee)
	}
}

func TestApplyAtomicCommits(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedSprint(t, r, ctx)
	err := r.ApplyAtomic(ctx, []RowUpdate{
		{Kind: KindIssue, ID: "i1", Fields: map[string]any{"ord": 2}},
		{Kind: KindIssue, ID: "i3", Fields: map[string]any{"ord": 0, "status": domain.StatusInProgress}},
	})
	require.NoError(t, err)
	i3, err := r.GetIssue(ctx, "i3")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, i3.Status)
	assert.Equal(t, 0, i3.Order)
}

func TestApplyAtomicRollsBackOnMissingRow(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedSprint(t, r, ctx)
	err := r.ApplyAtomic(ctx, []RowUpdate{
		{Kind: KindIssue, ID: "i1", Fields: map[string]any{"ord": 5}},
		{Kind: KindIssue, ID: "missing", Fields: map[string]any{"ord": 0}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	i1, err := r.GetIssue(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, 0, i1.Order)
}

func TestApplyAtomicRejectsUnknownColumn(t *testing.T) {
	r, ctx := newTestRepo(t)
	err := r.ApplyAtomic(ctx, []RowUpdate{{Kind: KindIssue, ID: "i1", Fields: map[string]any{"sprint_id": "s2"}}})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	err = r.ApplyAtomic(ctx, []RowUpdate{{Kind: "widget", ID: "w", Fields: map[string]any{"x": 1}}})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestApplyAtomicRollsBackOnExecFault(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	r := Repo{DB: sqlx.NewDb(mockDB, "sqlite")}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE issues SET ord=\?,status=\? WHERE id=\?`).
		WithArgs(1, domain.StatusTodo, "i1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE issues SET ord=\?,status=\? WHERE id=\?`).
		WithArgs(0, domain.StatusTodo, "i2").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = r.ApplyAtomic(context.Background(), []RowUpdate{
		{Kind: KindIssue, ID: "i1", Fields: map[string]any{"ord": 1, "status": domain.StatusTodo}},
		{Kind: KindIssue, ID: "i2", Fields: map[string]any{"ord": 0, "status": domain.StatusTodo}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	var perr *domain.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "update issue i2", perr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaxIssueOrder(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedSprint(t, r, ctx)
	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	sprint := "s1"
	max, err := r.MaxIssueOrderTx(ctx, tx, "p1", &sprint, domain.StatusTodo)
	require.NoError(t, err)
	assert.Equal(t, 2, max)
	max, err = r.MaxIssueOrderTx(ctx, tx, "p1", &sprint, domain.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, -1, max)
	max, err = r.MaxIssueOrderTx(ctx, tx, "p1", nil, domain.StatusTodo)
	require.NoError(t, err)
	assert.Equal(t, -1, max)
}

func TestMembersAndOrgUsers(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedSprint(t, r, ctx)
	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.EnsureOrg(ctx, tx, domain.Organization{ID: "org-1", CreatedAt: ts}))
	require.NoError(t, r.UpsertMember(ctx, tx, domain.Member{OrgID: "org-1", ActorID: "ext-1", Role: "member"}))
	require.NoError(t, r.UpsertMember(ctx, tx, domain.Member{OrgID: "org-1", ActorID: "ext-1", Role: "admin"}))
	require.NoError(t, tx.Commit())

	role, err := r.MemberRole(ctx, "org-1", "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
	role, err = r.MemberRole(ctx, "org-1", "stranger")
	require.NoError(t, err)
	assert.Equal(t, "", role)

	users, err := r.OrgUsers(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ext-1", users[0].ExternalID)
}

func TestBucketIssuesBacklogAndSprint(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedSprint(t, r, ctx)
	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, r.InsertIssue(ctx, tx, domain.Issue{
		ID: "b1", ProjectID: "p1", Title: "loose", Status: domain.StatusTodo,
		Priority: domain.PriorityLow, Order: 0, ReporterID: "user-1", CreatedAt: ts, UpdatedAt: ts,
	}))

	sprint := "s1"
	inSprint, err := r.BucketIssuesTx(ctx, tx, "p1", &sprint, domain.StatusTodo)
	require.NoError(t, err)
	require.Len(t, inSprint, 3)
	assert.Equal(t, "i1", inSprint[0].ID)

	backlog, err := r.BucketIssuesTx(ctx, tx, "p1", nil, domain.StatusTodo)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "b1", backlog[0].ID)
}

func TestLockIssueOrderTakesRowLockOnPostgres(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	r := Repo{DB: sqlx.NewDb(mockDB, "postgres")}
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM projects WHERE id=\$1 FOR UPDATE`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))
	mock.ExpectQuery(`SELECT id FROM projects WHERE id=\$1 FOR UPDATE`).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.LockIssueOrderTx(ctx, tx, "p1"))
	assert.ErrorIs(t, r.LockIssueOrderTx(ctx, tx, "gone"), domain.ErrNotFound)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockIssueOrderIsNoopOnSqlite(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	r := Repo{DB: sqlx.NewDb(mockDB, "sqlite")}
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()
	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.LockIssueOrderTx(ctx, tx, "p1"))
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteIssueReportsRowsAffectedError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	r := Repo{DB: sqlx.NewDb(mockDB, "sqlite")}
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM issues WHERE id=\?`).
		WithArgs("i1").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver lost count")))
	mock.ExpectRollback()

	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	err = r.DeleteIssue(ctx, tx, "i1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver lost count")
	assert.False(t, errors.Is(err, domain.ErrNotFound))
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
