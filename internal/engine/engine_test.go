package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/actor"
	"sprintboard/internal/config"
	"sprintboard/internal/db"
	"sprintboard/internal/domain"
	"sprintboard/internal/engine"
	"sprintboard/internal/migrate"
	"sprintboard/internal/repo"
)

var (
	admin    = actor.Actor{ID: "admin-1", OrgID: "org-1", Role: actor.RoleAdmin}
	member   = actor.Actor{ID: "member-1", OrgID: "org-1", Role: actor.RoleMember}
	outsider = actor.Actor{ID: "outsider-1", OrgID: "org-2", Role: actor.RoleAdmin}
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Project domain.Project
	clock   *time.Time
}

func (env testEnv) setNow(t time.Time) { *env.clock = t }

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, config.Default())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn, cfg, nil)
	eng.Now = func() time.Time { return clock }
	p, err := eng.CreateProject(ctx, admin, engine.CreateProjectInput{Name: "Board", Key: "brd"})
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx, Project: p, clock: &clock}
}

func (env testEnv) sprint(t *testing.T) domain.Sprint {
	t.Helper()
	s, err := env.Engine.CreateSprint(env.Ctx, admin, env.Project.ID, engine.CreateSprintInput{
		Name:      "Sprint 1",
		StartDate: "2025-01-01",
		EndDate:   "2025-01-14",
	})
	require.NoError(t, err)
	return s
}

func TestCreateProject(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, "BRD", env.Project.Key)
	assert.Equal(t, "org-1", env.Project.OrgID)

	_, err := env.Engine.CreateProject(env.Ctx, admin, engine.CreateProjectInput{Name: "Again", Key: "BRD"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = env.Engine.CreateProject(env.Ctx, member, engine.CreateProjectInput{Name: "Nope", Key: "NOPE"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.CreateProject(env.Ctx, admin, engine.CreateProjectInput{Name: "", Key: "X1"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.Engine.CreateProject(env.Ctx, actor.Actor{}, engine.CreateProjectInput{Name: "Anon", Key: "ANON"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	ok, err := env.Engine.ProjectKeyAvailable(env.Ctx, member, "org-1", "brd")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetProjectIncludesSprints(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	p, err := env.Engine.GetProject(env.Ctx, member, env.Project.ID)
	require.NoError(t, err)
	require.Len(t, p.Sprints, 1)
	assert.Equal(t, s.ID, p.Sprints[0].ID)

	_, err = env.Engine.GetProject(env.Ctx, outsider, env.Project.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestDeleteProjectCascades(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	_, err := env.Engine.CreateIssue(env.Ctx, member, env.Project.ID, engine.CreateIssueInput{Title: "doomed", SprintID: s.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, env.Engine.DeleteProject(env.Ctx, member, env.Project.ID), domain.ErrPermissionDenied)
	require.NoError(t, env.Engine.DeleteProject(env.Ctx, admin, env.Project.ID))

	_, err = env.Engine.Repo.GetSprint(env.Ctx, s.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	items, err := env.Engine.Repo.ListSprintIssues(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateSprintValidatesWindow(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	assert.Equal(t, domain.SprintPlanned, s.Status)

	_, err := env.Engine.CreateSprint(env.Ctx, member, env.Project.ID, engine.CreateSprintInput{
		Name: "Backwards", StartDate: "2025-02-01", EndDate: "2025-01-01",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.Engine.CreateSprint(env.Ctx, outsider, env.Project.ID, engine.CreateSprintInput{
		Name: "Foreign", StartDate: "2025-01-01", EndDate: "2025-01-02",
	})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestStartSprintInsideWindow(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	env.setNow(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))

	got, err := env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintActive)
	require.NoError(t, err)
	assert.Equal(t, domain.SprintActive, got.Status)

	stored, err := env.Engine.Repo.GetSprint(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SprintActive, stored.Status)
}

func TestStartSprintOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	env.setNow(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	_, err := env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintActive)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "cannot start sprint outside of its date range")

	stored, err := env.Engine.Repo.GetSprint(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SprintPlanned, stored.Status)
}

func TestStartSprintWindowIsInclusive(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	env.setNow(time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC))
	_, err := env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintActive)
	require.NoError(t, err)
}

func TestSprintTransitionLegality(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	env.setNow(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	_, err := env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintCompleted)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "can only complete an active sprint")

	_, err = env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintPlanned)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintActive)
	require.NoError(t, err)
	_, err = env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintActive)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	done, err := env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.SprintCompleted, done.Status)

	for _, target := range []string{domain.SprintPlanned, domain.SprintActive, domain.SprintCompleted} {
		_, err = env.Engine.RequestTransition(env.Ctx, admin, s.ID, target)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, target)
	}
}

func TestSprintTransitionRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	env.setNow(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	_, err := env.Engine.RequestTransition(env.Ctx, member, s.ID, domain.SprintActive)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = env.Engine.RequestTransition(env.Ctx, outsider, s.ID, domain.SprintActive)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = env.Engine.RequestTransition(env.Ctx, actor.Actor{}, s.ID, domain.SprintActive)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = env.Engine.RequestTransition(env.Ctx, admin, "missing", domain.SprintActive)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSprintTransitionPermissionCheckedBeforeWindow(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	env.setNow(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	_, err := env.Engine.RequestTransition(env.Ctx, member, s.ID, domain.SprintActive)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestMembershipFallbackWithoutActiveOrg(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	env.setNow(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	bare := actor.Actor{ID: "cli-user"}

	_, err := env.Engine.RequestTransition(env.Ctx, bare, s.ID, domain.SprintActive)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.AddMember(env.Ctx, admin, "org-1", "cli-user", actor.RoleAdmin)
	require.NoError(t, err)
	_, err = env.Engine.RequestTransition(env.Ctx, bare, s.ID, domain.SprintActive)
	require.NoError(t, err)
}

func TestAddMemberBootstrapsThenRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	first := actor.Actor{ID: "founder"}
	_, err := env.Engine.AddMember(env.Ctx, first, "org-9", "founder", actor.RoleAdmin)
	require.NoError(t, err)

	_, err = env.Engine.AddMember(env.Ctx, actor.Actor{ID: "stranger"}, "org-9", "stranger", actor.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.AddMember(env.Ctx, first, "org-9", "friend", actor.RoleMember)
	require.NoError(t, err)
	_, err = env.Engine.AddMember(env.Ctx, first, "org-9", "friend", actor.Role("owner"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSingleActiveSprint(t *testing.T) {
	cfg := config.Default()
	cfg.Sprints.SingleActive = true
	env := newTestEnvWithConfig(t, cfg)
	a := env.sprint(t)
	b := env.sprint(t)
	env.setNow(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	_, err := env.Engine.RequestTransition(env.Ctx, admin, a.ID, domain.SprintActive)
	require.NoError(t, err)
	_, err = env.Engine.RequestTransition(env.Ctx, admin, b.ID, domain.SprintActive)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransitionAppendsEvent(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	env.setNow(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	_, err := env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintActive)
	require.NoError(t, err)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, 0, env.Project.ID, "sprint.transitioned", "", "")
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, s.ID, evts[0].EntityID)
	assert.Equal(t, admin.ID, evts[0].ActorID)
	assert.JSONEq(t, `{"from":"PLANNED","to":"ACTIVE"}`, evts[0].Payload)
}

func TestUserProfileAndOrgUsers(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.EnsureUser(env.Ctx, member, engine.ProfileInput{Name: "Grace", Email: "grace@example.com"})
	require.NoError(t, err)
	assert.Equal(t, member.ID, u.ExternalID)

	again, err := env.Engine.EnsureUser(env.Ctx, member, engine.ProfileInput{Name: "Grace H"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Grace H", again.Name)

	_, err = env.Engine.EnsureUser(env.Ctx, member, engine.ProfileInput{Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.Engine.AddMember(env.Ctx, admin, "org-1", member.ID, actor.RoleMember)
	require.NoError(t, err)
	users, err := env.Engine.OrganizationUsers(env.Ctx, member, "org-1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Grace H", users[0].Name)
}

func TestErrorsCarryTransitionDetails(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t)
	_, err := env.Engine.RequestTransition(env.Ctx, admin, s.ID, domain.SprintCompleted)
	var terr domain.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, domain.SprintPlanned, terr.From)
	assert.Equal(t, domain.SprintCompleted, terr.To)
}

func TestCreateAPIKeyStoresHashOnly(t *testing.T) {
	env := newTestEnv(t)
	plain, key, err := env.Engine.CreateAPIKey(env.Ctx, member, "ci")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plain, "sbk_"))
	assert.NotEqual(t, plain, key.KeyHash)

	stored, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	assert.Equal(t, member.ID, stored.ActorID)
	assert.Equal(t, "ci", stored.Name)

	_, _, err = env.Engine.CreateAPIKey(env.Ctx, actor.Actor{}, "anon")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	keys, err := env.Engine.ListAPIKeys(env.Ctx, member)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Empty(t, keys[0].KeyHash)

	assert.ErrorIs(t, env.Engine.RevokeAPIKey(env.Ctx, admin, key.ID), domain.ErrNotFound)
	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, member, key.ID))
	_, err = env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
