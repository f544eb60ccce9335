package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sprintboard/internal/actor"
	"sprintboard/internal/domain"
	"sprintboard/internal/events"
	"sprintboard/internal/repo"
)

type CreateProjectInput struct {
	OrgID       string
	Name        string `validate:"required,max=120"`
	Key         string `validate:"required,alphanum,min=2,max=10"`
	Description string `validate:"max=2000"`
}

// CreateProject creates a project in the caller's organization. Admins only.
func (e Engine) CreateProject(ctx context.Context, a actor.Actor, in CreateProjectInput) (domain.Project, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return domain.Project{}, err
	}
	orgID := strings.TrimSpace(in.OrgID)
	if orgID == "" {
		orgID = a.OrgID
	}
	if orgID == "" {
		return domain.Project{}, domain.Invalid("organization is required")
	}
	in.Key = strings.ToUpper(strings.TrimSpace(in.Key))
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return domain.Project{}, validationError(err)
	}
	if err := e.Auth.RequireAdmin(ctx, a, orgID); err != nil {
		return domain.Project{}, err
	}
	taken, err := e.Repo.ProjectKeyExists(ctx, orgID, in.Key)
	if err != nil {
		return domain.Project{}, err
	}
	if taken {
		return domain.Project{}, fmt.Errorf("%w: project key %s already exists", domain.ErrConflict, in.Key)
	}
	now := e.stamp()
	p := domain.Project{
		ID:          newID(),
		OrgID:       orgID,
		Key:         in.Key,
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   now,
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureOrg(ctx, tx, domain.Organization{ID: orgID, CreatedAt: now}); err != nil {
		return domain.Project{}, fmt.Errorf("ensure org: %w", err)
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ProjectCreated, p.ID, repo.KindProject, p.ID, a.ID, events.EventPayload{"key": p.Key}); err != nil {
		return domain.Project{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Project{}, err
	}
	e.log().Info("project created", zap.String("project_id", p.ID), zap.String("org_id", orgID), zap.String("key", p.Key))
	return p, nil
}

// DeleteProject removes a project with its sprints and issues. Admins only.
func (e Engine) DeleteProject(ctx context.Context, a actor.Actor, projectID string) error {
	if err := actor.RequireSignedIn(a); err != nil {
		return err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := e.Auth.RequireAdmin(ctx, a, p.OrgID); err != nil {
		return err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProject(ctx, tx, p.ID); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.ProjectDeleted, "", repo.KindProject, p.ID, a.ID, events.EventPayload{"key": p.Key, "org_id": p.OrgID}); err != nil {
		return err
	}
	if err := e.commit(tx); err != nil {
		return err
	}
	e.log().Info("project deleted", zap.String("project_id", p.ID))
	return nil
}

// GetProject returns the project with its sprints, newest first.
func (e Engine) GetProject(ctx context.Context, a actor.Actor, projectID string) (domain.Project, error) {
	p, err := e.authorizedProject(ctx, a, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	sprints, err := e.Repo.ListSprints(ctx, p.ID)
	if err != nil {
		return domain.Project{}, err
	}
	p.Sprints = sprints
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context, a actor.Actor, orgID string) ([]domain.Project, error) {
	if orgID == "" {
		orgID = a.OrgID
	}
	if orgID == "" {
		return nil, domain.Invalid("organization is required")
	}
	if _, err := e.Auth.RequireMember(ctx, a, orgID); err != nil {
		return nil, err
	}
	return e.Repo.ListProjects(ctx, orgID)
}

// ProjectKeyAvailable reports whether key is unused in the organization.
func (e Engine) ProjectKeyAvailable(ctx context.Context, a actor.Actor, orgID, key string) (bool, error) {
	if _, err := e.Auth.RequireMember(ctx, a, orgID); err != nil {
		return false, err
	}
	taken, err := e.Repo.ProjectKeyExists(ctx, orgID, strings.ToUpper(strings.TrimSpace(key)))
	if err != nil {
		return false, err
	}
	return !taken, nil
}

type ProfileInput struct {
	Name     string `validate:"max=200"`
	Email    string `validate:"omitempty,email"`
	ImageURL string `validate:"omitempty,url"`
}

// EnsureUser creates or refreshes the caller's local profile.
func (e Engine) EnsureUser(ctx context.Context, a actor.Actor, in ProfileInput) (domain.User, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return domain.User{}, err
	}
	if err := validate.Struct(in); err != nil {
		return domain.User{}, validationError(err)
	}
	now := e.stamp()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	u, err := e.Repo.UpsertUserTx(ctx, tx, domain.User{
		ID:         newID(),
		ExternalID: a.ID,
		Name:       strings.TrimSpace(in.Name),
		Email:      in.Email,
		ImageURL:   in.ImageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.User{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// OrganizationUsers lists the profiles of an organization's members.
func (e Engine) OrganizationUsers(ctx context.Context, a actor.Actor, orgID string) ([]domain.User, error) {
	if _, err := e.Auth.RequireMember(ctx, a, orgID); err != nil {
		return nil, err
	}
	return e.Repo.OrgUsers(ctx, orgID)
}

// AddMember grants role in orgID. Admins only, except that the first
// member of an organization may be added by any signed-in actor.
func (e Engine) AddMember(ctx context.Context, a actor.Actor, orgID, memberID string, role actor.Role) (domain.Member, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return domain.Member{}, err
	}
	if strings.TrimSpace(orgID) == "" || strings.TrimSpace(memberID) == "" {
		return domain.Member{}, domain.Invalid("org_id and actor_id are required")
	}
	if !role.Valid() {
		return domain.Member{}, domain.Invalid("role must be admin or member")
	}
	existing, err := e.Repo.ListMembers(ctx, orgID)
	if err != nil {
		return domain.Member{}, err
	}
	if len(existing) > 0 {
		if err := e.Auth.RequireAdmin(ctx, a, orgID); err != nil {
			return domain.Member{}, err
		}
	}
	m := domain.Member{OrgID: orgID, ActorID: memberID, Role: string(role)}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureOrg(ctx, tx, domain.Organization{ID: orgID, CreatedAt: e.stamp()}); err != nil {
		return domain.Member{}, fmt.Errorf("ensure org: %w", err)
	}
	if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
		return domain.Member{}, err
	}
	if err := e.appendEvent(ctx, tx, events.MemberAdded, "", "org", orgID, a.ID, events.EventPayload{"actor_id": memberID, "role": m.Role}); err != nil {
		return domain.Member{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

// authorizedProject loads a project the actor may read.
func (e Engine) authorizedProject(ctx context.Context, a actor.Actor, projectID string) (domain.Project, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if _, err := e.Auth.RequireMember(ctx, a, p.OrgID); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}
