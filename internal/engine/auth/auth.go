package auth

import (
	"context"
	"errors"
	"fmt"

	"sprintboard/internal/actor"
	"sprintboard/internal/domain"
	"sprintboard/internal/repo"
)

// ForbiddenError indicates the actor lacks a role in the organization.
type ForbiddenError struct {
	OrgID    string
	Required actor.Role
}

func (e ForbiddenError) Error() string {
	if e.Required == actor.RoleAdmin {
		return fmt.Sprintf("organization %s admin required", e.OrgID)
	}
	return fmt.Sprintf("organization %s membership required", e.OrgID)
}

func (e ForbiddenError) Unwrap() error { return domain.ErrPermissionDenied }

// Service resolves an actor's role in an organization.
type Service struct {
	Repo repo.Repo
}

// OrgRole returns the actor's role in orgID. An actor whose active
// organization is orgID carries its own role; an actor with an active
// organization other than orgID has no role there; an actor with no active
// organization falls back to the membership table.
func (s Service) OrgRole(ctx context.Context, a actor.Actor, orgID string) (actor.Role, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return actor.RoleNone, err
	}
	if a.OrgID != "" {
		if a.OrgID != orgID {
			return actor.RoleNone, nil
		}
		if a.Role.Valid() {
			return a.Role, nil
		}
	}
	raw, err := s.Repo.MemberRole(ctx, orgID, a.ID)
	if err != nil {
		return actor.RoleNone, fmt.Errorf("lookup membership: %w", err)
	}
	return actor.NormalizeRole(raw), nil
}

// RequireAdmin fails unless the actor administers orgID.
func (s Service) RequireAdmin(ctx context.Context, a actor.Actor, orgID string) error {
	role, err := s.OrgRole(ctx, a, orgID)
	if err != nil {
		return err
	}
	if err := actor.RequireAdmin(a, role); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return err
		}
		return ForbiddenError{OrgID: orgID, Required: actor.RoleAdmin}
	}
	return nil
}

// RequireMember fails unless the actor holds any role in orgID.
func (s Service) RequireMember(ctx context.Context, a actor.Actor, orgID string) (actor.Role, error) {
	role, err := s.OrgRole(ctx, a, orgID)
	if err != nil {
		return actor.RoleNone, err
	}
	if err := actor.RequireMember(a, role); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return actor.RoleNone, err
		}
		return actor.RoleNone, ForbiddenError{OrgID: orgID, Required: actor.RoleMember}
	}
	return role, nil
}
