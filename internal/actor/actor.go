// Package actor carries the resolved identity a core operation is evaluated against.
package actor

import (
	"context"
	"net/http"
	"strings"

	"sprintboard/internal/domain"
)

// Role is the closed set of organization roles.
type Role string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// NormalizeRole maps identity-provider role names onto Role.
// Unknown values map to RoleNone.
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin", "org:admin":
		return RoleAdmin
	case "member", "org:member", "basic_member", "org:basic_member":
		return RoleMember
	default:
		return RoleNone
	}
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Actor is the identity, active organization and role of a caller.
// OrgID is empty when the caller has no active organization.
type Actor struct {
	ID    string `json:"actor_id"`
	OrgID string `json:"org_id,omitempty"`
	Role  Role   `json:"role,omitempty"`
}

// Resolver yields the actor for an inbound request.
type Resolver interface {
	ResolveActor(r *http.Request) (Actor, error)
}

// RequireSignedIn fails with ErrUnauthorized when no actor resolved.
func RequireSignedIn(a Actor) error {
	if strings.TrimSpace(a.ID) == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

// RequireAdmin checks role against the admin capability.
func RequireAdmin(a Actor, role Role) error {
	if err := RequireSignedIn(a); err != nil {
		return err
	}
	if role != RoleAdmin {
		return domain.PermissionError{Actor: a.ID, Reason: "organization admin required"}
	}
	return nil
}

// RequireMember accepts any organization role.
func RequireMember(a Actor, role Role) error {
	if err := RequireSignedIn(a); err != nil {
		return err
	}
	if !role.Valid() {
		return domain.PermissionError{Actor: a.ID, Reason: "organization membership required"}
	}
	return nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
