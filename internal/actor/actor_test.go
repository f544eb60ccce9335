package actor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/domain"
)

func TestNormalizeRole(t *testing.T) {
	cases := map[string]Role{
		"admin":      RoleAdmin,
		"org:admin":  RoleAdmin,
		" ORG:Admin": RoleAdmin,
		"member":     RoleMember,
		"org:member": RoleMember,
		"owner":      RoleNone,
		"":           RoleNone,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeRole(in), in)
	}
}

func TestGuards(t *testing.T) {
	anon := Actor{}
	require.True(t, errors.Is(RequireSignedIn(anon), domain.ErrUnauthorized))
	require.True(t, errors.Is(RequireAdmin(anon, RoleAdmin), domain.ErrUnauthorized))

	a := Actor{ID: "u1", OrgID: "org-1"}
	assert.NoError(t, RequireAdmin(a, RoleAdmin))
	assert.True(t, errors.Is(RequireAdmin(a, RoleMember), domain.ErrPermissionDenied))
	assert.NoError(t, RequireMember(a, RoleMember))
	assert.True(t, errors.Is(RequireMember(a, RoleNone), domain.ErrPermissionDenied))
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	ctx := WithActor(context.Background(), Actor{ID: "u1", Role: RoleAdmin})
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, RoleAdmin, got.Role)
}
