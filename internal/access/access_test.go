package access

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	require.Equal(t, RoleAdmin, ParseRole(" Admin "))
	require.Equal(t, RoleStaff, ParseRole("staff"))
	require.Equal(t, RoleMember, ParseRole("MEMBER"))
	require.Equal(t, RoleUnknown, ParseRole("moderator"))
	require.Equal(t, RoleUnknown, ParseRole(""))
}

func TestResolveNestedPermissions(t *testing.T) {
	viewer := Resolve("u1", Profile{
		Name: "Ana",
		Role: "staff",
		Permissions: map[string]interface{}{
			PermVerifyUsers: true,
			PermAnnounce:    false,
			"canSomething":  "true",
		},
	})

	require.Equal(t, "u1", viewer.UID)
	require.Equal(t, RoleStaff, viewer.Role)
	require.True(t, viewer.Has(PermVerifyUsers))
	require.False(t, viewer.Has(PermAnnounce))
	require.True(t, viewer.Has("canSomething"))
	require.False(t, viewer.Has(PermPromoteUsers))
}

func TestResolveLegacyFlatFlag(t *testing.T) {
	viewer := Resolve("u2", Profile{
		Role: "staff",
		Flat: map[string]interface{}{PermVerifyUsers: true, "name": "ignored"},
	})

	require.True(t, viewer.Has(PermVerifyUsers))
	require.False(t, viewer.Has("name"))
	require.True(t, CanVerifyRegistrations(viewer))
}

func TestCanVerifyRegistrations(t *testing.T) {
	require.True(t, CanVerifyRegistrations(Viewer{Role: RoleAdmin}))
	require.False(t, CanVerifyRegistrations(Viewer{Role: RoleStaff}))
	require.True(t, CanVerifyRegistrations(Viewer{Role: RoleStaff, Permissions: map[string]bool{PermVerifyUsers: true}}))
	require.False(t, CanVerifyRegistrations(Viewer{Role: RoleMember, Permissions: map[string]bool{PermVerifyUsers: true}}))
	require.False(t, CanVerifyRegistrations(Viewer{}))
}

func TestHasWithNilPermissions(t *testing.T) {
	var viewer Viewer
	require.False(t, viewer.Has(PermVerifyUsers))
}
