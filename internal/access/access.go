// Package access derives a viewer's role and permission set from the stored user profile.
// Every surface that needs a role or permission check goes through this package.
package access

import (
	"fmt"
	"strconv"
	"strings"
)

// Role identifies the portal role a viewer acts under.
type Role string

// Known roles. RoleUnknown is used for empty or unrecognised profile values.
const (
	RoleUnknown Role = ""
	RoleAdmin   Role = "admin"
	RoleStaff   Role = "staff"
	RoleMember  Role = "member"
)

// Permission names stored in a user profile's permissions map.
const (
	PermVerifyUsers        = "canVerifyUsers"
	PermAnnounce           = "canAnnounce"
	PermUploadResources    = "canUploadResources"
	PermAppointSchedules   = "canAppointSchedules"
	PermInitializeMeetings = "canInitializeMeetings"
	PermPromoteUsers       = "canPromoteUsers"
)

// KnownPermissions lists every permission the portal grants.
var KnownPermissions = []string{
	PermVerifyUsers,
	PermAnnounce,
	PermUploadResources,
	PermAppointSchedules,
	PermInitializeMeetings,
	PermPromoteUsers,
}

// ParseRole normalises a stored role value.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleStaff:
		return RoleStaff
	case RoleMember:
		return RoleMember
	default:
		return RoleUnknown
	}
}

// Viewer is the authenticated principal a feed is rendered for.
type Viewer struct {
	UID         string          `json:"uid"`
	Name        string          `json:"name"`
	Role        Role            `json:"role"`
	Permissions map[string]bool `json:"permissions"`
}

// Has reports whether the permission is granted. Absent keys are false.
func (v Viewer) Has(permission string) bool {
	if v.Permissions == nil {
		return false
	}
	return v.Permissions[permission]
}

// IsAdmin reports whether the viewer is an administrator.
func (v Viewer) IsAdmin() bool { return v.Role == RoleAdmin }

// IsStaff reports whether the viewer is staff.
func (v Viewer) IsStaff() bool { return v.Role == RoleStaff }

// IsMember reports whether the viewer is a regular member.
func (v Viewer) IsMember() bool { return v.Role == RoleMember }

// CanVerifyRegistrations gates registration notifications and the verify action.
func CanVerifyRegistrations(v Viewer) bool {
	switch v.Role {
	case RoleAdmin:
		return true
	case RoleStaff:
		return v.Has(PermVerifyUsers)
	default:
		return false
	}
}

// CanAccessUserManagement reports whether the viewer may open the user management screen.
func CanAccessUserManagement(v Viewer) bool {
	return CanVerifyRegistrations(v)
}

// Profile is the subset of a stored user document the resolver reads.
// Flat holds legacy top-level flags (e.g. canVerifyUsers stored next to role).
type Profile struct {
	Name        string
	Role        string
	Permissions map[string]interface{}
	Flat        map[string]interface{}
}

// Resolve builds the viewer for uid from its profile. It never fails: values it cannot
// interpret are treated as not granted.
func Resolve(uid string, profile Profile) Viewer {
	permissions := make(map[string]bool, len(KnownPermissions))
	for key, value := range profile.Flat {
		if isKnownPermission(key) && truthy(value) {
			permissions[key] = true
		}
	}
	for key, value := range profile.Permissions {
		if truthy(value) {
			permissions[key] = true
		} else if _, set := permissions[key]; !set {
			permissions[key] = false
		}
	}

	return Viewer{
		UID:         strings.TrimSpace(uid),
		Name:        strings.TrimSpace(profile.Name),
		Role:        ParseRole(profile.Role),
		Permissions: permissions,
	}
}

func isKnownPermission(key string) bool {
	for _, known := range KnownPermissions {
		if known == key {
			return true
		}
	}
	return false
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	case float64:
		return v != 0
	case int:
		return v != 0
	case nil:
		return false
	default:
		return strings.EqualFold(fmt.Sprint(v), "true")
	}
}
