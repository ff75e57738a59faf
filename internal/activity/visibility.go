package activity

import (
	"strings"

	"github.com/noah-isme/portal-notify-api/internal/access"
)

// IsVisible reports whether viewer may see r. It depends only on its arguments.
func IsVisible(r Record, viewer access.Viewer) bool {
	return Visit[bool](r, visibility{viewer: viewer})
}

// Listed reports whether r appears in viewer's feed: visible and dated.
func Listed(r Record, viewer access.Viewer) bool {
	return !r.header().Undated && IsVisible(r, viewer)
}

// Visible returns the records listed for viewer, preserving order.
func Visible(records []Record, viewer access.Viewer) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if Listed(r, viewer) {
			out = append(out, r)
		}
	}
	return out
}

type visibility struct {
	viewer access.Viewer
}

func (v visibility) Registration(*Registration) bool {
	return access.CanVerifyRegistrations(v.viewer)
}

func (v visibility) ResourceUpload(r *ResourceUpload) bool {
	level := strings.ToLower(strings.TrimSpace(r.AccessLevel))
	if level == "" {
		level = AccessPublic
	}
	switch v.viewer.Role {
	case access.RoleAdmin:
		return true
	case access.RoleStaff:
		return level == AccessPublic || level == AccessStaff
	case access.RoleMember:
		return level == AccessPublic || level == AccessMembers
	default:
		return false
	}
}

func (v visibility) Announcement(*Announcement) bool { return v.organisationWide() }

func (v visibility) Schedule(*Schedule) bool { return v.organisationWide() }

func (v visibility) Meeting(*Meeting) bool { return v.organisationWide() }

func (visibility) Unknown(*Unknown) bool { return false }

func (v visibility) organisationWide() bool {
	return v.viewer.Role != access.RoleUnknown
}
