package activity

import (
	"fmt"
	"time"

	"github.com/noah-isme/portal-notify-api/internal/access"
)

// RecentEntry is one line of the dashboard "recent activity" widget.
type RecentEntry struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Icon      string `json:"icon"`
	Message   string `json:"message"`
	TimeAgo   string `json:"time_ago"`
	Timestamp int64  `json:"timestamp"`
}

// Recent lists the newest visible records the dashboard shows. Registrations, unknown types
// and records without a timestamp are left out.
func Recent(s *Snapshot, viewer access.Viewer, now time.Time, limit int) []RecentEntry {
	if limit <= 0 {
		limit = 50
	}
	out := make([]RecentEntry, 0, limit)
	for _, r := range Visible(s.Records(), viewer) {
		if len(out) == limit {
			break
		}
		if Timestamp(r) <= 0 {
			continue
		}
		entry := Visit[*RecentEntry](r, recentFormatter{})
		if entry == nil {
			continue
		}
		entry.ID = ID(r)
		entry.Timestamp = Timestamp(r)
		entry.TimeAgo = TimeAgo(now, Timestamp(r))
		out = append(out, *entry)
	}
	return out
}

type recentFormatter struct{}

func (recentFormatter) Registration(*Registration) *RecentEntry { return nil }

func (recentFormatter) ResourceUpload(r *ResourceUpload) *RecentEntry {
	return &RecentEntry{
		Type:    string(TypeResourceUpload),
		Icon:    "file-upload",
		Message: "New resource uploaded: " + clean(orDefault(r.ResourceName, "Untitled")),
	}
}

func (recentFormatter) Announcement(r *Announcement) *RecentEntry {
	return &RecentEntry{
		Type:    string(TypeAnnouncement),
		Icon:    "bullhorn",
		Message: "New announcement: " + clean(orDefault(r.Title, "Untitled")),
	}
}

func (recentFormatter) Schedule(r *Schedule) *RecentEntry {
	return &RecentEntry{
		Type:    string(TypeSchedule),
		Icon:    "calendar-alt",
		Message: "Event added: " + clean(orDefault(r.Title, "Untitled")),
	}
}

func (recentFormatter) Meeting(r *Meeting) *RecentEntry {
	return &RecentEntry{
		Type:    string(TypeMeeting),
		Icon:    "video",
		Message: "Meeting scheduled: " + clean(orDefault(r.Title, "Untitled")),
	}
}

func (recentFormatter) Unknown(*Unknown) *RecentEntry { return nil }

// TimeAgo renders the distance between now and ms the way the dashboard shows it.
func TimeAgo(now time.Time, ms int64) string {
	diff := now.Sub(time.UnixMilli(ms))
	minutes := int(diff / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return fmt.Sprintf("%d min ago", minutes)
	case hours < 24:
		return fmt.Sprintf("%d hr%s ago", hours, plural(hours))
	default:
		return fmt.Sprintf("%d day%s ago", days, plural(days))
	}
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
