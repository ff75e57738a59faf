package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-notify-api/internal/access"
)

func itemIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestViewEndToEndScenario(t *testing.T) {
	snapshot, _ := Build(1, time.Now(), map[string]Document{
		"r1": {"type": "announcement", "timestamp": float64(100), "readBy": map[string]interface{}{}},
		"r2": {"type": "registration", "timestamp": float64(200), "readBy": map[string]interface{}{"u1": true}},
	})
	viewer := access.Viewer{UID: "u1", Role: access.RoleStaff, Permissions: map[string]bool{access.PermVerifyUsers: true}}

	feed := View(snapshot, viewer, TabAll, Options{})
	require.Equal(t, []string{"r2", "r1"}, itemIDs(feed.Items))
	require.Equal(t, 1, feed.UnreadCount)
	require.False(t, feed.Items[0].Unread)
	require.True(t, feed.Items[1].Unread)

	unread := View(snapshot, viewer, TabUnread, Options{})
	require.Equal(t, []string{"r1"}, itemIDs(unread.Items))
	require.Equal(t, 1, unread.UnreadCount)
}

func TestViewSkipsUnknownTypes(t *testing.T) {
	snapshot, _ := Build(1, time.Now(), map[string]Document{
		"x": {"type": "unknown_future_type", "timestamp": float64(999)},
		"a": {"type": "announcement", "title": "Hello", "timestamp": float64(1)},
	})

	for _, viewer := range allTestViewers {
		feed := View(snapshot, viewer, TabAll, Options{})
		require.NotContains(t, itemIDs(feed.Items), "x")
		require.Equal(t, len(FilterUnread(viewer, Visible(snapshot.Records(), viewer))), feed.UnreadCount)
	}

	require.Equal(t, 1, View(snapshot, member, TabAll, Options{}).UnreadCount)
}

func TestViewSortsByTimestampAcrossTypes(t *testing.T) {
	snapshot, _ := Build(1, time.Now(), map[string]Document{
		"a": {"type": "announcement", "timestamp": float64(10)},
		"b": {"type": "schedule", "start": "2025-01-01T00:00"},
		"c": {"type": "resource_upload", "timestamp": float64(5000)},
		"d": {"type": "meeting", "createdAt": "2024-06-01T00:00:00Z"},
	})

	feed := View(snapshot, admin, TabAll, Options{})
	for i := 1; i < len(feed.Items); i++ {
		require.GreaterOrEqual(t, feed.Items[i-1].Timestamp, feed.Items[i].Timestamp)
	}
	require.Equal(t, []string{"b", "d", "c", "a"}, itemIDs(feed.Items))
}

func TestAmendedRecordRendersOnce(t *testing.T) {
	first, _ := Build(1, time.Now(), map[string]Document{
		"reg": {"type": "registration", "name": "ana", "timestamp": float64(1)},
	})
	second, _ := Build(2, time.Now(), map[string]Document{
		"reg": {"type": "registration", "name": "ana", "timestamp": float64(1), "deletedBy": "admin-1"},
	})

	require.Len(t, View(first, admin, TabAll, Options{}).Items, 1)

	items := View(second, admin, TabAll, Options{Names: map[string]string{"admin-1": "Root"}}).Items
	require.Len(t, items, 1)
	require.Equal(t, "Account deleted by Root", items[0].Status)
	require.Empty(t, items[0].Actions)
}

func TestRegistrationTemplate(t *testing.T) {
	unsolved := record(t, "r", Document{"type": "registration", "name": "<b>maria</b>", "email": "maria@example.com", "timestamp": float64(1700000000000)})
	items := Render([]Record{unsolved}, admin, Options{})
	require.Len(t, items, 1)
	require.Equal(t, "M", items[0].Avatar)
	require.Equal(t, "maria", items[0].Title)
	require.Equal(t, []Action{{Name: ActionVerify, Label: "Verify Account"}}, items[0].Actions)
	require.Equal(t, TargetUserManagement, items[0].Target)
	require.Equal(t, "maria@example.com", items[0].Lines[0])

	verified := record(t, "v", Document{"type": "registration", "name": "Jo", "solved": true, "verifiedBy": "Admin", "verificationDate": "2025-03-01T10:00:00Z"})
	items = Render([]Record{verified}, admin, Options{})
	require.Equal(t, "Verified by Admin on Mar 1, 2025 10:00 AM", items[0].Status)
	require.Empty(t, items[0].Actions)

	solved := record(t, "s", Document{"type": "registration", "solved": true})
	items = Render([]Record{solved}, admin, Options{})
	require.Equal(t, "Solved", items[0].Status)
	require.Equal(t, "?", items[0].Avatar)
}

func TestResourceAndScheduleTemplates(t *testing.T) {
	upload := record(t, "u", Document{"type": "resource_upload", "uploadedBy": "u9", "timestamp": float64(1)})
	items := Render([]Record{upload}, admin, Options{Names: map[string]string{"u9": "Lee"}})
	require.Equal(t, "New Resource Uploaded", items[0].Title)
	require.Equal(t, "Unnamed Resource", items[0].Lines[0])
	require.Equal(t, "Uploaded by Lee", items[0].Lines[1])
	require.Equal(t, "Access: public", items[0].Lines[2])

	unknownUploader := Render([]Record{upload}, admin, Options{})
	require.Equal(t, "Uploaded by Unknown User", unknownUploader[0].Lines[1])

	schedule := record(t, "s", Document{"type": "schedule", "title": "Recital", "scheduleType": "Performance", "start": "2025-03-01T10:00"})
	items = Render([]Record{schedule}, admin, Options{})
	require.Equal(t, "📅", items[0].Avatar)
	require.Equal(t, "#00b894", items[0].AvatarColor)
	require.Equal(t, []string{"Type: Performance", "Start: Mar 1, 2025 10:00 AM", "End: N/A"}, items[0].Lines)
	require.Equal(t, TargetSchedules, items[0].Target)
}

func TestTarget(t *testing.T) {
	require.Equal(t, TargetAnnouncements, Target(record(t, "a", Document{"type": "announcement"})))
	require.Equal(t, TargetMeetings, Target(record(t, "m", Document{"type": "meeting"})))
	require.Equal(t, "", Target(record(t, "x", Document{"type": "later"})))
}

func TestRecentAndTimeAgo(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	snapshot, _ := Build(1, now, map[string]Document{
		"a": {"type": "announcement", "title": "Fair", "timestamp": float64(now.Add(-30 * time.Second).UnixMilli())},
		"b": {"type": "registration", "timestamp": float64(now.UnixMilli())},
		"c": {"type": "schedule", "title": "Choir", "timestamp": float64(now.Add(-2 * time.Hour).UnixMilli())},
		"d": {"type": "announcement"},
	})

	entries := Recent(snapshot, admin, now, 10)
	require.Len(t, entries, 2)
	require.Equal(t, "New announcement: Fair", entries[0].Message)
	require.Equal(t, "just now", entries[0].TimeAgo)
	require.Equal(t, "Event added: Choir", entries[1].Message)
	require.Equal(t, "2 hrs ago", entries[1].TimeAgo)

	require.Len(t, Recent(snapshot, admin, now, 1), 1)

	require.Equal(t, "5 min ago", TimeAgo(now, now.Add(-5*time.Minute).UnixMilli()))
	require.Equal(t, "1 hr ago", TimeAgo(now, now.Add(-61*time.Minute).UnixMilli()))
	require.Equal(t, "1 day ago", TimeAgo(now, now.Add(-25*time.Hour).UnixMilli()))
	require.Equal(t, "3 days ago", TimeAgo(now, now.Add(-72*time.Hour).UnixMilli()))
}

func TestUserRefs(t *testing.T) {
	records := []Record{
		record(t, "u", Document{"type": "resource_upload", "uploadedBy": "u9"}),
		record(t, "s", Document{"type": "schedule", "createdBy": "u9"}),
		record(t, "m", Document{"type": "meeting", "createdBy": "u3"}),
		record(t, "a", Document{"type": "announcement"}),
	}
	require.Equal(t, []string{"u9", "u3"}, UserRefs(records))
}
