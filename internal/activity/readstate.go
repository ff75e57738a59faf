package activity

import "github.com/noah-isme/portal-notify-api/internal/access"

// UnreadCount counts the records in visible that viewer has not read.
func UnreadCount(viewer access.Viewer, visible []Record) int {
	count := 0
	for _, r := range visible {
		if !IsRead(r, viewer.UID) {
			count++
		}
	}
	return count
}

// FilterUnread returns the unread records of visible in their original order.
func FilterUnread(viewer access.Viewer, visible []Record) []Record {
	out := make([]Record, 0, len(visible))
	for _, r := range visible {
		if !IsRead(r, viewer.UID) {
			out = append(out, r)
		}
	}
	return out
}
