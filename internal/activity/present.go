package activity

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/portal-notify-api/internal/access"
)

// Tab selects which part of a viewer's feed is rendered.
type Tab string

// Feed tabs.
const (
	TabAll    Tab = "all"
	TabUnread Tab = "unread"
)

// ParseTab maps a query value onto a tab; anything unrecognised is TabAll.
func ParseTab(value string) Tab {
	if Tab(strings.ToLower(strings.TrimSpace(value))) == TabUnread {
		return TabUnread
	}
	return TabAll
}

// Navigation targets opened when an item is clicked.
const (
	TargetUserManagement = "user-management"
	TargetResources      = "resources"
	TargetAnnouncements  = "announcements"
	TargetSchedules      = "schedules"
	TargetMeetings       = "meetings"
)

// ActionVerify is the inline action offered on unsolved registrations.
const ActionVerify = "verify"

// Action is an inline action rendered on an item.
type Action struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Item is the rendered view fragment of one record. Text fields are HTML-safe.
type Item struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Avatar      string   `json:"avatar"`
	AvatarColor string   `json:"avatar_color,omitempty"`
	Title       string   `json:"title"`
	Lines       []string `json:"lines"`
	Status      string   `json:"status,omitempty"`
	Actions     []Action `json:"actions,omitempty"`
	Unread      bool     `json:"unread"`
	Target      string   `json:"target"`
	Timestamp   int64    `json:"timestamp"`
}

// Feed is a rendered feed for one viewer.
type Feed struct {
	Items       []Item `json:"items"`
	UnreadCount int    `json:"unread_count"`
	Visible     int    `json:"visible"`
}

// Options carries render-time lookups.
type Options struct {
	// Names resolves user ids (uploaders, creators) to display names.
	Names    map[string]string
	Location *time.Location
}

var textPolicy = bluemonday.StrictPolicy()

// View runs the whole pipeline for viewer: visibility, read state, tab filter and rendering.
func View(s *Snapshot, viewer access.Viewer, tab Tab, opts Options) Feed {
	visible := Visible(s.Records(), viewer)
	list := visible
	if tab == TabUnread {
		list = FilterUnread(viewer, visible)
	}
	return Feed{
		Items:       Render(list, viewer, opts),
		UnreadCount: UnreadCount(viewer, visible),
		Visible:     len(visible),
	}
}

// Render produces one item per record, in order. Records without a template are skipped.
func Render(records []Record, viewer access.Viewer, opts Options) []Item {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	p := presenter{viewer: viewer, opts: opts}
	items := make([]Item, 0, len(records))
	for _, r := range records {
		item := Visit[*Item](r, p)
		if item == nil {
			continue
		}
		item.ID = ID(r)
		item.Timestamp = Timestamp(r)
		item.Unread = !IsRead(r, viewer.UID)
		if item.Lines == nil {
			item.Lines = []string{}
		}
		items = append(items, *item)
	}
	return items
}

type presenter struct {
	viewer access.Viewer
	opts   Options
}

func (p presenter) Registration(r *Registration) *Item {
	item := &Item{
		Type:   string(TypeRegistration),
		Avatar: initial(r.Name),
		Title:  clean(r.Name),
		Lines:  nonEmpty(clean(r.Email), p.formatMillis(r.Timestamp)),
		Target: TargetUserManagement,
	}

	switch {
	case r.DeletedBy != "":
		item.Status = "Account deleted by " + clean(p.name(r.DeletedBy))
	case !r.Solved:
		item.Actions = []Action{{Name: ActionVerify, Label: "Verify Account"}}
	case r.VerifiedBy != "":
		item.Status = fmt.Sprintf("Verified by %s on %s", clean(r.VerifiedBy), p.formatDate(r.VerificationDate))
	default:
		item.Status = "Solved"
	}
	return item
}

func (p presenter) ResourceUpload(r *ResourceUpload) *Item {
	level := r.AccessLevel
	if level == "" {
		level = AccessPublic
	}
	name := r.ResourceName
	if name == "" {
		name = "Unnamed Resource"
	}
	uploader := "Unknown User"
	if resolved, ok := p.opts.Names[r.UploadedBy]; ok && resolved != "" {
		uploader = resolved
	}
	return &Item{
		Type:   string(TypeResourceUpload),
		Avatar: "📘",
		Title:  "New Resource Uploaded",
		Lines: nonEmpty(
			clean(name),
			"Uploaded by "+clean(uploader),
			"Access: "+clean(level),
			p.formatMillis(r.Timestamp),
		),
		Target: TargetResources,
	}
}

func (p presenter) Announcement(r *Announcement) *Item {
	when := p.formatDate(r.Date)
	if r.Date == "" {
		when = p.formatMillis(r.Timestamp)
	}
	return &Item{
		Type:   string(TypeAnnouncement),
		Avatar: "📢",
		Title:  "Announcement: " + clean(orDefault(r.Title, "Untitled")),
		Lines:  nonEmpty(when),
		Target: TargetAnnouncements,
	}
}

func (p presenter) Schedule(r *Schedule) *Item {
	icon, color := scheduleStyle(r.ScheduleType)
	end := "N/A"
	if r.End != "" {
		end = p.formatDate(r.End)
	}
	return &Item{
		Type:        string(TypeSchedule),
		Avatar:      icon,
		AvatarColor: color,
		Title:       clean(orDefault(r.Title, "Untitled")),
		Lines: []string{
			"Type: " + clean(orDefault(r.ScheduleType, "General")),
			"Start: " + p.formatDate(r.Start),
			"End: " + end,
		},
		Target: TargetSchedules,
	}
}

func (p presenter) Meeting(r *Meeting) *Item {
	lines := []string{}
	if r.Date != "" {
		lines = append(lines, "Date: "+clean(r.Date))
	}
	if r.Time != "" {
		lines = append(lines, "Time: "+clean(r.Time))
	}
	if r.CreatedBy != "" {
		lines = append(lines, "Scheduled by "+clean(p.name(r.CreatedBy)))
	}
	return &Item{
		Type:   string(TypeMeeting),
		Avatar: "🎥",
		Title:  clean(orDefault(r.Title, "Meeting scheduled")),
		Lines:  lines,
		Target: TargetMeetings,
	}
}

func (presenter) Unknown(*Unknown) *Item { return nil }

func (p presenter) name(uid string) string {
	if resolved, ok := p.opts.Names[uid]; ok && resolved != "" {
		return resolved
	}
	return uid
}

func (p presenter) formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).In(p.opts.Location).Format("Jan 2, 2006 3:04 PM")
}

func (p presenter) formatDate(value string) string {
	if ms, ok := ParseDate(value); ok {
		return p.formatMillis(ms)
	}
	return clean(value)
}

// Target returns the navigation target for r, or "" for records without a screen.
func Target(r Record) string {
	item := Visit[*Item](r, presenter{opts: Options{Location: time.UTC}})
	if item == nil {
		return ""
	}
	return item.Target
}

func scheduleStyle(kind string) (string, string) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "meeting":
		return "📘", "#0984e3"
	case "performance":
		return "📅", "#00b894"
	case "activity":
		return "📝", "#e17055"
	default:
		return "📅", "#6c5ce7"
	}
}

func initial(name string) string {
	name = strings.TrimSpace(textPolicy.Sanitize(name))
	if name == "" {
		return "?"
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r))
}

func clean(value string) string {
	return strings.TrimSpace(textPolicy.Sanitize(value))
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// UserRefs lists the distinct user ids records point at (uploaders, creators, deleters), so
// callers can resolve display names before rendering.
func UserRefs(records []Record) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, r := range records {
		for _, uid := range Visit[[]string](r, refCollector{}) {
			if uid == "" {
				continue
			}
			if _, ok := seen[uid]; ok {
				continue
			}
			seen[uid] = struct{}{}
			out = append(out, uid)
		}
	}
	return out
}

type refCollector struct{}

func (refCollector) Registration(r *Registration) []string     { return []string{r.DeletedBy} }
func (refCollector) ResourceUpload(r *ResourceUpload) []string { return []string{r.UploadedBy} }
func (refCollector) Announcement(*Announcement) []string       { return nil }
func (refCollector) Schedule(r *Schedule) []string             { return []string{r.CreatedBy} }
func (refCollector) Meeting(r *Meeting) []string               { return []string{r.CreatedBy} }
func (refCollector) Unknown(*Unknown) []string                 { return nil }
