// Package activity holds the notification feed core: the normalized record variants, the
// immutable snapshot they live in, visibility rules, read-state helpers and the presenter.
// Nothing in this package performs I/O.
package activity

// Type discriminates activity records.
type Type string

// Record types written by the portal screens.
const (
	TypeRegistration   Type = "registration"
	TypeResourceUpload Type = "resource_upload"
	TypeAnnouncement   Type = "announcement"
	TypeSchedule       Type = "schedule"
	TypeMeeting        Type = "meeting"
)

// typeAliases maps legacy type values onto their current variant.
var typeAliases = map[string]Type{
	"meeting_created": TypeMeeting,
}

// Access levels chosen when a resource is uploaded.
const (
	AccessPublic  = "public"
	AccessStaff   = "staff"
	AccessMembers = "members"
)

// Header carries the fields every record has.
type Header struct {
	ID        string
	Kind      string
	Timestamp int64
	ReadBy    map[string]bool
	// Undated is set when no timestamp field could be resolved. Such records stay in the
	// snapshot but are never listed.
	Undated bool
}

// Record is a normalized activity record produced by Normalize; use Visit to branch on the
// concrete variant. Types outside this package that embed Header are visited as Unknown.
type Record interface {
	header() *Header
}

func (h *Header) header() *Header { return h }

// Registration is logged when a member signs up and awaits verification.
type Registration struct {
	Header
	UserID           string
	Name             string
	Email            string
	Role             string
	Solved           bool
	VerifiedBy       string
	VerificationDate string
	DeletedBy        string
}

// ResourceUpload is logged when a resource is uploaded to the library.
type ResourceUpload struct {
	Header
	ResourceID   string
	ResourceName string
	Category     string
	AccessLevel  string
	UploadedBy   string
}

// Announcement is logged when an announcement is created or edited.
type Announcement struct {
	Header
	Title    string
	Content  string
	Audience string
	Date     string
}

// Schedule is logged when a calendar entry is created.
type Schedule struct {
	Header
	Title        string
	ScheduleType string
	Start        string
	End          string
	CreatedBy    string
}

// Meeting is logged when a meeting is scheduled.
type Meeting struct {
	Header
	MeetingID string
	Title     string
	Date      string
	Time      string
	CreatedBy string
}

// Unknown keeps records whose type this version does not understand.
type Unknown struct {
	Header
}

// Visitor has one method per record variant. Adding a variant adds a method here, which breaks
// every implementation until it handles the new case.
type Visitor[T any] interface {
	Registration(r *Registration) T
	ResourceUpload(r *ResourceUpload) T
	Announcement(r *Announcement) T
	Schedule(r *Schedule) T
	Meeting(r *Meeting) T
	Unknown(r *Unknown) T
}

// Visit dispatches r to the matching visitor method.
func Visit[T any](r Record, v Visitor[T]) T {
	switch rec := r.(type) {
	case *Registration:
		return v.Registration(rec)
	case *ResourceUpload:
		return v.ResourceUpload(rec)
	case *Announcement:
		return v.Announcement(rec)
	case *Schedule:
		return v.Schedule(rec)
	case *Meeting:
		return v.Meeting(rec)
	case *Unknown:
		return v.Unknown(rec)
	default:
		return v.Unknown(&Unknown{Header: *r.header()})
	}
}

// ID returns the store-assigned identifier.
func ID(r Record) string { return r.header().ID }

// Timestamp returns the resolved epoch millis used for ordering.
func Timestamp(r Record) int64 { return r.header().Timestamp }

// Kind returns the raw type value the record was stored with.
func Kind(r Record) string { return r.header().Kind }

// IsRead reports whether uid has acknowledged r.
func IsRead(r Record, uid string) bool {
	h := r.header()
	return h.ReadBy != nil && h.ReadBy[uid]
}

// withRead returns a copy of r whose ReadBy includes uid. r itself is not modified.
func withRead(r Record, uid string) Record {
	clone := Visit[Record](r, cloner{})
	h := clone.header()
	readBy := make(map[string]bool, len(h.ReadBy)+1)
	for k, v := range h.ReadBy {
		readBy[k] = v
	}
	readBy[uid] = true
	h.ReadBy = readBy
	return clone
}

type cloner struct{}

func (cloner) Registration(r *Registration) Record     { c := *r; return &c }
func (cloner) ResourceUpload(r *ResourceUpload) Record { c := *r; return &c }
func (cloner) Announcement(r *Announcement) Record     { c := *r; return &c }
func (cloner) Schedule(r *Schedule) Record             { c := *r; return &c }
func (cloner) Meeting(r *Meeting) Record               { c := *r; return &c }
func (cloner) Unknown(r *Unknown) Record               { c := *r; return &c }
