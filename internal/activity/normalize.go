package activity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Document is a raw activity record as stored, keyed by field name.
type Document map[string]interface{}

// Warning describes a data-quality problem found while normalizing a record.
type Warning struct {
	RecordID string
	Reason   string
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Normalize converts one raw document into its record variant. It never fails: unknown
// types become Unknown and unresolvable timestamps become 0 with Undated set, both reported
// as warnings.
func Normalize(id string, doc Document) (Record, []Warning) {
	var warnings []Warning
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, Warning{RecordID: id, Reason: fmt.Sprintf(format, args...)})
	}

	kind := strings.TrimSpace(stringField(doc, "type"))
	header := Header{
		ID:     id,
		Kind:   kind,
		ReadBy: readByField(doc),
	}

	ts, ok := resolveTimestamp(doc)
	if !ok {
		warn("no resolvable timestamp")
	}
	header.Timestamp = ts
	header.Undated = !ok

	resolved := Type(kind)
	if alias, exists := typeAliases[kind]; exists {
		resolved = alias
	}

	switch resolved {
	case TypeRegistration:
		return &Registration{
			Header:           header,
			UserID:           stringField(doc, "userId"),
			Name:             stringField(doc, "name"),
			Email:            stringField(doc, "email"),
			Role:             stringField(doc, "role"),
			Solved:           boolField(doc, "solved"),
			VerifiedBy:       stringField(doc, "verifiedBy"),
			VerificationDate: stringField(doc, "verificationDate"),
			DeletedBy:        stringField(doc, "deletedBy"),
		}, warnings
	case TypeResourceUpload:
		return &ResourceUpload{
			Header:       header,
			ResourceID:   stringField(doc, "resourceId"),
			ResourceName: stringField(doc, "resourceName"),
			Category:     stringField(doc, "category"),
			AccessLevel:  strings.ToLower(stringField(doc, "accessLevel")),
			UploadedBy:   stringField(doc, "uploadedBy"),
		}, warnings
	case TypeAnnouncement:
		return &Announcement{
			Header:   header,
			Title:    stringField(doc, "title"),
			Content:  stringField(doc, "content"),
			Audience: stringField(doc, "audience"),
			Date:     stringField(doc, "date"),
		}, warnings
	case TypeSchedule:
		return &Schedule{
			Header:       header,
			Title:        stringField(doc, "title"),
			ScheduleType: stringField(doc, "scheduleType"),
			Start:        stringField(doc, "start"),
			End:          stringField(doc, "end"),
			CreatedBy:    stringField(doc, "createdBy"),
		}, warnings
	case TypeMeeting:
		return &Meeting{
			Header:    header,
			MeetingID: stringField(doc, "meetingId"),
			Title:     stringField(doc, "title"),
			Date:      stringField(doc, "date"),
			Time:      stringField(doc, "time"),
			CreatedBy: stringField(doc, "createdBy"),
		}, warnings
	default:
		warn("unknown record type %q", kind)
		return &Unknown{Header: header}, warnings
	}
}

// resolveTimestamp applies the precedence timestamp, createdAt, date (+time), start.
func resolveTimestamp(doc Document) (int64, bool) {
	if ts, ok := numericField(doc, "timestamp"); ok {
		return ts, true
	}
	if ms, ok := ParseDate(stringField(doc, "createdAt")); ok {
		return ms, true
	}
	if date := stringField(doc, "date"); date != "" {
		if clock := stringField(doc, "time"); clock != "" {
			if ms, ok := ParseDate(date + "T" + clock); ok {
				return ms, true
			}
		}
		if ms, ok := ParseDate(date); ok {
			return ms, true
		}
	}
	if ms, ok := ParseDate(stringField(doc, "start")); ok {
		return ms, true
	}
	return 0, false
}

// ParseDate parses the date layouts the portal screens write and returns epoch millis.
// Values without a zone are read as UTC.
func ParseDate(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UnixMilli(), true
		}
	}
	return 0, false
}

func stringField(doc Document, key string) string {
	switch v := doc[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func boolField(doc Document, key string) bool {
	switch v := doc[key].(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	default:
		return false
	}
}

func numericField(doc Document, key string) (int64, bool) {
	var f float64
	switch v := doc[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func readByField(doc Document) map[string]bool {
	readBy := map[string]bool{}
	raw, ok := doc["readBy"].(map[string]interface{})
	if !ok {
		return readBy
	}
	for uid, value := range raw {
		if flag, ok := value.(bool); ok && flag {
			readBy[uid] = true
		}
	}
	return readBy
}
