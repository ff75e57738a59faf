package activity

import (
	"sort"
	"time"
)

// Snapshot is an immutable, sorted set of normalized records built from one full store
// snapshot. Methods that change read state return a new Snapshot.
type Snapshot struct {
	version  uint64
	loadedAt time.Time
	records  []Record
	index    map[string]int
}

// Build normalizes every document and sorts the result newest first. Documents sharing an id
// cannot occur because the input is keyed by id, so an amended record replaces its previous
// version.
func Build(version uint64, loadedAt time.Time, docs map[string]Document) (*Snapshot, []Warning) {
	records := make([]Record, 0, len(docs))
	var warnings []Warning
	for id, doc := range docs {
		record, recordWarnings := Normalize(id, doc)
		records = append(records, record)
		warnings = append(warnings, recordWarnings...)
	}
	Sort(records)

	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].RecordID < warnings[j].RecordID })

	return newSnapshot(version, loadedAt, records), warnings
}

// Empty returns a snapshot holding no records.
func Empty() *Snapshot {
	return newSnapshot(0, time.Time{}, nil)
}

func newSnapshot(version uint64, loadedAt time.Time, records []Record) *Snapshot {
	index := make(map[string]int, len(records))
	for i, record := range records {
		index[ID(record)] = i
	}
	return &Snapshot{version: version, loadedAt: loadedAt, records: records, index: index}
}

// Sort orders records by timestamp descending, then id descending.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := Timestamp(records[i]), Timestamp(records[j])
		if ti != tj {
			return ti > tj
		}
		return ID(records[i]) > ID(records[j])
	})
}

// Version is the store delivery counter the snapshot was built from.
func (s *Snapshot) Version() uint64 { return s.version }

// LoadedAt is when the underlying store snapshot was read.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of records, including unknown ones.
func (s *Snapshot) Len() int { return len(s.records) }

// Records returns the sorted records. The slice is a copy; the records must be treated as
// read-only.
func (s *Snapshot) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Get looks a record up by id.
func (s *Snapshot) Get(id string) (Record, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.records[i], true
}

// WithRead returns a snapshot in which uid has read every listed record. Records already
// read, and ids not present, are left alone. When nothing changes s itself is returned.
func (s *Snapshot) WithRead(uid string, ids ...string) *Snapshot {
	var records []Record
	for _, id := range ids {
		i, ok := s.index[id]
		if !ok || IsRead(s.records[i], uid) {
			continue
		}
		if records == nil {
			records = make([]Record, len(s.records))
			copy(records, s.records)
		}
		records[i] = withRead(records[i], uid)
	}
	if records == nil {
		return s
	}
	return &Snapshot{version: s.version, loadedAt: s.loadedAt, records: records, index: s.index}
}
