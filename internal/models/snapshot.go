package models

import "time"

// Snapshot is a complete copy of the table read at one point in time.
// It is never mutated after construction; a refresh replaces it wholesale
type Snapshot struct {
	Records   []Record
	FetchedAt time.Time
	Schema    []string
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Row returns a copy of the record at a 1-based position
func (s *Snapshot) Row(rowID int) (*Record, bool) {
	if s == nil || rowID < 1 || rowID > len(s.Records) {
		return nil, false
	}
	r := s.Records[rowID-1]
	return &r, true
}

// FindEntry locates a record by its insert marker
func (s *Snapshot) FindEntry(entryID string) (*Record, bool) {
	if s == nil || entryID == "" {
		return nil, false
	}
	for i := range s.Records {
		if s.Records[i].EntryID == entryID {
			r := s.Records[i]
			return &r, true
		}
	}
	return nil, false
}

// Age reports how old the snapshot is relative to now
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
