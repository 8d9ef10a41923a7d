package models

import "strings"

// Column names of the remote table, in header order
const (
	ColPatientID      = "patient_id"
	ColName           = "name"
	ColAntibiotic     = "antibiotic"
	ColDosage         = "dosage"
	ColRoute          = "route"
	ColDate           = "date"
	ColTime           = "time"
	ColAdministeredBy = "administered_by"
	ColNotes          = "notes"
	ColEntryID        = "entry_id"
)

// Columns is the canonical header row. A remote header that differs in any position is schema drift
var Columns = []string{
	ColPatientID,
	ColName,
	ColAntibiotic,
	ColDosage,
	ColRoute,
	ColDate,
	ColTime,
	ColAdministeredBy,
	ColNotes,
	ColEntryID,
}

// Fields are the user-editable values of one antibiotic administration event
type Fields struct {
	PatientID      string `json:"patient_id" yaml:"patient_id"`
	Name           string `json:"name" yaml:"name"`
	Antibiotic     string `json:"antibiotic" yaml:"antibiotic"`
	Dosage         string `json:"dosage" yaml:"dosage"`
	Route          string `json:"route" yaml:"route"`
	Date           string `json:"date" yaml:"date"`
	Time           string `json:"time" yaml:"time"`
	AdministeredBy string `json:"administered_by" yaml:"administered_by"`
	Notes          string `json:"notes" yaml:"notes"`
}

// Record is one row of the remote table.
// RowID is the 1-based data row position at the last read and is stale after any write
type Record struct {
	RowID   int    `json:"row_id"`
	EntryID string `json:"entry_id"`
	Fields
}

// Normalize trims surrounding whitespace from every field
func (f Fields) Normalize() Fields {
	return Fields{
		PatientID:      strings.TrimSpace(f.PatientID),
		Name:           strings.TrimSpace(f.Name),
		Antibiotic:     strings.TrimSpace(f.Antibiotic),
		Dosage:         strings.TrimSpace(f.Dosage),
		Route:          strings.TrimSpace(f.Route),
		Date:           strings.TrimSpace(f.Date),
		Time:           strings.TrimSpace(f.Time),
		AdministeredBy: strings.TrimSpace(f.AdministeredBy),
		Notes:          strings.TrimSpace(f.Notes),
	}
}

// Missing lists the required columns that are empty
func (f Fields) Missing() []string {
	var missing []string
	if strings.TrimSpace(f.PatientID) == "" {
		missing = append(missing, ColPatientID)
	}
	if strings.TrimSpace(f.Antibiotic) == "" {
		missing = append(missing, ColAntibiotic)
	}
	return missing
}

// Get returns the value stored under a column name
func (r *Record) Get(col string) string {
	switch col {
	case ColPatientID:
		return r.PatientID
	case ColName:
		return r.Name
	case ColAntibiotic:
		return r.Antibiotic
	case ColDosage:
		return r.Dosage
	case ColRoute:
		return r.Route
	case ColDate:
		return r.Date
	case ColTime:
		return r.Time
	case ColAdministeredBy:
		return r.AdministeredBy
	case ColNotes:
		return r.Notes
	case ColEntryID:
		return r.EntryID
	}
	return ""
}

// Set stores a value under a column name. Unknown columns are ignored
func (r *Record) Set(col, value string) {
	switch col {
	case ColPatientID:
		r.PatientID = value
	case ColName:
		r.Name = value
	case ColAntibiotic:
		r.Antibiotic = value
	case ColDosage:
		r.Dosage = value
	case ColRoute:
		r.Route = value
	case ColDate:
		r.Date = value
	case ColTime:
		r.Time = value
	case ColAdministeredBy:
		r.AdministeredBy = value
	case ColNotes:
		r.Notes = value
	case ColEntryID:
		r.EntryID = value
	}
}

// Clone returns a detached copy
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
