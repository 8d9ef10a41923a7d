package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
)

// RowMapper translates between typed records and the positional cells of the remote grid
type RowMapper struct {
	columns []string
}

// NewRowMapper builds a mapper for the given header order
func NewRowMapper(columns []string) *RowMapper {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &RowMapper{columns: cols}
}

func (m *RowMapper) Columns() []string {
	cols := make([]string, len(m.columns))
	copy(cols, m.columns)
	return cols
}

// CheckHeader verifies that a remote header row matches the configured columns exactly
func (m *RowMapper) CheckHeader(header []string) error {
	if len(header) == 0 {
		return fmt.Errorf("header row is missing")
	}
	allBlank := true
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			allBlank = false
			break
		}
	}
	if allBlank {
		return fmt.Errorf("header row is empty")
	}

	// Trailing blank header cells are left behind by manual edits in the sheet
	trimmed := header
	for len(trimmed) > 0 && strings.TrimSpace(trimmed[len(trimmed)-1]) == "" {
		trimmed = trimmed[:len(trimmed)-1]
	}

	if len(trimmed) != len(m.columns) {
		return fmt.Errorf("header has %d columns, expected %d (%s)", len(trimmed), len(m.columns), strings.Join(m.columns, ", "))
	}
	for i, col := range m.columns {
		if trimmed[i] != col {
			return fmt.Errorf("column %d is %q, expected %q", i+1, trimmed[i], col)
		}
	}
	return nil
}

// ToCells renders a record in header order
func (m *RowMapper) ToCells(rec models.Record) []string {
	cells := make([]string, len(m.columns))
	for i, col := range m.columns {
		cells[i] = rec.Get(col)
	}
	return cells
}

// FromCells builds a record from a data row. Short rows are padded with empty values
func (m *RowMapper) FromCells(rowID int, cells []string) models.Record {
	rec := models.Record{RowID: rowID}
	for i, col := range m.columns {
		if i < len(cells) {
			rec.Set(col, cells[i])
		}
	}
	return rec
}

// Header renders the header row
func (m *RowMapper) Header() []string {
	return m.Columns()
}

// NormalizeFields trims values and converts timestamp-shaped input coming from form widgets
// into the date and time formats the shared sheet uses
func NormalizeFields(f models.Fields) models.Fields {
	f = f.Normalize()
	f.Date = formatDate(f.Date)
	f.Time = formatTime(f.Time)
	return f
}

func formatDate(val string) string {
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.Format("2006-01-02")
	}
	if t, err := time.Parse("2006-01-02", val); err == nil {
		return t.Format("2006-01-02")
	}
	return val
}

func formatTime(val string) string {
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.Format("15:04")
	}
	if t, err := time.Parse("15:04:05", val); err == nil {
		return t.Format("15:04")
	}
	return val
}
