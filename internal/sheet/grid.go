// Package sheet is the typed boundary to the remote table that holds the antibiotic records.
//
// A Grid is the raw remote boundary: a rectangular table with one header row and data rows
// addressed by 1-based position. Backends translate their own failures into syncerr kinds.
// Client layers the record schema, validation and compare-and-swap checks on top of a Grid;
// it never caches and never retries.
package sheet

import "context"

// Grid is a remote rectangular table
type Grid interface {
	// ReadGrid returns the header row followed by every data row.
	// An empty result means the table has no header
	ReadGrid(ctx context.Context) ([][]string, error)

	// AppendRow adds a data row after the last one and returns its 1-based data position
	AppendRow(ctx context.Context, cells []string) (int, error)

	// UpdateRow overwrites the data row at a 1-based position
	UpdateRow(ctx context.Context, rowID int, cells []string) error

	// DeleteRow removes the data row at a 1-based position, shifting later rows up
	DeleteRow(ctx context.Context, rowID int) error

	// WriteHeader replaces the header row
	WriteHeader(ctx context.Context, header []string) error
}
