package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/mapper"
	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
	"github.com/Guizzs26/abx-sheet-sync/pkg/metrics"
)

// Client exposes the remote grid as a typed table of records
type Client struct {
	grid   Grid
	mapper *mapper.RowMapper
	logger *slog.Logger
	now    func() time.Time

	// headerOK is set once the remote header has been verified
	headerOK atomic.Bool
}

// NewClient wraps a grid using the canonical column order
func NewClient(grid Grid, logger *slog.Logger) *Client {
	return &Client{
		grid:   grid,
		mapper: mapper.NewRowMapper(models.Columns),
		logger: logger,
		now:    time.Now,
	}
}

// ReadAll fetches the header and every data row
func (c *Client) ReadAll(ctx context.Context) (*models.Snapshot, error) {
	const op = "read_all"

	grid, err := c.grid.ReadGrid(ctx)
	observe(op, err)
	if err != nil {
		return nil, err
	}

	if err := c.checkHeader(op, grid); err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(grid)-1)
	for i, cells := range grid[1:] {
		records = append(records, c.mapper.FromCells(i+1, cells))
	}

	return &models.Snapshot{
		Records:   records,
		FetchedAt: c.now(),
		Schema:    c.mapper.Columns(),
	}, nil
}

// AppendRow writes a new record tagged with marker and returns its resolved position
func (c *Client) AppendRow(ctx context.Context, fields models.Fields, marker string) (int, error) {
	const op = "append"

	if err := validate(op, fields); err != nil {
		return 0, err
	}
	if err := c.ensureHeaderVerified(ctx, op); err != nil {
		return 0, err
	}

	rec := models.Record{EntryID: marker, Fields: fields}
	rowID, err := c.grid.AppendRow(ctx, c.mapper.ToCells(rec))
	observe(op, err)
	if err != nil {
		return 0, err
	}

	c.logger.Debug("Row appended", "row_id", rowID, "entry_id", marker)
	return rowID, nil
}

// UpdateRow overwrites the row at rowID.
// With a non-nil baseline the write only happens if every column still holds either the
// baseline value or the value being written; otherwise a conflict carrying the current row is returned
func (c *Client) UpdateRow(ctx context.Context, rowID int, fields models.Fields, baseline *models.Record) error {
	const op = "update"

	if err := validate(op, fields); err != nil {
		return err
	}

	current, err := c.currentRow(ctx, op, rowID)
	if err != nil {
		return err
	}

	proposed := models.Record{RowID: rowID, EntryID: current.EntryID, Fields: fields}
	if baseline != nil {
		// entry_id is the row's identity: a position that now holds another record is a conflict
		// even when every user column matches
		if current.EntryID != baseline.EntryID {
			c.logger.Info("Update conflict detected", "row_id", rowID, "column", models.ColEntryID)
			return syncerr.Conflict(op, rowID, current)
		}
		proposed.EntryID = baseline.EntryID
		for _, col := range models.Columns {
			cur := current.Get(col)
			if cur != baseline.Get(col) && cur != proposed.Get(col) {
				c.logger.Info("Update conflict detected", "row_id", rowID, "column", col)
				return syncerr.Conflict(op, rowID, current)
			}
		}
	}

	err = c.grid.UpdateRow(ctx, rowID, c.mapper.ToCells(proposed))
	observe(op, err)
	return err
}

// DeleteRow removes the row at rowID. With a non-nil baseline the row must still match it exactly
func (c *Client) DeleteRow(ctx context.Context, rowID int, baseline *models.Record) error {
	const op = "delete"

	current, err := c.currentRow(ctx, op, rowID)
	if err != nil {
		return err
	}

	if baseline != nil {
		for _, col := range models.Columns {
			if current.Get(col) != baseline.Get(col) {
				c.logger.Info("Delete conflict detected", "row_id", rowID, "column", col)
				return syncerr.Conflict(op, rowID, current)
			}
		}
	}

	err = c.grid.DeleteRow(ctx, rowID)
	observe(op, err)
	return err
}

// FindEntry re-reads the table and returns the row carrying entryID, or nil when absent
func (c *Client) FindEntry(ctx context.Context, entryID string) (*models.Record, error) {
	snap, err := c.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := snap.FindEntry(entryID)
	if !ok {
		return nil, nil
	}
	return rec, nil
}

// EnsureHeader writes the canonical header into an empty table and verifies it otherwise
func (c *Client) EnsureHeader(ctx context.Context) error {
	const op = "ensure_header"

	grid, err := c.grid.ReadGrid(ctx)
	observe("read_all", err)
	if err != nil {
		return err
	}

	if len(grid) == 0 || isBlank(grid[0]) {
		if len(grid) > 1 {
			return syncerr.Schema(op, "table has data rows but no header")
		}
		err := c.grid.WriteHeader(ctx, c.mapper.Header())
		observe("write_header", err)
		if err != nil {
			return err
		}
		c.logger.Info("Header row written", "columns", strings.Join(c.mapper.Header(), ","))
		c.headerOK.Store(true)
		return nil
	}

	return c.checkHeader(op, grid)
}

// currentRow reads the table and returns the record at rowID
func (c *Client) currentRow(ctx context.Context, op string, rowID int) (*models.Record, error) {
	if rowID < 1 {
		return nil, syncerr.NotFound(op, rowID)
	}

	grid, err := c.grid.ReadGrid(ctx)
	observe("read_all", err)
	if err != nil {
		return nil, err
	}
	if err := c.checkHeader(op, grid); err != nil {
		return nil, err
	}
	if rowID > len(grid)-1 {
		return nil, syncerr.NotFound(op, rowID)
	}

	rec := c.mapper.FromCells(rowID, grid[rowID])
	return &rec, nil
}

func (c *Client) ensureHeaderVerified(ctx context.Context, op string) error {
	if c.headerOK.Load() {
		return nil
	}
	grid, err := c.grid.ReadGrid(ctx)
	observe("read_all", err)
	if err != nil {
		return err
	}
	return c.checkHeader(op, grid)
}

func (c *Client) checkHeader(op string, grid [][]string) error {
	var header []string
	if len(grid) > 0 {
		header = grid[0]
	}
	if err := c.mapper.CheckHeader(header); err != nil {
		c.headerOK.Store(false)
		c.logger.Error("Schema drift detected on remote table", "error", err)
		return syncerr.Schema(op, err.Error())
	}
	c.headerOK.Store(true)
	return nil
}

func validate(op string, fields models.Fields) error {
	if missing := fields.Missing(); len(missing) > 0 {
		return syncerr.Validation(op, fmt.Sprintf("required fields are empty: %s", strings.Join(missing, ", ")))
	}
	return nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = syncerr.KindOf(err).String()
	}
	metrics.RemoteCalls.WithLabelValues(op, outcome).Inc()
}
