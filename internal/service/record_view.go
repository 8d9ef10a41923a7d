package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/mapper"
	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
)

// SnapshotSource serves snapshots no older than maxAge and can be told they went stale
type SnapshotSource interface {
	Get(ctx context.Context, maxAge time.Duration) (*models.Snapshot, error)
	Invalidator
}

// Submitter queues write operations
type Submitter interface {
	Submit(op models.Operation) *Ticket
}

// Filter narrows the listed records. Empty fields do not filter
type Filter struct {
	PatientID      string
	Antibiotic     string
	Route          string
	AdministeredBy string
	// Query matches a case-insensitive substring of any column
	Query string
	// DateFrom and DateTo bound the date column inclusively (YYYY-MM-DD)
	DateFrom string
	DateTo   string
}

// SortOrder orders listed records by one column. Ties are broken by row id
type SortOrder struct {
	Column string
	Desc   bool
}

// Outcome summarizes a write for the UI
type Outcome struct {
	Status models.OpStatus
	Record *models.Record
	Remote *models.Record
	Seq    uint64
	// Message is safe to show to the user as is
	Message string
}

// RecordView is what the UI talks to: filtered reads from the cache and writes through the coordinator
type RecordView struct {
	cache  SnapshotSource
	writes Submitter
	maxAge time.Duration
	logger *slog.Logger
}

func NewRecordView(cache SnapshotSource, writes Submitter, maxAge time.Duration, logger *slog.Logger) *RecordView {
	return &RecordView{
		cache:  cache,
		writes: writes,
		maxAge: maxAge,
		logger: logger,
	}
}

// List returns the filtered, sorted records of a snapshot no older than the view max age
func (v *RecordView) List(ctx context.Context, f Filter, s SortOrder) ([]models.Record, error) {
	if err := checkSort(s); err != nil {
		return nil, err
	}

	snap, err := v.cache.Get(ctx, v.maxAge)
	if err != nil {
		return nil, err
	}

	out := ApplyFilter(snap.Records, f)
	SortRecords(out, s)
	return out, nil
}

// Create validates and appends a new record
func (v *RecordView) Create(ctx context.Context, fields models.Fields) (Outcome, error) {
	fields = mapper.NormalizeFields(fields)
	if err := validateFields(string(models.OpInsert), fields); err != nil {
		return failedOutcome(err), err
	}

	t := v.writes.Submit(models.Operation{Kind: models.OpInsert, Fields: fields})
	v.logger.Debug("Create submitted", "seq", t.Seq(), "patient_id", fields.PatientID)
	return v.await(ctx, t)
}

// Update overwrites rowID, using the latest cached copy of the row as the conflict baseline
func (v *RecordView) Update(ctx context.Context, rowID int, fields models.Fields) (Outcome, error) {
	fields = mapper.NormalizeFields(fields)
	if err := validateFields(string(models.OpUpdate), fields); err != nil {
		return failedOutcome(err), err
	}

	baseline, err := v.baseline(ctx, string(models.OpUpdate), rowID)
	if err != nil {
		return failedOutcome(err), err
	}

	t := v.writes.Submit(models.Operation{Kind: models.OpUpdate, RowID: rowID, Fields: fields, Baseline: baseline})
	return v.await(ctx, t)
}

// Delete removes rowID if it still matches the latest cached copy
func (v *RecordView) Delete(ctx context.Context, rowID int) (Outcome, error) {
	baseline, err := v.baseline(ctx, string(models.OpDelete), rowID)
	if err != nil {
		return failedOutcome(err), err
	}

	t := v.writes.Submit(models.Operation{Kind: models.OpDelete, RowID: rowID, Baseline: baseline})
	return v.await(ctx, t)
}

func (v *RecordView) baseline(ctx context.Context, op string, rowID int) (*models.Record, error) {
	snap, err := v.cache.Get(ctx, v.maxAge)
	if err != nil {
		return nil, err
	}
	rec, ok := snap.Row(rowID)
	if !ok {
		// The row may exist remotely past a stale snapshot; the next read must refetch
		v.cache.InvalidateFrom("not_found")
		return nil, syncerr.NotFound(op, rowID)
	}
	return rec, nil
}

func (v *RecordView) await(ctx context.Context, t *Ticket) (Outcome, error) {
	res := t.Wait(ctx)

	out := Outcome{
		Status: res.Status,
		Record: res.Record,
		Remote: res.Remote,
		Seq:    res.Seq,
	}
	if res.Status == models.StatusCommitted {
		out.Message = committedMessage(res.Kind)
		return out, nil
	}

	err := res.Err
	if err == nil {
		err = fmt.Errorf("operation %d ended as %s", res.Seq, res.Status)
	}
	out.Message = UserMessage(err)
	return out, err
}

func failedOutcome(err error) Outcome {
	return Outcome{
		Status:  models.StatusFailed,
		Remote:  syncerr.RemoteOf(err),
		Message: UserMessage(err),
	}
}

func committedMessage(kind models.OpKind) string {
	switch kind {
	case models.OpInsert:
		return "Record saved."
	case models.OpUpdate:
		return "Record updated."
	case models.OpDelete:
		return "Record deleted."
	}
	return "Done."
}

// UserMessage turns a synchronization error into a short sentence for clinical staff
func UserMessage(err error) string {
	if err == nil {
		return "Done."
	}
	if errors.Is(err, ErrCoordinatorClosed) {
		return "The application is shutting down; the change was not saved."
	}
	var se *syncerr.Error
	if !errors.As(err, &se) {
		// A bare context error comes from the caller giving up on the wait, not from the remote
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "Stopped waiting for the save. Refresh the list to check whether it went through."
		}
		return "Unexpected error: " + err.Error()
	}

	switch se.Kind {
	case syncerr.KindValidation:
		return "Please check the form: " + se.Message + "."
	case syncerr.KindConflict:
		return "Someone else changed this record. Review the latest values and try again."
	case syncerr.KindNotFound:
		return "This record no longer exists. The next list will reload the table."
	case syncerr.KindAuth:
		return "Access to the records table was denied. Check the configured credentials."
	case syncerr.KindSchema:
		return "The records table layout does not match the expected columns (" + se.Message + "). Ask an administrator to fix the header row."
	case syncerr.KindTransient:
		return "The records table is not reachable right now. The change was not saved; please try again."
	}
	return "Unexpected error: " + err.Error()
}

// ApplyFilter returns the records matching every set criterion, preserving order
func ApplyFilter(records []models.Record, f Filter) []models.Record {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.Record, 0, len(records))

	for _, r := range records {
		if !equalFold(f.PatientID, r.PatientID) ||
			!equalFold(f.Antibiotic, r.Antibiotic) ||
			!equalFold(f.Route, r.Route) ||
			!equalFold(f.AdministeredBy, r.AdministeredBy) {
			continue
		}
		if f.DateFrom != "" && r.Date < f.DateFrom {
			continue
		}
		if f.DateTo != "" && r.Date > f.DateTo {
			continue
		}
		if query != "" && !matchesQuery(r, query) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortRecords orders records in place by the column, falling back to row id
func SortRecords(records []models.Record, s SortOrder) {
	col := strings.ToLower(strings.TrimSpace(s.Column))

	slices.SortStableFunc(records, func(a, b models.Record) int {
		if col == "" || col == "row_id" {
			if s.Desc {
				return cmp.Compare(b.RowID, a.RowID)
			}
			return cmp.Compare(a.RowID, b.RowID)
		}

		c := strings.Compare(strings.ToLower(a.Get(col)), strings.ToLower(b.Get(col)))
		if s.Desc {
			c = -c
		}
		if c == 0 {
			c = cmp.Compare(a.RowID, b.RowID)
		}
		return c
	})
}

func checkSort(s SortOrder) error {
	col := strings.ToLower(strings.TrimSpace(s.Column))
	if col == "" || col == "row_id" || slices.Contains(models.Columns, col) {
		return nil
	}
	return syncerr.Validation("list", fmt.Sprintf("unknown sort column %q", s.Column))
}

func matchesQuery(r models.Record, query string) bool {
	for _, col := range models.Columns {
		if strings.Contains(strings.ToLower(r.Get(col)), query) {
			return true
		}
	}
	return false
}

func equalFold(want, got string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(want, strings.TrimSpace(got))
}

func validateFields(op string, fields models.Fields) error {
	if missing := fields.Missing(); len(missing) > 0 {
		return syncerr.Validation(op, fmt.Sprintf("required fields are empty: %s", strings.Join(missing, ", ")))
	}
	return nil
}
