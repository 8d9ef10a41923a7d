package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/sheet/sheettest"
	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordView_InsertListDelete(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	out, err := h.view.Create(ctx, models.Fields{
		PatientID:      " P-100 ",
		Name:           "Joana Prado",
		Antibiotic:     "Meropenem",
		Dosage:         "1g",
		Route:          "IV",
		Date:           "2026-03-14T08:30:00-03:00",
		Time:           "08:30:00",
		AdministeredBy: "RN Lima",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCommitted, out.Status)
	assert.Equal(t, "Record saved.", out.Message)

	list, err := h.view.List(ctx, Filter{PatientID: "p-100"}, SortOrder{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "P-100", list[0].PatientID, "input is trimmed before writing")
	assert.Equal(t, "2026-03-14", list[0].Date)
	assert.Equal(t, "08:30", list[0].Time)
	assert.NotEmpty(t, list[0].EntryID)

	out, err = h.view.Delete(ctx, list[0].RowID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCommitted, out.Status)

	list, err = h.view.List(ctx, Filter{PatientID: "P-100"}, SortOrder{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecordView_UpdateRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	h.seed(t, fakeFields(), fakeFields())

	list, err := h.view.List(ctx, Filter{}, SortOrder{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	next := list[1].Fields
	next.Dosage = "2g"
	next.Notes = "renal adjustment"
	out, err := h.view.Update(ctx, 2, next)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCommitted, out.Status)

	list, err = h.view.List(ctx, Filter{}, SortOrder{})
	require.NoError(t, err)
	assert.Equal(t, next, list[1].Fields, "the next list reflects the update without waiting for the TTL")
}

func TestRecordView_UpdateConflict(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	f := fakeFields()
	f.Route = "IV"
	h.seed(t, f)

	list, err := h.view.List(ctx, Filter{}, SortOrder{})
	require.NoError(t, err)

	h.overwrite(t, 1, func(r *models.Record) { r.Route = "PO" })

	next := list[0].Fields
	next.Route = "IM"
	out, err := h.view.Update(ctx, 1, next)
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindConflict))
	assert.Equal(t, models.StatusConflicted, out.Status)
	require.NotNil(t, out.Remote)
	assert.Equal(t, "PO", out.Remote.Route)
	assert.Contains(t, out.Message, "Someone else changed this record")

	list, err = h.view.List(ctx, Filter{}, SortOrder{})
	require.NoError(t, err)
	assert.Equal(t, "PO", list[0].Route, "the conflict forced a resync")
}

func TestRecordView_ValidationBeforeRemote(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	out, err := h.view.Create(ctx, models.Fields{Name: "  ", Antibiotic: "Cefepime"})
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindValidation))
	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Contains(t, out.Message, models.ColPatientID)
	assert.Zero(t, h.faulty.Calls(sheettest.OpRead))

	_, err = h.view.Update(ctx, 1, models.Fields{PatientID: "P1"})
	assert.True(t, syncerr.Is(err, syncerr.KindValidation))
	assert.Zero(t, h.faulty.Calls(sheettest.OpRead))
}

func TestRecordView_UnknownRow(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	h.seed(t, fakeFields())

	out, err := h.view.Delete(ctx, 5)
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindNotFound))
	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Zero(t, h.faulty.Calls(sheettest.OpDelete))
	assert.Nil(t, h.cache.Peek(), "not found forces a resync")
}

func TestRecordView_RowAddedElsewhereAfterList(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	h.seed(t, fakeFields())

	_, err := h.view.List(ctx, Filter{}, SortOrder{})
	require.NoError(t, err)

	// Another instance appends row 2 while our snapshot is still fresh
	h.seed(t, fakeFields())

	next := fakeFields()
	_, err = h.view.Update(ctx, 2, next)
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindNotFound))
	assert.Nil(t, h.cache.Peek())

	out, err := h.view.Update(ctx, 2, next)
	require.NoError(t, err, "the retry sees the refetched table")
	assert.Equal(t, models.StatusCommitted, out.Status)
	assert.Equal(t, next.PatientID, h.remoteRow(t, 2).PatientID)
}

func TestRecordView_UpdateAfterRowsShiftedOntoDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	dup := fakeFields()
	dup.Notes = ""
	h.seed(t, fakeFields(), dup, dup)

	list, err := h.view.List(ctx, Filter{}, SortOrder{})
	require.NoError(t, err)
	target := list[1]

	// Row 1 is deleted elsewhere, so position 2 now holds the other copy
	require.NoError(t, h.mem.DeleteRow(ctx, 1))

	next := target.Fields
	next.Notes = "second dose held"
	out, err := h.view.Update(ctx, 2, next)
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindConflict))
	assert.Equal(t, models.StatusConflicted, out.Status)
	require.NotNil(t, out.Remote)
	assert.NotEqual(t, target.EntryID, out.Remote.EntryID)

	assert.Empty(t, h.remoteRow(t, 1).Notes)
	assert.Empty(t, h.remoteRow(t, 2).Notes)
}

func TestRecordView_ConcurrentInsertsForDifferentPatients(t *testing.T) {
	h := newHarness(t, withWorkers(4))
	ctx := waitCtx(t)

	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := fakeFields()
			f.PatientID = fmt.Sprintf("P-%03d", i)
			_, errs[i] = h.view.Create(ctx, f)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	list, err := h.view.List(ctx, Filter{}, SortOrder{Column: models.ColPatientID})
	require.NoError(t, err)
	require.Len(t, list, n)

	seen := make(map[string]bool)
	for i, r := range list {
		assert.Equal(t, fmt.Sprintf("P-%03d", i), r.PatientID)
		assert.False(t, seen[r.EntryID], "duplicate entry id %s", r.EntryID)
		seen[r.EntryID] = true
	}
}

func TestRecordView_ListRejectsUnknownSortColumn(t *testing.T) {
	h := newHarness(t)

	_, err := h.view.List(waitCtx(t), Filter{}, SortOrder{Column: "favourite_color"})
	assert.True(t, syncerr.Is(err, syncerr.KindValidation))
}

func TestApplyFilter(t *testing.T) {
	records := []models.Record{
		{RowID: 1, Fields: models.Fields{PatientID: "P1", Antibiotic: "Vancomycin", Route: "IV", Date: "2026-03-01", AdministeredBy: "RN Costa", Notes: "trough pending"}},
		{RowID: 2, Fields: models.Fields{PatientID: "P2", Antibiotic: "Meropenem", Route: "IV", Date: "2026-03-05", AdministeredBy: "RN Lima"}},
		{RowID: 3, Fields: models.Fields{PatientID: "P1", Antibiotic: "Cefazolin", Route: "IM", Date: "2026-03-10", AdministeredBy: "RN Costa"}},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{name: "no filter", filter: Filter{}, want: []int{1, 2, 3}},
		{name: "patient case-insensitive", filter: Filter{PatientID: "p1"}, want: []int{1, 3}},
		{name: "antibiotic exact", filter: Filter{Antibiotic: "meropenem"}, want: []int{2}},
		{name: "antibiotic is not a substring match", filter: Filter{Antibiotic: "mero"}, want: []int{}},
		{name: "route and nurse", filter: Filter{Route: "iv", AdministeredBy: "rn costa"}, want: []int{1}},
		{name: "free text over notes", filter: Filter{Query: "TROUGH"}, want: []int{1}},
		{name: "free text over any column", filter: Filter{Query: "lima"}, want: []int{2}},
		{name: "date range inclusive", filter: Filter{DateFrom: "2026-03-05", DateTo: "2026-03-10"}, want: []int{2, 3}},
		{name: "open-ended range", filter: Filter{DateTo: "2026-03-04"}, want: []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyFilter(records, tt.filter)
			ids := make([]int, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.RowID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSortRecords(t *testing.T) {
	build := func() []models.Record {
		return []models.Record{
			{RowID: 1, Fields: models.Fields{PatientID: "P3", Antibiotic: "vancomycin"}},
			{RowID: 2, Fields: models.Fields{PatientID: "P1", Antibiotic: "Cefazolin"}},
			{RowID: 3, Fields: models.Fields{PatientID: "P2", Antibiotic: "Vancomycin"}},
			{RowID: 4, Fields: models.Fields{PatientID: "P1", Antibiotic: "Ampicillin"}},
		}
	}
	order := func(rs []models.Record) []int {
		ids := make([]int, len(rs))
		for i, r := range rs {
			ids[i] = r.RowID
		}
		return ids
	}

	tests := []struct {
		name string
		sort SortOrder
		want []int
	}{
		{name: "default by row id", sort: SortOrder{}, want: []int{1, 2, 3, 4}},
		{name: "row id desc", sort: SortOrder{Column: "row_id", Desc: true}, want: []int{4, 3, 2, 1}},
		{name: "patient asc ties by row id", sort: SortOrder{Column: models.ColPatientID}, want: []int{2, 4, 3, 1}},
		{name: "patient desc ties still by row id", sort: SortOrder{Column: models.ColPatientID, Desc: true}, want: []int{1, 3, 2, 4}},
		{name: "antibiotic ignores case", sort: SortOrder{Column: models.ColAntibiotic}, want: []int{4, 2, 1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := build()
			SortRecords(rs, tt.sort)
			assert.Equal(t, tt.want, order(rs))
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "validation", err: syncerr.Validation("insert", "required fields are empty: patient_id"), want: "Please check the form: required fields are empty: patient_id."},
		{name: "conflict", err: syncerr.Conflict("update", 2, nil), want: "Someone else changed"},
		{name: "not found", err: syncerr.NotFound("delete", 4), want: "no longer exists"},
		{name: "auth", err: syncerr.Auth("read_all", errors.New("401")), want: "denied"},
		{name: "schema", err: syncerr.Schema("read_all", "column 1 is \"patient\""), want: "header row"},
		{name: "transient", err: syncerr.Transient("append", errors.New("503")), want: "not reachable"},
		{name: "closed", err: ErrCoordinatorClosed, want: "shutting down"},
		{name: "caller stopped waiting", err: context.DeadlineExceeded, want: "Stopped waiting"},
		{name: "other", err: errors.New("boom"), want: "Unexpected error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, UserMessage(tt.err), tt.want)
		})
	}
}
