package sheet

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleFields(patient, drug string) models.Fields {
	return models.Fields{
		PatientID:      patient,
		Name:           "Maria Silva",
		Antibiotic:     drug,
		Dosage:         "1g",
		Route:          "IV",
		Date:           "2026-03-14",
		Time:           "08:00",
		AdministeredBy: "RN Costa",
	}
}

func newTestClient(t *testing.T) (*Client, *MemoryGrid) {
	t.Helper()
	grid := NewMemoryGrid(models.Columns)
	return NewClient(grid, discardLogger()), grid
}

func TestClient_AppendAndReadAll(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	rowID, err := c.AppendRow(ctx, sampleFields("P1", "Vancomycin"), "m-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rowID)

	rowID, err = c.AppendRow(ctx, sampleFields("P2", "Meropenem"), "m-2")
	require.NoError(t, err)
	assert.Equal(t, 2, rowID)

	snap, err := c.ReadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, models.Columns, snap.Schema)

	rec, ok := snap.Row(2)
	require.True(t, ok)
	assert.Equal(t, "P2", rec.PatientID)
	assert.Equal(t, "m-2", rec.EntryID)
	assert.Equal(t, 2, rec.RowID)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestClient_AppendRejectsMissingFields(t *testing.T) {
	c, grid := newTestClient(t)

	_, err := c.AppendRow(context.Background(), models.Fields{Name: "no ids"}, "m-1")
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindValidation))
	assert.Contains(t, err.Error(), models.ColPatientID)
	assert.Contains(t, err.Error(), models.ColAntibiotic)
	assert.Zero(t, grid.Len())
}

func TestClient_UpdateRow(t *testing.T) {
	ctx := context.Background()

	t.Run("matching baseline writes", func(t *testing.T) {
		c, _ := newTestClient(t)
		_, err := c.AppendRow(ctx, sampleFields("P1", "Vancomycin"), "m-1")
		require.NoError(t, err)
		snap, err := c.ReadAll(ctx)
		require.NoError(t, err)
		baseline, _ := snap.Row(1)

		next := baseline.Fields
		next.Dosage = "2g"
		require.NoError(t, c.UpdateRow(ctx, 1, next, baseline))

		snap, err = c.ReadAll(ctx)
		require.NoError(t, err)
		got, _ := snap.Row(1)
		assert.Equal(t, "2g", got.Dosage)
		assert.Equal(t, "m-1", got.EntryID, "marker survives updates")
	})

	t.Run("retry of an applied update is not a conflict", func(t *testing.T) {
		c, _ := newTestClient(t)
		_, err := c.AppendRow(ctx, sampleFields("P1", "Vancomycin"), "m-1")
		require.NoError(t, err)
		snap, _ := c.ReadAll(ctx)
		baseline, _ := snap.Row(1)

		next := baseline.Fields
		next.Notes = "given late"
		require.NoError(t, c.UpdateRow(ctx, 1, next, baseline))
		require.NoError(t, c.UpdateRow(ctx, 1, next, baseline))
	})

	t.Run("interleaved writer causes conflict", func(t *testing.T) {
		c, grid := newTestClient(t)
		_, err := c.AppendRow(ctx, sampleFields("P1", "Vancomycin"), "m-1")
		require.NoError(t, err)
		snap, _ := c.ReadAll(ctx)
		baseline, _ := snap.Row(1)

		other := baseline.Clone()
		other.Dosage = "500mg"
		require.NoError(t, grid.UpdateRow(ctx, 1, c.mapper.ToCells(*other)))

		mine := baseline.Fields
		mine.Dosage = "2g"
		err = c.UpdateRow(ctx, 1, mine, baseline)
		require.Error(t, err)
		assert.True(t, syncerr.Is(err, syncerr.KindConflict))

		remote := syncerr.RemoteOf(err)
		require.NotNil(t, remote)
		assert.Equal(t, "500mg", remote.Dosage)

		snap, _ = c.ReadAll(ctx)
		got, _ := snap.Row(1)
		assert.Equal(t, "500mg", got.Dosage, "remote keeps the other writer's value")
	})

	t.Run("nil baseline skips the compare", func(t *testing.T) {
		c, grid := newTestClient(t)
		_, err := c.AppendRow(ctx, sampleFields("P1", "Vancomycin"), "m-1")
		require.NoError(t, err)
		snap, _ := c.ReadAll(ctx)
		baseline, _ := snap.Row(1)
		other := baseline.Clone()
		other.Dosage = "500mg"
		require.NoError(t, grid.UpdateRow(ctx, 1, c.mapper.ToCells(*other)))

		mine := baseline.Fields
		mine.Dosage = "2g"
		require.NoError(t, c.UpdateRow(ctx, 1, mine, nil))
	})

	t.Run("position now holding another record with equal fields conflicts", func(t *testing.T) {
		c, grid := newTestClient(t)
		_, err := c.AppendRow(ctx, sampleFields("P0", "Cefazolin"), "m-a")
		require.NoError(t, err)
		_, err = c.AppendRow(ctx, sampleFields("P1", "Vancomycin"), "m-b")
		require.NoError(t, err)
		_, err = c.AppendRow(ctx, sampleFields("P1", "Vancomycin"), "m-c")
		require.NoError(t, err)

		snap, _ := c.ReadAll(ctx)
		baseline, _ := snap.Row(2)
		require.Equal(t, "m-b", baseline.EntryID)

		// Another clerk removes the first row; position 2 now holds m-c
		require.NoError(t, grid.DeleteRow(ctx, 1))

		next := baseline.Fields
		next.Notes = "dose repeated"
		err = c.UpdateRow(ctx, 2, next, baseline)
		require.Error(t, err)
		assert.True(t, syncerr.Is(err, syncerr.KindConflict))
		require.NotNil(t, syncerr.RemoteOf(err))
		assert.Equal(t, "m-c", syncerr.RemoteOf(err).EntryID)

		snap, _ = c.ReadAll(ctx)
		for _, rec := range snap.Records {
			assert.Empty(t, rec.Notes, "row %d was not touched", rec.RowID)
		}
	})

	t.Run("row beyond bounds", func(t *testing.T) {
		c, _ := newTestClient(t)
		err := c.UpdateRow(ctx, 7, sampleFields("P1", "Vancomycin"), nil)
		require.Error(t, err)
		assert.True(t, syncerr.Is(err, syncerr.KindNotFound))
	})
}

func TestClient_DeleteRow(t *testing.T) {
	ctx := context.Background()
	c, grid := newTestClient(t)

	for _, p := range []string{"P1", "P2", "P3"} {
		_, err := c.AppendRow(ctx, sampleFields(p, "Cefazolin"), "m-"+p)
		require.NoError(t, err)
	}
	snap, err := c.ReadAll(ctx)
	require.NoError(t, err)
	second, _ := snap.Row(2)

	t.Run("stale baseline conflicts", func(t *testing.T) {
		stale := second.Clone()
		stale.Notes = "something else"
		err := c.DeleteRow(ctx, 2, stale)
		require.Error(t, err)
		assert.True(t, syncerr.Is(err, syncerr.KindConflict))
		assert.Equal(t, 3, grid.Len())
	})

	t.Run("matching baseline shifts later rows", func(t *testing.T) {
		require.NoError(t, c.DeleteRow(ctx, 2, second))
		snap, err := c.ReadAll(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, snap.Len())
		moved, _ := snap.Row(2)
		assert.Equal(t, "P3", moved.PatientID)
	})

	t.Run("not found", func(t *testing.T) {
		err := c.DeleteRow(ctx, 3, nil)
		assert.True(t, syncerr.Is(err, syncerr.KindNotFound))
	})
}

func TestClient_FindEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	_, err := c.AppendRow(ctx, sampleFields("P1", "Vancomycin"), "m-1")
	require.NoError(t, err)

	rec, err := c.FindEntry(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.RowID)

	rec, err = c.FindEntry(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestClient_SchemaDrift(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		header []string
	}{
		{name: "no header", header: nil},
		{name: "renamed column", header: []string{"patient", "name", "antibiotic", "dosage", "route", "date", "time", "administered_by", "notes", "entry_id"}},
		{name: "missing column", header: models.Columns[:9]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(NewMemoryGrid(tt.header), discardLogger())

			_, err := c.ReadAll(ctx)
			require.Error(t, err)
			assert.True(t, syncerr.Is(err, syncerr.KindSchema))

			_, err = c.AppendRow(ctx, sampleFields("P1", "Vancomycin"), "m-1")
			assert.True(t, syncerr.Is(err, syncerr.KindSchema))
		})
	}
}

func TestClient_EnsureHeader(t *testing.T) {
	ctx := context.Background()

	t.Run("writes header into blank table", func(t *testing.T) {
		grid := NewMemoryGrid(nil)
		c := NewClient(grid, discardLogger())

		require.NoError(t, c.EnsureHeader(ctx))
		snap, err := c.ReadAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, snap.Len())
	})

	t.Run("keeps a valid header", func(t *testing.T) {
		c, _ := newTestClient(t)
		assert.NoError(t, c.EnsureHeader(ctx))
	})

	t.Run("refuses data without header", func(t *testing.T) {
		grid := NewMemoryGrid([]string{""})
		_, err := grid.AppendRow(ctx, []string{"P1"})
		require.NoError(t, err)

		err = NewClient(grid, discardLogger()).EnsureHeader(ctx)
		assert.True(t, syncerr.Is(err, syncerr.KindSchema))
	})
}
