package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/cache"
	"github.com/Guizzs26/abx-sheet-sync/internal/mapper"
	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/processor"
	"github.com/Guizzs26/abx-sheet-sync/internal/sheet"
	"github.com/Guizzs26/abx-sheet-sync/internal/sheet/sheettest"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *recordingPublisher) PublishChange(_ context.Context, ev models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []models.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ChangeEvent, len(p.events))
	copy(out, p.events)
	return out
}

// harness wires the full write path over an in-memory grid with fault injection
type harness struct {
	mem         *sheet.MemoryGrid
	faulty      *sheettest.FaultyGrid
	client      *sheet.Client
	cache       *cache.ReadCache
	coordinator *WriteCoordinator
	view        *RecordView
	publisher   *recordingPublisher
	rows        *mapper.RowMapper
}

type harnessOption func(*processor.RetryPolicy, *CoordinatorConfig)

func withWorkers(n int) harnessOption {
	return func(_ *processor.RetryPolicy, c *CoordinatorConfig) { c.Workers = n }
}

func withAttemptTimeout(d time.Duration) harnessOption {
	return func(p *processor.RetryPolicy, _ *CoordinatorConfig) { p.AttemptTimeout = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	policy := processor.RetryPolicy{
		Base:           time.Millisecond,
		Max:            5 * time.Millisecond,
		MaxAttempts:    5,
		Jitter:         0,
		AttemptTimeout: 2 * time.Second,
	}
	cfg := CoordinatorConfig{Workers: 2, Origin: "test-instance"}
	for _, opt := range opts {
		opt(&policy, &cfg)
	}

	h := &harness{
		mem:       sheet.NewMemoryGrid(models.Columns),
		publisher: &recordingPublisher{},
		rows:      mapper.NewRowMapper(models.Columns),
	}
	h.faulty = sheettest.NewFaultyGrid(h.mem)
	h.client = sheet.NewClient(h.faulty, discardLogger())
	h.cache = cache.NewReadCache(h.client, 5*time.Second, discardLogger())
	handler := processor.NewWriteHandler(h.client, policy, discardLogger())
	h.coordinator = NewWriteCoordinator(handler, h.cache, h.publisher, cfg, discardLogger())
	h.view = NewRecordView(h.cache, h.coordinator, 3*time.Second, discardLogger())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.coordinator.Close(ctx)
	})
	return h
}

// seed appends rows directly, bypassing the coordinator
func (h *harness) seed(t *testing.T, fields ...models.Fields) {
	t.Helper()
	for _, f := range fields {
		_, err := h.mem.AppendRow(context.Background(), h.rows.ToCells(models.Record{EntryID: gofakeit.UUID(), Fields: f}))
		require.NoError(t, err)
	}
}

// overwrite simulates another clerk editing row rowID behind our back
func (h *harness) overwrite(t *testing.T, rowID int, mutate func(r *models.Record)) {
	t.Helper()
	grid, err := h.mem.ReadGrid(context.Background())
	require.NoError(t, err)
	rec := h.rows.FromCells(rowID, grid[rowID])
	mutate(&rec)
	require.NoError(t, h.mem.UpdateRow(context.Background(), rowID, h.rows.ToCells(rec)))
}

func (h *harness) remoteRow(t *testing.T, rowID int) models.Record {
	t.Helper()
	grid, err := h.mem.ReadGrid(context.Background())
	require.NoError(t, err)
	require.Less(t, rowID, len(grid))
	return h.rows.FromCells(rowID, grid[rowID])
}

func fakeFields() models.Fields {
	return models.Fields{
		PatientID:      gofakeit.Numerify("P-#####"),
		Name:           gofakeit.Name(),
		Antibiotic:     gofakeit.RandomString([]string{"Vancomycin", "Meropenem", "Cefazolin", "Piperacillin-tazobactam", "Ceftriaxone"}),
		Dosage:         gofakeit.RandomString([]string{"500mg", "1g", "2g", "4.5g"}),
		Route:          gofakeit.RandomString([]string{"IV", "IM", "PO"}),
		Date:           gofakeit.Date().Format("2006-01-02"),
		Time:           gofakeit.Date().Format("15:04"),
		AdministeredBy: gofakeit.Name(),
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
