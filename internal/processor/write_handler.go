package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
	"github.com/Guizzs26/abx-sheet-sync/pkg/infra"
	"github.com/Guizzs26/abx-sheet-sync/pkg/metrics"
)

// RecordStore is the subset of the record store client the handler writes through
type RecordStore interface {
	AppendRow(ctx context.Context, fields models.Fields, marker string) (int, error)
	UpdateRow(ctx context.Context, rowID int, fields models.Fields, baseline *models.Record) error
	DeleteRow(ctx context.Context, rowID int, baseline *models.Record) error
	FindEntry(ctx context.Context, entryID string) (*models.Record, error)
}

// RetryPolicy bounds how long a single operation keeps trying
type RetryPolicy struct {
	Base           time.Duration
	Max            time.Duration
	MaxAttempts    int
	Jitter         float64
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:           1 * time.Second,
		Max:            30 * time.Second,
		MaxAttempts:    5,
		Jitter:         0.2,
		AttemptTimeout: 10 * time.Second,
	}
}

// WriteHandler executes one pending operation against the remote table with retry and timeouts
type WriteHandler struct {
	store  RecordStore
	policy RetryPolicy
	logger *slog.Logger
}

func NewWriteHandler(store RecordStore, policy RetryPolicy, logger *slog.Logger) *WriteHandler {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &WriteHandler{
		store:  store,
		policy: policy,
		logger: logger,
	}
}

// Process runs the operation until it commits, conflicts, fails permanently or runs out of attempts.
// Only transient failures are retried. ctx bounds the whole operation including backoff waits
func (h *WriteHandler) Process(ctx context.Context, op models.Operation) models.Result {
	l := h.logger.With(
		"seq", op.Seq,
		"kind", op.Kind,
		"row_id", op.RowID,
	)

	res := models.Result{Seq: op.Seq, Kind: op.Kind, RowID: op.RowID}
	backoff := infra.NewBackoff(h.policy.Base, h.policy.Max, 2).WithJitter(h.policy.Jitter)

	var lastErr error
	for attempt := 1; attempt <= h.policy.MaxAttempts; attempt++ {
		res.Attempts = attempt

		// Fresh deadline per attempt; the partial-success probe runs inside it
		attemptCtx, cancel := context.WithTimeout(ctx, h.policy.AttemptTimeout)
		start := time.Now()
		rec, err := h.attempt(attemptCtx, op, attempt > 1)
		metrics.AttemptDuration.WithLabelValues(string(op.Kind)).Observe(time.Since(start).Seconds())
		cancel()

		if err == nil {
			res.Status = models.StatusCommitted
			res.Record = rec
			if rec != nil {
				res.RowID = rec.RowID
			}
			l.Info("Operation committed", "attempts", attempt)
			return res
		}

		switch syncerr.KindOf(err) {
		case syncerr.KindTransient:
			lastErr = err
		case syncerr.KindConflict:
			res.Status = models.StatusConflicted
			res.Remote = syncerr.RemoteOf(err)
			res.Err = err
			l.Warn("Operation conflicted with a concurrent edit", "attempts", attempt)
			return res
		default:
			// Auth, schema, validation and not-found never improve with another attempt
			res.Status = models.StatusFailed
			res.Err = err
			l.Error("Operation failed", "attempts", attempt, "error", err)
			return res
		}

		if attempt == h.policy.MaxAttempts {
			break
		}

		wait := backoff.Next()
		metrics.WriteRetries.WithLabelValues(string(op.Kind)).Inc()
		l.Warn("Transient failure talking to the remote table, retrying",
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			res.Status = models.StatusFailed
			res.Err = syncerr.Transient(string(op.Kind), fmt.Errorf("aborted during backoff: %w", ctx.Err()))
			return res
		case <-time.After(wait):
		}
	}

	res.Status = models.StatusFailed
	res.Err = syncerr.New(syncerr.KindTransient, string(op.Kind),
		fmt.Sprintf("gave up after %d attempts", res.Attempts), lastErr)
	l.Error("Operation failed after retries", "attempts", res.Attempts, "error", lastErr)
	return res
}

// attempt performs one try. On retries it first checks whether an earlier attempt already took effect
func (h *WriteHandler) attempt(ctx context.Context, op models.Operation, retry bool) (*models.Record, error) {
	switch op.Kind {
	case models.OpInsert:
		if retry {
			landed, err := h.store.FindEntry(ctx, op.Marker)
			if err != nil {
				return nil, err
			}
			if landed != nil {
				h.logger.Info("Insert from a previous attempt found, not appending again",
					"seq", op.Seq, "entry_id", op.Marker, "row_id", landed.RowID)
				return landed, nil
			}
		}
		rowID, err := h.store.AppendRow(ctx, op.Fields, op.Marker)
		if err != nil {
			return nil, err
		}
		return &models.Record{RowID: rowID, EntryID: op.Marker, Fields: op.Fields}, nil

	case models.OpUpdate:
		// Retries are safe: a column already holding the new value is not a conflict
		if err := h.store.UpdateRow(ctx, op.RowID, op.Fields, op.Baseline); err != nil {
			return nil, err
		}
		rec := &models.Record{RowID: op.RowID, Fields: op.Fields}
		if op.Baseline != nil {
			rec.EntryID = op.Baseline.EntryID
		}
		return rec, nil

	case models.OpDelete:
		target := op.RowID
		if retry && op.Baseline != nil && op.Baseline.EntryID != "" {
			current, err := h.store.FindEntry(ctx, op.Baseline.EntryID)
			if err != nil {
				return nil, err
			}
			if current == nil {
				h.logger.Info("Row already gone, delete from a previous attempt took effect",
					"seq", op.Seq, "entry_id", op.Baseline.EntryID)
				return op.Baseline.Clone(), nil
			}
			// Other deletes may have shifted the row since it was read
			target = current.RowID
		}
		if err := h.store.DeleteRow(ctx, target, op.Baseline); err != nil {
			return nil, err
		}
		if op.Baseline != nil {
			return op.Baseline.Clone(), nil
		}
		return &models.Record{RowID: op.RowID}, nil
	}

	return nil, syncerr.Validation(string(op.Kind), fmt.Sprintf("unsupported operation %q", op.Kind))
}
