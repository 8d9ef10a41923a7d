package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
	"github.com/Guizzs26/abx-sheet-sync/pkg/metrics"
	"github.com/google/uuid"
)

// ErrCoordinatorClosed resolves operations submitted after, or still queued at, Close
var ErrCoordinatorClosed = errors.New("write coordinator closed")

// Executor runs one operation to resolution (retries included)
type Executor interface {
	Process(ctx context.Context, op models.Operation) models.Result
}

// Invalidator drops cached reads after the remote table changed
type Invalidator interface {
	InvalidateFrom(source string)
}

// ChangePublisher announces committed writes to other instances
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev models.ChangeEvent) error
}

// CoordinatorConfig sizes the worker pool and names this instance on the change feed
type CoordinatorConfig struct {
	Workers int
	Origin  string
	// PublishTimeout bounds the change-feed publish after a commit
	PublishTimeout time.Duration
}

// WriteCoordinator is the single gateway for mutations of the remote table.
// Operations are queued in submission order; workers pick the oldest operation whose row is not
// already in flight, so operations on the same row run strictly in order while different rows proceed
// concurrently
type WriteCoordinator struct {
	exec      Executor
	cache     Invalidator
	publisher ChangePublisher
	cfg       CoordinatorConfig
	logger    *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Ticket
	busy    map[int]bool
	nextSeq uint64
	closed  bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWriteCoordinator(exec Executor, cache Invalidator, publisher ChangePublisher, cfg CoordinatorConfig, logger *slog.Logger) *WriteCoordinator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > 4 {
		cfg.Workers = 4
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &WriteCoordinator{
		exec:      exec,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		busy:      make(map[int]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.cond = sync.NewCond(&c.mu)

	for i := 0; i < cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(i + 1)
	}

	logger.Info("Write coordinator started", "workers", cfg.Workers)
	return c
}

// Submit assigns a sequence number and queues the operation.
// Insert/update fields and row ids are validated here; invalid operations resolve Failed without
// any remote call
func (c *WriteCoordinator) Submit(op models.Operation) *Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq++
	op.Seq = c.nextSeq
	op.Attempts = 0
	if op.Kind == models.OpInsert && op.Marker == "" {
		op.Marker = uuid.NewString()
	}

	t := &Ticket{
		op:     op,
		status: models.StatusQueued,
		done:   make(chan struct{}),
		c:      c,
	}

	if c.closed {
		t.resolve(models.Result{Seq: op.Seq, Kind: op.Kind, RowID: op.RowID, Status: models.StatusFailed, Err: ErrCoordinatorClosed})
		return t
	}
	if err := checkOperation(op); err != nil {
		t.resolve(models.Result{Seq: op.Seq, Kind: op.Kind, RowID: op.RowID, Status: models.StatusFailed, Err: err})
		return t
	}

	c.queue = append(c.queue, t)
	metrics.QueueDepth.Inc()
	c.logger.Debug("Operation queued", "seq", op.Seq, "kind", op.Kind, "row_id", op.RowID)
	c.cond.Broadcast()
	return t
}

// Close stops accepting operations, fails everything still queued and waits for in-flight ones.
// If ctx expires first the in-flight operations are aborted and ctx's error is returned
func (c *WriteCoordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.queue
	c.queue = nil
	for _, t := range pending {
		metrics.QueueDepth.Dec()
		t.resolve(models.Result{Seq: t.op.Seq, Kind: t.op.Kind, RowID: t.op.RowID, Status: models.StatusFailed, Err: ErrCoordinatorClosed})
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	if len(pending) > 0 {
		c.logger.Warn("Queued operations failed by shutdown", "count", len(pending))
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		c.logger.Info("Write coordinator stopped")
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}

func (c *WriteCoordinator) worker(id int) {
	defer c.wg.Done()

	for {
		t, ok := c.take()
		if !ok {
			c.logger.Debug("Write worker exiting", "worker", id)
			return
		}

		metrics.InFlight.Inc()
		res := c.exec.Process(c.ctx, t.op)
		metrics.InFlight.Dec()

		c.finish(t, res)
	}
}

// take blocks until an operation is eligible or the coordinator is closed and drained
func (c *WriteCoordinator) take() (*Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		for i, t := range c.queue {
			if key, keyed := rowKey(t.op); keyed && c.busy[key] {
				continue
			}
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			if key, keyed := rowKey(t.op); keyed {
				c.busy[key] = true
			}
			metrics.QueueDepth.Dec()
			t.setStatus(models.StatusInFlight)
			return t, true
		}
		if c.closed {
			return nil, false
		}
		c.cond.Wait()
	}
}

func (c *WriteCoordinator) finish(t *Ticket, res models.Result) {
	switch res.Status {
	case models.StatusCommitted:
		c.cache.InvalidateFrom("write")
	case models.StatusConflicted:
		c.cache.InvalidateFrom("conflict")
	case models.StatusFailed:
		if syncerr.Is(res.Err, syncerr.KindNotFound) {
			c.cache.InvalidateFrom("not_found")
		}
	}

	c.mu.Lock()
	if key, keyed := rowKey(t.op); keyed {
		delete(c.busy, key)
	}
	t.resolve(res)
	c.cond.Broadcast()
	c.mu.Unlock()

	if res.Status == models.StatusCommitted {
		c.publish(t.op, res)
	}
}

func (c *WriteCoordinator) publish(op models.Operation, res models.Result) {
	ev := models.ChangeEvent{
		EventID:    uuid.NewString(),
		Origin:     c.cfg.Origin,
		Operation:  op.Kind,
		RowID:      res.RowID,
		OccurredAt: time.Now().UTC(),
	}
	if res.Record != nil {
		ev.EntryID = res.Record.EntryID
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PublishTimeout)
	defer cancel()

	if err := c.publisher.PublishChange(ctx, ev); err != nil {
		// The commit stands; peers fall back to their cache TTL
		metrics.ChangeEvents.WithLabelValues("failed").Inc()
		c.logger.Warn("Failed to publish change event", "seq", op.Seq, "event_id", ev.EventID, "error", err)
		return
	}
	metrics.ChangeEvents.WithLabelValues("published").Inc()
}

func rowKey(op models.Operation) (int, bool) {
	if op.Kind == models.OpInsert {
		return 0, false
	}
	return op.RowID, true
}

func checkOperation(op models.Operation) error {
	switch op.Kind {
	case models.OpInsert:
		return validateFields(string(op.Kind), op.Fields)
	case models.OpUpdate:
		if op.RowID < 1 {
			return syncerr.Validation(string(op.Kind), fmt.Sprintf("invalid row id %d", op.RowID))
		}
		return validateFields(string(op.Kind), op.Fields)
	case models.OpDelete:
		if op.RowID < 1 {
			return syncerr.Validation(string(op.Kind), fmt.Sprintf("invalid row id %d", op.RowID))
		}
		return nil
	}
	return syncerr.Validation("submit", fmt.Sprintf("unsupported operation %q", op.Kind))
}

// Ticket tracks one submitted operation
type Ticket struct {
	op models.Operation
	c  *WriteCoordinator

	mu     sync.Mutex
	status models.OpStatus
	result models.Result
	done   chan struct{}
}

func (t *Ticket) Seq() uint64 {
	return t.op.Seq
}

// Marker is the entry id an insert is written with
func (t *Ticket) Marker() string {
	return t.op.Marker
}

func (t *Ticket) Status() models.OpStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Done is closed once the operation reaches a terminal state
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the operation resolves or ctx ends. Giving up on the wait does not cancel
// an in-flight operation; the returned result then carries the current status and ctx's error
func (t *Ticket) Wait(ctx context.Context) models.Result {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result
	case <-ctx.Done():
		return models.Result{
			Seq:    t.op.Seq,
			Kind:   t.op.Kind,
			RowID:  t.op.RowID,
			Status: t.Status(),
			Err:    ctx.Err(),
		}
	}
}

// Cancel withdraws the operation if it is still queued. It reports false once the operation
// has started or resolved
func (t *Ticket) Cancel() bool {
	c := t.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Status() != models.StatusQueued {
		return false
	}
	for i, q := range c.queue {
		if q == t {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			metrics.QueueDepth.Dec()
			break
		}
	}
	t.resolve(models.Result{Seq: t.op.Seq, Kind: t.op.Kind, RowID: t.op.RowID, Status: models.StatusCancelled})
	c.logger.Info("Queued operation cancelled", "seq", t.op.Seq, "kind", t.op.Kind)
	return true
}

func (t *Ticket) setStatus(s models.OpStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Ticket) resolve(res models.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = res.Status
	t.result = res
	metrics.WriteOps.WithLabelValues(string(t.op.Kind), string(res.Status)).Inc()
	close(t.done)
}

// NopPublisher is used when no change feed is configured
type NopPublisher struct{}

func (NopPublisher) PublishChange(context.Context, models.ChangeEvent) error { return nil }
