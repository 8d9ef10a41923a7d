// Package cache keeps the most recent snapshot of the remote table and decides when to refetch it
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Reader is the remote read the cache sits in front of
type Reader interface {
	ReadAll(ctx context.Context) (*models.Snapshot, error)
}

// ReadCache holds at most one snapshot. Concurrent refreshes are coalesced onto one fetch
type ReadCache struct {
	reader      Reader
	ttl         time.Duration
	readTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.Mutex
	snapshot   *models.Snapshot
	generation uint64

	group singleflight.Group
}

// Option customizes a ReadCache
type Option func(*ReadCache)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *ReadCache) { c.now = now }
}

// WithReadTimeout bounds a single refresh (default 10s)
func WithReadTimeout(d time.Duration) Option {
	return func(c *ReadCache) { c.readTimeout = d }
}

func NewReadCache(reader Reader, ttl time.Duration, logger *slog.Logger, opts ...Option) *ReadCache {
	c := &ReadCache{
		reader:      reader,
		ttl:         ttl,
		readTimeout: 10 * time.Second,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL is the default max age used by callers without a tighter bound
func (c *ReadCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached snapshot if it is no older than maxAge, otherwise refreshes it.
// A non-positive maxAge uses the cache TTL
func (c *ReadCache) Get(ctx context.Context, maxAge time.Duration) (*models.Snapshot, error) {
	if maxAge <= 0 {
		maxAge = c.ttl
	}

	c.mu.Lock()
	snap := c.snapshot
	gen := c.generation
	c.mu.Unlock()

	if snap != nil && c.now().Sub(snap.FetchedAt) <= maxAge {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return snap, nil
	}

	// Keying by generation keeps callers that arrive after an Invalidate off an older fetch
	key := strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.refresh(ctx, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CacheLookups.WithLabelValues("coalesced").Inc()
		} else {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Snapshot), nil
	}
}

// Invalidate drops the cached snapshot so the next Get refetches
func (c *ReadCache) Invalidate() {
	c.invalidate("local")
}

// InvalidateFrom is Invalidate with the source recorded for metrics (local write, change feed)
func (c *ReadCache) InvalidateFrom(source string) {
	c.invalidate(source)
}

func (c *ReadCache) invalidate(source string) {
	c.mu.Lock()
	c.snapshot = nil
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	metrics.CacheInvalidations.WithLabelValues(source).Inc()
	c.logger.Debug("Read cache invalidated", "source", source, "generation", gen)
}

// Peek returns the cached snapshot, if any, without remote I/O
func (c *ReadCache) Peek() *models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *ReadCache) refresh(ctx context.Context, gen uint64) (*models.Snapshot, error) {
	// The fetch outlives the first caller's cancellation so coalesced callers still get a result
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.readTimeout)
	defer cancel()

	fetched, err := c.reader.ReadAll(readCtx)
	if err != nil {
		c.logger.Warn("Read cache refresh failed", "error", err)
		return nil, err
	}
	// Age is always measured on the cache's own clock
	stamped := *fetched
	stamped.FetchedAt = c.now()
	snap := &stamped

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		// Invalidated while fetching: the result is served to its waiters but not kept
		c.logger.Debug("Discarding snapshot fetched before invalidation", "generation", gen)
		return snap, nil
	}
	c.snapshot = snap
	c.logger.Debug("Read cache refreshed", "rows", snap.Len())
	return snap, nil
}
