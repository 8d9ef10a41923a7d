package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/pkg/metrics"
)

// ChangeFeedService applies change events from other instances to the local read cache
type ChangeFeedService struct {
	cache    Invalidator
	origin   string
	logger   *slog.Logger
	onChange func(ctx context.Context, ev models.ChangeEvent)
}

// ChangeFeedOption customizes a ChangeFeedService
type ChangeFeedOption func(*ChangeFeedService)

// WithChangeHook runs fn after the cache was invalidated for a peer event, e.g. to re-render a view
func WithChangeHook(fn func(ctx context.Context, ev models.ChangeEvent)) ChangeFeedOption {
	return func(s *ChangeFeedService) { s.onChange = fn }
}

func NewChangeFeedService(cache Invalidator, origin string, l *slog.Logger, opts ...ChangeFeedOption) *ChangeFeedService {
	s := &ChangeFeedService{cache: cache, origin: origin, logger: l}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleChange decodes one event body. Events published by this instance are ignored because the
// coordinator already invalidated after its own commit
func (s *ChangeFeedService) HandleChange(ctx context.Context, body []byte) error {
	var ev models.ChangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		s.logger.Error("ChangeFeed: failed to unmarshal event", "error", err)
		return fmt.Errorf("malformed change event: %w", err)
	}

	if ev.Origin == s.origin {
		metrics.ChangeEvents.WithLabelValues("ignored").Inc()
		return nil
	}

	metrics.ChangeEvents.WithLabelValues("received").Inc()
	s.logger.Info("ChangeFeed: remote table changed by another instance, dropping cached snapshot",
		"event_id", ev.EventID,
		"origin", ev.Origin,
		"operation", ev.Operation,
		"row_id", ev.RowID)

	s.cache.InvalidateFrom("change_feed")
	if s.onChange != nil {
		s.onChange(ctx, ev)
	}
	return nil
}
