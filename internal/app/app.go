// Package app assembles the synchronization layer from configuration
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/broker"
	"github.com/Guizzs26/abx-sheet-sync/internal/cache"
	"github.com/Guizzs26/abx-sheet-sync/internal/config"
	"github.com/Guizzs26/abx-sheet-sync/internal/db"
	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/processor"
	"github.com/Guizzs26/abx-sheet-sync/internal/service"
	"github.com/Guizzs26/abx-sheet-sync/internal/sheet"
	"go.uber.org/multierr"
)

// App owns every long-lived component. Only Coordinator mutates the remote table
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Client      *sheet.Client
	Cache       *cache.ReadCache
	Coordinator *service.WriteCoordinator
	View        *service.RecordView

	conn      *sql.DB
	publisher *broker.RabbitMQClient
}

// New connects the configured backend and starts the write coordinator
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	grid, conn, err := OpenGrid(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, conn: conn}
	a.Client = sheet.NewClient(grid, logger.With("component", "record_store"))
	a.Cache = cache.NewReadCache(a.Client, cfg.CacheTTL, logger.With("component", "read_cache"),
		cache.WithReadTimeout(cfg.AttemptTimeout))

	var publisher service.ChangePublisher = service.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		client, err := broker.NewRabbitMQClient(cfg.RabbitMQURL, logger.With("component", "change_feed"))
		if err != nil {
			// Writes must not depend on the broker; peers fall back to their cache TTL
			logger.Warn("Change feed unavailable, continuing without publishing", "error", err)
		} else {
			a.publisher = client
			publisher = client
		}
	}

	handler := processor.NewWriteHandler(a.Client, processor.RetryPolicy{
		Base:           cfg.RetryBase,
		Max:            cfg.RetryMax,
		MaxAttempts:    cfg.RetryMaxAttempts,
		Jitter:         cfg.RetryJitter,
		AttemptTimeout: cfg.AttemptTimeout,
	}, logger.With("component", "write_handler"))

	a.Coordinator = service.NewWriteCoordinator(handler, a.Cache, publisher, service.CoordinatorConfig{
		Workers: cfg.WriteWorkers,
		Origin:  cfg.InstanceID,
	}, logger.With("component", "write_coordinator"))

	a.View = service.NewRecordView(a.Cache, a.Coordinator, cfg.ViewMaxAge, logger.With("component", "record_view"))
	return a, nil
}

// OpenGrid builds the Grid for cfg.Backend. The returned *sql.DB is nil for non-SQL backends
func OpenGrid(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sheet.Grid, *sql.DB, error) {
	switch cfg.Backend {
	case config.BackendSheets:
		return sheet.NewSheetsGrid(sheet.SheetsConfig{
			SpreadsheetID:   cfg.SheetID,
			Tab:             cfg.SheetTab,
			CredentialsFile: cfg.GoogleCredentialsFile,
		}, logger.With("component", "sheets")), nil, nil

	case config.BackendPostgres, config.BackendFirebird, config.BackendSQLite:
		conn, err := db.Open(ctx, cfg.Backend, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		grid, err := sheet.NewSQLGrid(ctx, conn, cfg.Backend, cfg.TableName, logger.With("component", "sql_grid"))
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return grid, conn, nil

	case config.BackendMemory:
		return sheet.NewMemoryGrid(models.Columns), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// Close drains the coordinator, then releases the broker and database connections
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.Coordinator != nil {
		err = multierr.Append(err, a.Coordinator.Close(ctx))
	}
	if a.publisher != nil {
		err = multierr.Append(err, a.publisher.Close())
	}
	if a.conn != nil {
		err = multierr.Append(err, a.conn.Close())
	}
	return err
}

// ShutdownContext bounds how long Close may wait for in-flight writes
func ShutdownContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	// One full attempt plus slack for the change-feed publish
	return context.WithTimeout(context.Background(), cfg.AttemptTimeout+5*time.Second)
}
