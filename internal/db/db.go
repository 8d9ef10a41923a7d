package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/nakagami/firebirdsql"
	_ "modernc.org/sqlite"
)

// Dialects understood by Open
const (
	Postgres = "postgres"
	Firebird = "firebird"
	SQLite   = "sqlite"
)

// DriverName maps a dialect onto its registered database/sql driver
func DriverName(dialect string) (string, error) {
	switch dialect {
	case Postgres:
		return "pgx", nil
	case Firebird:
		return "firebirdsql", nil
	case SQLite:
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported dialect %q", dialect)
}

// Open creates a connection pool tuned for the dialect and verifies it with a ping
func Open(ctx context.Context, dialect, connString string, logger *slog.Logger) (*sql.DB, error) {
	driver, err := DriverName(dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect, err)
	}

	switch dialect {
	case Firebird:
		// Legacy servers handle a single connection best
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(10 * time.Minute)
	case SQLite:
		// One writer; also keeps shared in-memory databases alive between calls
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case Postgres:
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s ping failed: %w", dialect, err)
	}

	logger.Info("Connected to table database", "dialect", dialect)
	return db, nil
}
