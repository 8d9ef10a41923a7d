package sheet

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"

	"github.com/Guizzs26/abx-sheet-sync/internal/db"
	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
	"github.com/Guizzs26/abx-sheet-sync/pkg/encoding"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,40}$`)

// SQLGrid stores the grid in two relational tables: <table>_header and <table>_rows.
// Data rows are ordered by a sequence allocated inside the insert transaction, so a row's
// 1-based position is its rank in that order
type SQLGrid struct {
	conn    *sql.DB
	dialect string
	header  string
	rows    string
	logger  *slog.Logger
}

// NewSQLGrid prepares the backing tables if they do not exist yet
func NewSQLGrid(ctx context.Context, conn *sql.DB, dialect, table string, logger *slog.Logger) (*SQLGrid, error) {
	table = strings.ToLower(table)
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	g := &SQLGrid{
		conn:    conn,
		dialect: dialect,
		header:  table + "_header",
		rows:    table + "_rows",
		logger:  logger,
	}
	if err := g.migrate(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *SQLGrid) migrate(ctx context.Context) error {
	textType := "TEXT"
	if g.dialect == db.Firebird {
		textType = "BLOB SUB_TYPE TEXT"
	}

	ddl := map[string]string{
		g.header: fmt.Sprintf("CREATE TABLE %s (col_pos INTEGER NOT NULL PRIMARY KEY, col_name VARCHAR(64) NOT NULL)", g.header),
		g.rows:   fmt.Sprintf("CREATE TABLE %s (row_seq BIGINT NOT NULL PRIMARY KEY, row_cells %s)", g.rows, textType),
	}

	for _, name := range []string{g.header, g.rows} {
		exists, err := g.tableExists(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to inspect table %s: %w", name, err)
		}
		if exists {
			continue
		}
		if _, err := g.conn.ExecContext(ctx, ddl[name]); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
		g.logger.Info("Created grid table", "table", name, "dialect", g.dialect)
	}
	return nil
}

func (g *SQLGrid) tableExists(ctx context.Context, name string) (bool, error) {
	var query string
	arg := name
	switch g.dialect {
	case db.Firebird:
		// Firebird 2.5 has no IF NOT EXISTS; relation names are stored upper-cased and padded
		query = "SELECT COUNT(*) FROM RDB$RELATIONS WHERE TRIM(RDB$RELATION_NAME) = ?"
		arg = strings.ToUpper(name)
	case db.SQLite:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	default:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1"
	}

	var n int
	if err := g.conn.QueryRowContext(ctx, query, arg).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *SQLGrid) ReadGrid(ctx context.Context) ([][]string, error) {
	const op = "sql.read"

	tx, err := g.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifySQLError(op, err)
	}
	// Safety: Rollback is a no-op if Commit was already called
	defer tx.Rollback()

	header, err := g.readHeader(ctx, tx)
	if err != nil {
		return nil, classifySQLError(op, err)
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT row_cells FROM %s ORDER BY row_seq", g.rows))
	if err != nil {
		return nil, classifySQLError(op, err)
	}
	defer rows.Close()

	var data [][]string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, classifySQLError(op, err)
		}
		cells, err := g.decodeCells(raw)
		if err != nil {
			return nil, syncerr.New(syncerr.KindSchema, op, "corrupt row payload", err)
		}
		data = append(data, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classifySQLError(op, err)
	}

	if len(header) == 0 && len(data) == 0 {
		return nil, nil
	}
	out := make([][]string, 0, len(data)+1)
	out = append(out, header)
	out = append(out, data...)
	return out, nil
}

func (g *SQLGrid) AppendRow(ctx context.Context, cells []string) (int, error) {
	const op = "sql.append"

	payload, err := json.Marshal(cells)
	if err != nil {
		return 0, syncerr.New(syncerr.KindUnknown, op, "failed to encode row", err)
	}

	tx, err := g.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifySQLError(op, err)
	}
	defer tx.Rollback()

	var next int64
	nextQuery := fmt.Sprintf("SELECT COALESCE(MAX(row_seq), 0) + 1 FROM %s", g.rows)
	if err := tx.QueryRowContext(ctx, nextQuery).Scan(&next); err != nil {
		return 0, classifySQLError(op, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (row_seq, row_cells) VALUES (%s, %s)", g.rows, g.ph(1), g.ph(2))
	if _, err := tx.ExecContext(ctx, insert, next, string(payload)); err != nil {
		return 0, classifySQLError(op, err)
	}

	var position int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", g.rows)).Scan(&position); err != nil {
		return 0, classifySQLError(op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, classifySQLError(op, err)
	}

	g.logger.Debug("Grid row inserted", "table", g.rows, "seq", next, "row_id", position)
	return position, nil
}

func (g *SQLGrid) UpdateRow(ctx context.Context, rowID int, cells []string) error {
	const op = "sql.update"

	payload, err := json.Marshal(cells)
	if err != nil {
		return syncerr.New(syncerr.KindUnknown, op, "failed to encode row", err)
	}

	return g.withRow(ctx, op, rowID, func(tx *sql.Tx, seq int64) error {
		query := fmt.Sprintf("UPDATE %s SET row_cells = %s WHERE row_seq = %s", g.rows, g.ph(1), g.ph(2))
		_, err := tx.ExecContext(ctx, query, string(payload), seq)
		return err
	})
}

func (g *SQLGrid) DeleteRow(ctx context.Context, rowID int) error {
	const op = "sql.delete"

	return g.withRow(ctx, op, rowID, func(tx *sql.Tx, seq int64) error {
		query := fmt.Sprintf("DELETE FROM %s WHERE row_seq = %s", g.rows, g.ph(1))
		_, err := tx.ExecContext(ctx, query, seq)
		return err
	})
}

func (g *SQLGrid) WriteHeader(ctx context.Context, header []string) error {
	const op = "sql.write_header"

	tx, err := g.conn.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLError(op, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", g.header)); err != nil {
		return classifySQLError(op, err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (col_pos, col_name) VALUES (%s, %s)", g.header, g.ph(1), g.ph(2))
	for i, name := range header {
		if _, err := tx.ExecContext(ctx, insert, i+1, name); err != nil {
			return classifySQLError(op, err)
		}
	}
	return classifySQLError(op, tx.Commit())
}

// withRow resolves a 1-based position to its sequence and runs fn in the same transaction
func (g *SQLGrid) withRow(ctx context.Context, op string, rowID int, fn func(tx *sql.Tx, seq int64) error) error {
	tx, err := g.conn.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLError(op, err)
	}
	defer tx.Rollback()

	seq, found, err := g.seqAt(ctx, tx, rowID)
	if err != nil {
		return classifySQLError(op, err)
	}
	if !found {
		return syncerr.NotFound(op, rowID)
	}

	if err := fn(tx, seq); err != nil {
		return classifySQLError(op, err)
	}
	return classifySQLError(op, tx.Commit())
}

func (g *SQLGrid) seqAt(ctx context.Context, tx *sql.Tx, rowID int) (int64, bool, error) {
	if rowID < 1 {
		return 0, false, nil
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT row_seq FROM %s ORDER BY row_seq", g.rows))
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()

	pos := 0
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return 0, false, err
		}
		pos++
		if pos == rowID {
			return seq, true, nil
		}
	}
	return 0, false, rows.Err()
}

func (g *SQLGrid) readHeader(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT col_name FROM %s ORDER BY col_pos", g.header))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var header []string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		header = append(header, g.decodeText(raw))
	}
	return header, rows.Err()
}

func (g *SQLGrid) decodeCells(raw []byte) ([]string, error) {
	var cells []string
	if err := json.Unmarshal([]byte(g.decodeText(raw)), &cells); err != nil {
		return nil, err
	}
	return cells, nil
}

func (g *SQLGrid) decodeText(raw []byte) string {
	if g.dialect == db.Firebird {
		return encoding.ToUTF8(raw)
	}
	return string(raw)
}

// ph renders the n-th bind placeholder for the dialect
func (g *SQLGrid) ph(n int) string {
	if g.dialect == db.Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// classifySQLError maps driver failures onto the synchronization error kinds
func classifySQLError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *syncerr.Error
	if errors.As(err, &se) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return syncerr.Transient(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return syncerr.Transient(op, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	// Lock contention and sequence races on concurrent appends are worth another attempt:
	// - deadlock / lock conflict / concurrent update (Firebird, 335544336)
	// - database is locked (SQLite busy)
	// - duplicate key / unique / primary key violation (two appends picked the same sequence)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "lock conflict"),
		strings.Contains(msg, "concurrent update"),
		strings.Contains(msg, "335544336"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "unique"),
		strings.Contains(msg, "primary or unique key"):
		return syncerr.Transient(op, err)
	case strings.Contains(msg, "password authentication failed"),
		strings.Contains(msg, "user name and password are not defined"),
		strings.Contains(msg, "permission denied"):
		return syncerr.Auth(op, err)
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "table unknown"):
		return syncerr.Schema(op, err.Error())
	}
	return syncerr.New(syncerr.KindUnknown, op, "database error", err)
}
