package sheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsConfig locates one tab of a Google spreadsheet
type SheetsConfig struct {
	SpreadsheetID   string
	Tab             string
	CredentialsFile string
	// ClientOptions replace the credentials file when set (custom endpoints, injected HTTP clients)
	ClientOptions []option.ClientOption
}

// SheetsGrid is a Grid backed by the Google Sheets API.
// Credentials are loaded on first use so that a missing credential surfaces as an auth error
// on the first call instead of at startup
type SheetsGrid struct {
	cfg    SheetsConfig
	logger *slog.Logger

	mu       sync.Mutex
	svc      *sheets.Service
	sheetGID *int64
}

func NewSheetsGrid(cfg SheetsConfig, logger *slog.Logger) *SheetsGrid {
	if cfg.Tab == "" {
		cfg.Tab = "Sheet1"
	}
	return &SheetsGrid{cfg: cfg, logger: logger}
}

func (g *SheetsGrid) ReadGrid(ctx context.Context) ([][]string, error) {
	const op = "sheets.read"
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Spreadsheets.Values.Get(g.cfg.SpreadsheetID, g.tabRange()).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifySheetsError(op, err)
	}

	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		out = append(out, cells)
	}
	return out, nil
}

func (g *SheetsGrid) AppendRow(ctx context.Context, cells []string) (int, error) {
	const op = "sheets.append"
	svc, err := g.service(ctx)
	if err != nil {
		return 0, err
	}

	resp, err := svc.Spreadsheets.Values.Append(g.cfg.SpreadsheetID, g.tabRange(), toValueRange(cells)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, classifySheetsError(op, err)
	}
	if resp.Updates == nil {
		return 0, syncerr.New(syncerr.KindUnknown, op, "append response carried no updated range", nil)
	}

	sheetRow, err := parseUpdatedRow(resp.Updates.UpdatedRange)
	if err != nil {
		return 0, syncerr.New(syncerr.KindUnknown, op, "cannot resolve appended row", err)
	}
	// Sheet row 1 is the header
	return sheetRow - 1, nil
}

func (g *SheetsGrid) UpdateRow(ctx context.Context, rowID int, cells []string) error {
	const op = "sheets.update"
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}

	_, err = svc.Spreadsheets.Values.Update(g.cfg.SpreadsheetID, g.rowRange(rowID+1), toValueRange(cells)).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return classifySheetsError(op, err)
}

func (g *SheetsGrid) DeleteRow(ctx context.Context, rowID int) error {
	const op = "sheets.delete"
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}
	gid, err := g.resolveSheetGID(ctx, svc)
	if err != nil {
		return err
	}

	// Dimension indexes are 0-based and include the header row
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         gid,
					Dimension:       "ROWS",
					StartIndex:      int64(rowID),
					EndIndex:        int64(rowID + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err = svc.Spreadsheets.BatchUpdate(g.cfg.SpreadsheetID, req).Context(ctx).Do()
	return classifySheetsError(op, err)
}

func (g *SheetsGrid) WriteHeader(ctx context.Context, header []string) error {
	const op = "sheets.write_header"
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}

	_, err = svc.Spreadsheets.Values.Update(g.cfg.SpreadsheetID, g.rowRange(1), toValueRange(header)).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return classifySheetsError(op, err)
}

// service builds the API client lazily. Failures are not cached so a fixed credential is picked up
func (g *SheetsGrid) service(ctx context.Context) (*sheets.Service, error) {
	const op = "sheets.connect"

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.svc != nil {
		return g.svc, nil
	}

	opts := g.cfg.ClientOptions
	if len(opts) == 0 {
		if g.cfg.CredentialsFile == "" {
			return nil, syncerr.Auth(op, errors.New("no Google credentials configured"))
		}
		data, err := os.ReadFile(g.cfg.CredentialsFile)
		if err != nil {
			return nil, syncerr.Auth(op, fmt.Errorf("failed to read credentials: %w", err))
		}
		opts = []option.ClientOption{
			option.WithCredentialsJSON(data),
			option.WithScopes(sheets.SpreadsheetsScope),
		}
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, syncerr.Auth(op, err)
	}

	g.logger.Info("Google Sheets client initialized", "spreadsheet_id", g.cfg.SpreadsheetID, "tab", g.cfg.Tab)
	g.svc = svc
	return svc, nil
}

func (g *SheetsGrid) resolveSheetGID(ctx context.Context, svc *sheets.Service) (int64, error) {
	const op = "sheets.resolve_tab"

	g.mu.Lock()
	if g.sheetGID != nil {
		gid := *g.sheetGID
		g.mu.Unlock()
		return gid, nil
	}
	g.mu.Unlock()

	ss, err := svc.Spreadsheets.Get(g.cfg.SpreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, classifySheetsError(op, err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == g.cfg.Tab {
			gid := s.Properties.SheetId
			g.mu.Lock()
			g.sheetGID = &gid
			g.mu.Unlock()
			return gid, nil
		}
	}
	return 0, syncerr.Schema(op, fmt.Sprintf("tab %q not found in spreadsheet", g.cfg.Tab))
}

func (g *SheetsGrid) tabRange() string {
	return quoteTab(g.cfg.Tab)
}

func (g *SheetsGrid) rowRange(sheetRow int) string {
	return fmt.Sprintf("%s!A%d", quoteTab(g.cfg.Tab), sheetRow)
}

func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

func toValueRange(cells []string) *sheets.ValueRange {
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return &sheets.ValueRange{Values: [][]interface{}{row}}
}

// parseUpdatedRow extracts the first sheet row number from an A1 range such as 'Sheet1'!A5:J5
func parseUpdatedRow(a1 string) (int, error) {
	cell := a1
	if i := strings.LastIndex(cell, "!"); i >= 0 {
		cell = cell[i+1:]
	}
	if i := strings.Index(cell, ":"); i >= 0 {
		cell = cell[:i]
	}
	digits := strings.TrimLeftFunc(cell, func(r rune) bool {
		return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || r == '$'
	})
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid A1 range %q", a1)
	}
	return n, nil
}

// classifySheetsError maps API failures onto the synchronization error kinds
func classifySheetsError(op string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return syncerr.Transient(op, err)
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return syncerr.Auth(op, err)
		case gerr.Code == http.StatusNotFound:
			return syncerr.Schema(op, "spreadsheet or tab not found: "+gerr.Message)
		case gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range"):
			return syncerr.Schema(op, "tab not found: "+gerr.Message)
		default:
			return syncerr.New(syncerr.KindUnknown, op, "sheets request rejected", err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return syncerr.Transient(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return syncerr.Transient(op, err)
	}
	// Transport failures surface as *url.Error, which implements net.Error; anything left is unknown
	return syncerr.New(syncerr.KindUnknown, op, "sheets request failed", err)
}
