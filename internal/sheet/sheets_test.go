package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestParseUpdatedRow(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "'Sheet1'!A5:J5", want: 5},
		{in: "Sheet1!A12", want: 12},
		{in: "'UTI Leito 3'!$A$7:$J$7", want: 7},
		{in: "'Sheet1'!A:J", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseUpdatedRow(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifySheetsError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want syncerr.Kind
	}{
		{name: "rate limited", err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: syncerr.KindTransient},
		{name: "backend error", err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: syncerr.KindTransient},
		{name: "unauthorized", err: &googleapi.Error{Code: http.StatusUnauthorized}, want: syncerr.KindAuth},
		{name: "forbidden", err: &googleapi.Error{Code: http.StatusForbidden}, want: syncerr.KindAuth},
		{name: "missing tab", err: &googleapi.Error{Code: http.StatusBadRequest, Message: "Unable to parse range: 'Plan2'"}, want: syncerr.KindSchema},
		{name: "bad request", err: &googleapi.Error{Code: http.StatusBadRequest, Message: "Invalid value"}, want: syncerr.KindUnknown},
		{name: "deadline", err: context.DeadlineExceeded, want: syncerr.KindTransient},
		{name: "other", err: errors.New("boom"), want: syncerr.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, syncerr.KindOf(classifySheetsError("op", tt.err)))
		})
	}
}

func TestQuoteTab(t *testing.T) {
	assert.Equal(t, "'Sheet1'", quoteTab("Sheet1"))
	assert.Equal(t, "'Dr. O''Neil'", quoteTab("Dr. O'Neil"))
}

func TestSheetsGrid_MissingCredentialIsAuthError(t *testing.T) {
	grid := NewSheetsGrid(SheetsConfig{SpreadsheetID: "abc"}, discardLogger())

	_, err := grid.ReadGrid(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindAuth))

	grid = NewSheetsGrid(SheetsConfig{SpreadsheetID: "abc", CredentialsFile: t.TempDir() + "/missing.json"}, discardLogger())
	_, err = grid.AppendRow(context.Background(), []string{"x"})
	assert.True(t, syncerr.Is(err, syncerr.KindAuth))
}

func TestSheetsGrid_AgainstFakeAPI(t *testing.T) {
	var appended [][]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
			var body struct {
				Values [][]interface{} `json:"values"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			appended = append(appended, body.Values...)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"updates": map[string]any{"updatedRange": "'Sheet1'!A3:J3"},
			})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
			header := make([]any, len(models.Columns))
			for i, c := range models.Columns {
				header[i] = c
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"range":  "'Sheet1'!A1:J2",
				"values": []any{header, []any{"P1", "Ana", "Cefepime"}},
			})
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": 503, "message": "backend unavailable"},
			})
		}
	}))
	defer srv.Close()

	grid := NewSheetsGrid(SheetsConfig{
		SpreadsheetID: "sheet-id",
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithoutAuthentication(),
			option.WithHTTPClient(srv.Client()),
		},
	}, discardLogger())
	ctx := context.Background()

	rows, err := grid.ReadGrid(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.Columns, rows[0])
	assert.Equal(t, []string{"P1", "Ana", "Cefepime"}, rows[1])

	pos, err := grid.AppendRow(ctx, []string{"P2", "Rui", "Linezolida"})
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	require.Len(t, appended, 1)
	assert.Equal(t, "Linezolida", appended[0][2])

	err = grid.UpdateRow(ctx, 1, []string{"P1"})
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindTransient))
}
