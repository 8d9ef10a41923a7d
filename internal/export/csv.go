// Package export renders a snapshot of the records table for spreadsheet tools
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/Guizzs26/abx-sheet-sync/internal/mapper"
	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/pkg/encoding"
)

// Supported output encodings
const (
	EncodingUTF8    = "utf-8"
	EncodingWin1252 = "windows-1252"
)

type Options struct {
	// Encoding is utf-8 (default) or windows-1252 for legacy spreadsheet tools
	Encoding string
	// Comma overrides the field separator; ';' is common in pt-BR locales
	Comma rune
}

// WriteCSV writes the header and every record of snap in table order
func WriteCSV(w io.Writer, snap *models.Snapshot, opts Options) error {
	enc, err := normalizeEncoding(opts.Encoding)
	if err != nil {
		return err
	}

	out := w
	var closer io.Closer
	if enc == EncodingWin1252 {
		wc := encoding.NewWin1252Writer(w)
		out, closer = wc, wc
	}

	cw := csv.NewWriter(out)
	if opts.Comma != 0 {
		cw.Comma = opts.Comma
	}

	rows := mapper.NewRowMapper(models.Columns)
	if err := cw.Write(rows.Header()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if snap != nil {
		for _, rec := range snap.Records {
			if err := cw.Write(rows.ToCells(rec)); err != nil {
				return fmt.Errorf("failed to write row %d: %w", rec.RowID, err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if closer != nil {
		return closer.Close()
	}
	return nil
}

func normalizeEncoding(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return EncodingUTF8, nil
	case "windows-1252", "win1252", "cp1252":
		return EncodingWin1252, nil
	}
	return "", fmt.Errorf("unsupported export encoding %q", name)
}
