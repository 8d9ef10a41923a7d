package encoding

import (
	"io"
	"strings"
	"unicode/utf8"

	xencoding "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ToUTF8 converts bytes read from a WIN1252 column (common in Firebird legacy DBs) to a UTF-8 string.
// If the data is already valid UTF-8, it is returned as is
func ToUTF8(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		// Fallback: return raw string if decoding fails (better than crashing)
		return string(b)
	}

	return strings.TrimSpace(string(decoded))
}

// FromUTF8 converts a UTF-8 string to Windows-1252 bytes. Characters with no WIN1252 form become '?'
func FromUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// NewWin1252Writer wraps w so that UTF-8 text written to it lands as Windows-1252.
// Unsupported characters become the charmap substitute byte. Close flushes any buffered partial rune
func NewWin1252Writer(w io.Writer) io.WriteCloser {
	return transform.NewWriter(w, xencoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()))
}
