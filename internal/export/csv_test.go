package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Schema: models.Columns,
		Records: []models.Record{
			{RowID: 1, EntryID: "e-1", Fields: models.Fields{PatientID: "P1", Name: "João Araújo", Antibiotic: "Vancomicina", Dosage: "1g", Route: "IV", Notes: "infusão lenta, 2h"}},
			{RowID: 2, EntryID: "e-2", Fields: models.Fields{PatientID: "P2", Antibiotic: "Cefazolina"}},
		},
	}
}

func TestWriteCSV_UTF8(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleSnapshot(), Options{}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(models.Columns, ","), lines[0])
	assert.Equal(t, `P1,João Araújo,Vancomicina,1g,IV,,,,"infusão lenta, 2h",e-1`, lines[1])
	assert.Equal(t, "P2,,Cefazolina,,,,,,,e-2", lines[2])
}

func TestWriteCSV_Win1252(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleSnapshot(), Options{Encoding: "cp1252", Comma: ';'}))

	out := buf.Bytes()
	assert.True(t, bytes.Contains(out, []byte{'J', 'o', 0xE3, 'o'}), "ã is a single WIN1252 byte")
	assert.False(t, bytes.Contains(out, []byte("ã")), "no UTF-8 sequences left")
	assert.True(t, bytes.HasPrefix(out, []byte("patient_id;name;")))
}

func TestWriteCSV_EmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, Options{Encoding: "UTF-8"}))
	assert.Equal(t, strings.Join(models.Columns, ",")+"\n", buf.String())
}

func TestWriteCSV_UnknownEncoding(t *testing.T) {
	err := WriteCSV(&bytes.Buffer{}, sampleSnapshot(), Options{Encoding: "latin-9"})
	assert.ErrorContains(t, err, "unsupported export encoding")
}
