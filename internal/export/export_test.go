package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/zonal-cli/internal/zonal"
)

func sampleTable(t *testing.T) *zonal.Table {
	t.Helper()
	tbl := zonal.NewTable("zone", "value", "frac", "count")
	require.NoError(t, tbl.AddRow("north", 41.0, 0.75, 12345.0))
	require.NoError(t, tbl.AddRow("south", math.NaN(), 0.25, 3))
	return tbl
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "JSON", "xlsx", "text"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("parquet")
	assert.ErrorContains(t, err, "unknown format")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, CSV, sampleTable(t)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"zone", "value", "frac", "count"}, records[0])
	assert.Equal(t, []string{"north", "41", "0.75", "12345"}, records[1])
	assert.Equal(t, []string{"south", "", "0.25", "3"}, records[2])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSON, sampleTable(t)))

	// Keys follow column order.
	assert.True(t, strings.HasPrefix(buf.String(), `[{"zone":"north","value":41,"frac":0.75,"count":12345}`))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Nil(t, rows[1]["value"])
	assert.Equal(t, 3.0, rows[1]["count"])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, XLSX, sampleTable(t)))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "zonal", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "zone", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "north", sheet.Rows[1].Cells[0].String())
	v, err := sheet.Rows[1].Cells[2].Float()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, v, 1e-12)
	n, err := sheet.Rows[2].Cells[3].Int()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Text, sampleTable(t)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "zone")
	assert.Contains(t, lines[1], "75.0%")
	assert.Contains(t, lines[1], "12,345")
	assert.Contains(t, lines[2], "NA")
	assert.Contains(t, lines[2], "25.0%")
	// Columns are aligned.
	assert.Equal(t, strings.Index(lines[1], "41"), strings.Index(lines[0], "value"))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteFile(path, CSV, sampleTable(t)))

	err := WriteFile(filepath.Join(t.TempDir(), "missing", "out.csv"), CSV, sampleTable(t))
	assert.Error(t, err)
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "true", formatCell(true))
	assert.Equal(t, "7", formatCell(int64(7)))
	assert.Equal(t, "0.1", formatCell(0.1))
}
