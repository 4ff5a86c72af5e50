// Package export writes result tables as CSV, JSON, XLSX, or aligned text.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/zonal-cli/internal/zonal"
)

// Format names an output encoding.
type Format string

// Output formats.
const (
	CSV  Format = "csv"
	JSON Format = "json"
	XLSX Format = "xlsx"
	Text Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case CSV, JSON, XLSX, Text:
		return f, nil
	}
	return "", eris.Errorf("export: unknown format %q", s)
}

// Write encodes t to w in format f.
func Write(w io.Writer, f Format, t *zonal.Table) error {
	switch f {
	case CSV:
		return WriteCSV(w, t)
	case JSON:
		return WriteJSON(w, t)
	case XLSX:
		return WriteXLSX(w, t)
	case Text:
		return WriteText(w, t)
	}
	return eris.Errorf("export: unknown format %q", f)
}

// WriteFile creates path and writes t to it.
func WriteFile(path string, f Format, t *zonal.Table) error {
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Write(out, f, t); err != nil {
		_ = out.Close()
		return err
	}
	return eris.Wrap(out.Close(), "export: close file")
}

// WriteCSV writes a header row then one record per table row. NaN and nil
// cells are empty.
func WriteCSV(w io.Writer, t *zonal.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for j, v := range row {
			record[j] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteJSON writes an array of objects with keys in column order. NaN
// becomes null.
func WriteJSON(w io.Writer, t *zonal.Table) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range t.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(col)
			buf.Write(key)
			buf.WriteByte(':')

			v := row[j]
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				v = nil
			}
			val, err := json.Marshal(v)
			if err != nil {
				return eris.Wrapf(err, "export: encode row %d column %s", i, col)
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteString("]\n")
	_, err := w.Write(buf.Bytes())
	return eris.Wrap(err, "export: write json")
}

// WriteXLSX writes a single-sheet workbook. Numbers are stored as numeric
// cells.
func WriteXLSX(w io.Writer, t *zonal.Table) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("zonal")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range t.Columns {
		header.AddCell().SetString(col)
	}
	for _, row := range t.Rows {
		r := sheet.AddRow()
		for _, v := range row {
			cell := r.AddCell()
			switch x := v.(type) {
			case float64:
				if !math.IsNaN(x) && !math.IsInf(x, 0) {
					cell.SetFloat(x)
				}
			case int:
				cell.SetInt(x)
			case int64:
				cell.SetInt64(x)
			case nil:
			default:
				cell.SetString(formatCell(v))
			}
		}
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// WriteText writes a human-readable aligned table. Fraction columns are
// shown as percentages and numbers use locale grouping.
func WriteText(w io.Writer, t *zonal.Table) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = io.WriteString(tw, strings.Join(t.Columns, "\t")+"\n")
	cells := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for j, v := range row {
			cells[j] = textCell(p, t.Columns[j], v)
		}
		_, _ = io.WriteString(tw, strings.Join(cells, "\t")+"\n")
	}
	return eris.Wrap(tw.Flush(), "export: write text")
}

func isFraction(column string) bool {
	return column == "frac" || strings.HasSuffix(column, "_frac") || column == zonal.ColCoverage
}

func textCell(p *message.Printer, column string, v any) string {
	f, ok := v.(float64)
	switch {
	case !ok:
		return formatCell(v)
	case math.IsNaN(f):
		return "NA"
	case isFraction(column):
		return p.Sprintf("%.1f%%", f*100)
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return p.Sprintf("%d", int64(f))
	default:
		return p.Sprintf("%.4f", f)
	}
}

// formatCell renders a cell for CSV and string XLSX cells.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}
