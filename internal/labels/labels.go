// Package labels maps category codes to human-readable names. It annotates
// result tables after the engine has run and is never consulted during
// summarization.
package labels

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/zonal-cli/internal/raster"
	"github.com/sells-group/zonal-cli/internal/zonal"
)

// Lookup maps category codes to names.
type Lookup map[int]string

// Load reads a label table, choosing the format by extension.
func Load(path string) (Lookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "labels: open %s", path)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ReadYAML(f)
	case ".csv":
		return ReadCSV(f)
	default:
		return nil, eris.Errorf("labels: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadYAML decodes a mapping of code to name:
//
//	11: Open Water
//	21: Developed, Open Space
func ReadYAML(r io.Reader) (Lookup, error) {
	var m map[int]string
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		if err == io.EOF {
			return Lookup{}, nil
		}
		return nil, eris.Wrap(err, "labels: decode yaml")
	}
	return Lookup(m), nil
}

// ReadCSV reads id,name records. A first row whose id is not an integer is
// taken as a header.
func ReadCSV(r io.Reader) (Lookup, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	l := make(Lookup)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return l, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "labels: read csv")
		}
		if len(record) < 2 {
			return nil, eris.Errorf("labels: line %d: want id,name", line)
		}
		id, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, eris.Wrapf(err, "labels: line %d: id", line)
		}
		l[id] = strings.TrimSpace(record[1])
	}
}

// FromLevels converts a raster's attached levels into a Lookup.
func FromLevels(levels raster.Levels) Lookup {
	l := make(Lookup, len(levels))
	for k, v := range levels {
		l[k] = v
	}
	return l
}

// Name returns the label for a table cell holding a category code.
func (l Lookup) Name(v any) (string, bool) {
	var code int
	switch x := v.(type) {
	case int:
		code = x
	case int64:
		code = int(x)
	case float64:
		if math.IsNaN(x) || x != math.Trunc(x) {
			return "", false
		}
		code = int(x)
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return "", false
		}
		code = n
	default:
		return "", false
	}
	name, ok := l[code]
	return name, ok
}

// Annotate inserts a "<column>_label" column right after column. Codes with
// no label get an empty string.
func (l Lookup) Annotate(t *zonal.Table, column string) error {
	idx := t.Index(column)
	if idx < 0 {
		return eris.Errorf("labels: table has no column %q", column)
	}

	t.Columns = slices.Insert(slices.Clone(t.Columns), idx+1, column+"_label")
	for i, row := range t.Rows {
		name, _ := l.Name(row[idx])
		t.Rows[i] = slices.Insert(slices.Clone(row), idx+1, any(name))
	}
	return nil
}
