package labels

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zonal-cli/internal/raster"
	"github.com/sells-group/zonal-cli/internal/zonal"
)

func TestReadYAML(t *testing.T) {
	l, err := ReadYAML(strings.NewReader("11: Open Water\n21: \"Developed, Open Space\"\n"))
	require.NoError(t, err)
	assert.Equal(t, Lookup{11: "Open Water", 21: "Developed, Open Space"}, l)

	l, err = ReadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, l)

	_, err = ReadYAML(strings.NewReader("forest: 1\n"))
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	l, err := ReadCSV(strings.NewReader("id,name\n41, Deciduous Forest\n42,Evergreen Forest\n"))
	require.NoError(t, err)
	assert.Equal(t, Lookup{41: "Deciduous Forest", 42: "Evergreen Forest"}, l)

	l, err = ReadCSV(strings.NewReader("1,Water\n"))
	require.NoError(t, err)
	assert.Equal(t, "Water", l[1])

	_, err = ReadCSV(strings.NewReader("1,Water\nx,Bad\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadCSV(strings.NewReader("1\n"))
	assert.ErrorContains(t, err, "want id,name")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "nlcd.yml")
	require.NoError(t, os.WriteFile(yml, []byte("1: Water\n"), 0o644))
	l, err := Load(yml)
	require.NoError(t, err)
	assert.Equal(t, "Water", l[1])

	csvPath := filepath.Join(dir, "nlcd.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("2,Ice\n"), 0o644))
	l, err = Load(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "Ice", l[2])

	txt := filepath.Join(dir, "nlcd.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = Load(txt)
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	l := Lookup{1: "Water", 2: "Ice"}
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{1, "Water", true},
		{int64(2), "Ice", true},
		{2.0, "Ice", true},
		{"1", "Water", true},
		{1.5, "", false},
		{math.NaN(), "", false},
		{3, "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		got, ok := l.Name(tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
	}
}

func TestAnnotate(t *testing.T) {
	tbl := zonal.NewTable("zone", "value", "frac")
	require.NoError(t, tbl.AddRow("a", 1.0, 0.75))
	require.NoError(t, tbl.AddRow("a", 9.0, 0.25))

	l := Lookup{1: "Water"}
	require.NoError(t, l.Annotate(tbl, "value"))

	assert.Equal(t, []string{"zone", "value", "value_label", "frac"}, tbl.Columns)
	assert.Equal(t, []any{"a", 1.0, "Water", 0.75}, tbl.Rows[0])
	assert.Equal(t, []any{"a", 9.0, "", 0.25}, tbl.Rows[1])

	assert.ErrorContains(t, l.Annotate(tbl, "missing"), "no column")
}

func TestFromLevels(t *testing.T) {
	l := FromLevels(raster.Levels{3: "Shrub"})
	assert.Equal(t, Lookup{3: "Shrub"}, l)
}
