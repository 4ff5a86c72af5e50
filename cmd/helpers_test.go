package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/zonal-cli/internal/config"
)

// 3x3 grid over (0,0)-(3,3). Zone "a" covers the top-left 2x2 block of ones,
// zone "b" the right column (2, 2, nodata).
const testGrid = `ncols 3
nrows 3
xllcorner 0
yllcorner 0
cellsize 1
NODATA_value -9999
1 1 2
1 1 2
3 3 -9999
`

const testZones = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Polygon","coordinates":[[[0,1],[2,1],[2,3],[0,3],[0,1]]]}},
{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"Polygon","coordinates":[[[2,0],[3,0],[3,3],[2,3],[2,0]]]}}
]}`

const malformedZone = `{"type":"Feature","properties":{"name":"c"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1]]]}}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeFixtures writes the test grid and zones and returns their paths.
func writeFixtures(t *testing.T) (rasterPath, zonesPath string) {
	t.Helper()
	dir := t.TempDir()
	return writeFile(t, dir, "grid.asc", testGrid), writeFile(t, dir, "zones.geojson", testZones)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Summarize: config.SummarizeConfig{
			ErrorPolicy: "strict",
			AreaMethod:  "auto",
			FillRule:    "nonzero",
		},
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "zonal.db"),
			Table:       "zonal_results",
		},
		Server: config.ServerConfig{Port: 8080, MaxBodyMB: 1, CORSOrigins: []string{"*"}},
		Log:    config.LogConfig{Level: "info", Format: "json"},
	}
}
