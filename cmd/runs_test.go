package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zonal-cli/internal/config"
	"github.com/sells-group/zonal-cli/internal/store"
)

// storeRun summarizes the fixtures into the sqlite store of c and returns
// the csv that summarize printed.
func storeRun(t *testing.T, c *config.Config, table string) string {
	t.Helper()
	rasterPath, zonesPath := writeFixtures(t)
	var buf bytes.Buffer
	require.NoError(t, runSummarize(context.Background(), &buf, c, summarizeFlags{
		raster:      rasterPath,
		features:    zonesPath,
		stats:       []string{"mean"},
		includeCols: []string{"name"},
		format:      "csv",
		store:       "sqlite",
		storeTable:  table,
	}))
	return buf.String()
}

func TestListRuns(t *testing.T) {
	c := testConfig(t)
	storeRun(t, c, "landcover")
	storeRun(t, c, "elevation")

	var buf bytes.Buffer
	require.NoError(t, listRuns(context.Background(), &buf, c.Store, ""))
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "landcover")
	assert.Contains(t, out, "elevation")
	assert.Contains(t, out, "name,mean")

	buf.Reset()
	require.NoError(t, listRuns(context.Background(), &buf, c.Store, "elevation"))
	assert.Contains(t, buf.String(), "elevation")
	assert.NotContains(t, buf.String(), "landcover")
}

func TestListRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listRuns(context.Background(), &buf, testConfig(t).Store, ""))
	assert.Equal(t, "No runs found.\n", buf.String())
}

func TestShowRun(t *testing.T) {
	c := testConfig(t)
	want := storeRun(t, c, "landcover")

	st, err := store.NewSQLite(c.Store.DatabaseURL)
	require.NoError(t, err)
	runs, err := st.ListRuns(context.Background(), "landcover")
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, runs, 1)

	var buf bytes.Buffer
	require.NoError(t, showRun(context.Background(), &buf, c.Store, runs[0].ID, "csv"))
	assert.Equal(t, want, buf.String())
}

func TestShowRun_Errors(t *testing.T) {
	c := testConfig(t)
	storeRun(t, c, "landcover")

	tests := []struct {
		name   string
		modify func(*config.StoreConfig)
		runID  string
		format string
		want   string
	}{
		{"unknown run", func(*config.StoreConfig) {}, "nope", "csv", "run not found"},
		{"bad format", func(*config.StoreConfig) {}, "nope", "parquet", "unknown format"},
		{"postgres driver", func(sc *config.StoreConfig) { sc.Driver = "postgres" }, "nope", "csv", "no readable run history"},
		{"no database", func(sc *config.StoreConfig) { sc.DatabaseURL = "" }, "nope", "csv", "database_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := c.Store
			tt.modify(&sc)
			err := showRun(context.Background(), &bytes.Buffer{}, sc, tt.runID, tt.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunsCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])
	assert.NotNil(t, runsListCmd.Flags().Lookup("table"))
	assert.Equal(t, "text", runsShowCmd.Flags().Lookup("format").DefValue)
}
