package main

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/zonal-cli/internal/config"
	"github.com/sells-group/zonal-cli/internal/coverage"
	"github.com/sells-group/zonal-cli/internal/export"
	"github.com/sells-group/zonal-cli/internal/feature"
	"github.com/sells-group/zonal-cli/internal/labels"
	"github.com/sells-group/zonal-cli/internal/raster"
	"github.com/sells-group/zonal-cli/internal/store"
	"github.com/sells-group/zonal-cli/internal/zonal"
)

const postgisPrefix = "postgis:"

type summarizeFlags struct {
	raster        string
	features      string
	stats         []string
	weights       string
	coverageArea  bool
	includeCols   []string
	includeXY     bool
	includeCell   bool
	includeNoData bool
	strict        bool
	lenient       bool
	workers       int
	labels        string
	labelColumn   string
	format        string
	output        string
	store         string
	storeTable    string
	orderBy       string
}

var sumFlags summarizeFlags

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a raster over polygon features",
	Long: `Computes statistics of a raster over each feature of a shapefile, a
GeoJSON file, or a PostGIS table (--features postgis:schema.table).

Examples:
  zonal-cli summarize --raster landcover.tif --features counties.shp --stat mode --stat variety
  zonal-cli summarize --raster pop.asc --features zones.geojson --stat sum --include-cols name --format csv
  zonal-cli summarize --raster lc.tif --features zones.geojson --stat frac --labels classes.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSummarize(cmd.Context(), cmd.OutOrStdout(), cfg, sumFlags)
	},
}

func runSummarize(ctx context.Context, w io.Writer, c *config.Config, f summarizeFlags) error {
	if f.strict && f.lenient {
		return eris.New("--strict and --lenient are mutually exclusive")
	}
	if err := c.Validate("summarize"); err != nil {
		return err
	}

	ops, err := zonal.ParseOperations(f.stats)
	if err != nil {
		return err
	}

	layer, err := raster.Open(f.raster)
	if err != nil {
		return err
	}

	opts := summarizeOptions(c.Summarize)
	opts.CoverageArea = f.coverageArea
	opts.IncludeCols = f.includeCols
	opts.IncludeXY = f.includeXY
	opts.IncludeCell = f.includeCell
	opts.IncludeNoData = opts.IncludeNoData || f.includeNoData
	if f.workers > 0 {
		opts.Workers = f.workers
	}
	switch {
	case f.strict:
		opts.ErrorPolicy = zonal.Strict
	case f.lenient:
		opts.ErrorPolicy = zonal.Lenient
	}
	if f.weights != "" {
		wl, err := raster.Open(f.weights)
		if err != nil {
			return err
		}
		opts.Weights = wl
	}

	src, closeSrc, err := featureSource(ctx, c.Store, f)
	if err != nil {
		return err
	}
	defer closeSrc()

	features, err := src.Features(ctx)
	if err != nil {
		return err
	}

	progress := rate.Sometimes{Interval: 2 * time.Second}
	opts.Progress = func(done, total int) {
		progress.Do(func() {
			zap.L().Info("summarize: progress",
				zap.Int("done", done),
				zap.Int("total", total),
			)
		})
	}

	start := time.Now()
	out, err := zonal.Summarize(ctx, layer, features, opts, ops...)
	if err != nil {
		return eris.Wrap(err, "summarize")
	}
	if len(out.Errors) > 0 {
		zap.L().Warn("summarize: some features were skipped",
			zap.Int("skipped", len(out.Errors)),
			zap.Int("succeeded", out.Succeeded()),
		)
	}

	if err := annotate(out.Table, layer, f); err != nil {
		return err
	}

	if err := writeResult(w, out.Table, f); err != nil {
		return err
	}

	if f.store != "" {
		sc := c.Store
		sc.Driver = strings.ToLower(f.store)
		if f.storeTable != "" {
			sc.Table = f.storeTable
		}
		if err := (&config.Config{Summarize: c.Summarize, Store: sc}).Validate("store"); err != nil {
			return err
		}
		runID, err := saveResult(ctx, sc, out.Table)
		if err != nil {
			return err
		}
		zap.L().Info("summarize: stored",
			zap.String("run_id", runID),
			zap.String("table", sc.Table),
		)
	}

	zap.L().Info("summarize: done",
		zap.Int("features", out.Features),
		zap.Int("rows", out.Table.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// summarizeOptions maps config defaults onto engine options.
func summarizeOptions(sc config.SummarizeConfig) zonal.Options {
	return zonal.Options{
		Workers:       sc.Workers,
		ErrorPolicy:   zonal.ErrorPolicy(strings.ToLower(sc.ErrorPolicy)),
		IncludeNoData: sc.IncludeNoData,
		AreaMethod:    raster.AreaMethod(strings.ToLower(sc.AreaMethod)),
		FillRule:      coverage.FillRule(strings.ToLower(sc.FillRule)),
	}
}

// featureSource resolves --features to a file or a PostGIS table. The
// returned func releases any database connection.
func featureSource(ctx context.Context, sc config.StoreConfig, f summarizeFlags) (feature.Source, func(), error) {
	if f.features == "" {
		return nil, nil, eris.New("--features is required")
	}
	table, ok := strings.CutPrefix(f.features, postgisPrefix)
	if !ok {
		return feature.FileSource{Path: f.features}, func() {}, nil
	}
	if sc.DatabaseURL == "" {
		return nil, nil, eris.New("store.database_url is required for postgis features")
	}
	pg, err := store.NewPostgres(ctx, sc.DatabaseURL, nil)
	if err != nil {
		return nil, nil, err
	}
	src := &store.PostGISSource{
		Pool:    pg.Pool(),
		Table:   table,
		Columns: f.includeCols,
		OrderBy: f.orderBy,
	}
	return src, func() { _ = pg.Close() }, nil
}

// annotate adds label columns from a labels file, or from the raster's own
// levels when no file is given.
func annotate(t *zonal.Table, layer *raster.Grid, f summarizeFlags) error {
	var lookup labels.Lookup
	if f.labels != "" {
		l, err := labels.Load(f.labels)
		if err != nil {
			return err
		}
		lookup = l
	} else if lv := layer.Levels(); len(lv) > 0 {
		lookup = labels.FromLevels(lv)
	}
	if len(lookup) == 0 {
		return nil
	}

	column := f.labelColumn
	if column == "" {
		column = defaultLabelColumn(t)
	}
	if column == "" {
		return nil
	}
	return lookup.Annotate(t, column)
}

// defaultLabelColumn picks the first categorical column of t.
func defaultLabelColumn(t *zonal.Table) string {
	for _, c := range []string{zonal.ColValue, string(zonal.StatMode), string(zonal.StatMajority), string(zonal.StatMinority)} {
		if t.Index(c) >= 0 {
			return c
		}
	}
	return ""
}

func writeResult(w io.Writer, t *zonal.Table, f summarizeFlags) error {
	name := f.format
	if name == "" {
		name = formatFromPath(f.output)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		return err
	}
	if f.output == "" {
		return export.Write(w, format, t)
	}
	if err := export.WriteFile(f.output, format, t); err != nil {
		return err
	}
	zap.L().Info("summarize: wrote output", zap.String("path", f.output), zap.String("format", string(format)))
	return nil
}

func formatFromPath(path string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "csv", "json", "xlsx":
		return ext
	}
	return string(export.Text)
}

func saveResult(ctx context.Context, sc config.StoreConfig, t *zonal.Table) (string, error) {
	sink, err := store.Open(ctx, sc)
	if err != nil {
		return "", err
	}
	defer sink.Close() //nolint:errcheck
	return sink.Save(ctx, sc.Table, t)
}

func init() {
	fl := summarizeCmd.Flags()
	fl.StringVar(&sumFlags.raster, "raster", "", "primary raster (.asc or .tif, required)")
	fl.StringVar(&sumFlags.features, "features", "", "features file (.shp, .geojson) or postgis:<table> (required)")
	fl.StringArrayVar(&sumFlags.stats, "stat", nil, "statistic to compute; repeatable (e.g. mean, mode, quantile(0.9), frac)")
	fl.StringVar(&sumFlags.weights, "weights", "", "weight raster on the same grid")
	fl.BoolVar(&sumFlags.coverageArea, "coverage-area", false, "add per-cell area to the rows")
	fl.StringSliceVar(&sumFlags.includeCols, "include-cols", nil, "feature attributes copied into each output row")
	fl.BoolVar(&sumFlags.includeXY, "include-xy", false, "add cell-center coordinates to the rows")
	fl.BoolVar(&sumFlags.includeCell, "include-cell", false, "add row and column indexes to the rows")
	fl.BoolVar(&sumFlags.includeNoData, "include-nodata", false, "keep no-data cells (as NaN)")
	fl.BoolVar(&sumFlags.strict, "strict", false, "abort on the first feature error")
	fl.BoolVar(&sumFlags.lenient, "lenient", false, "skip features that fail and keep going")
	fl.IntVar(&sumFlags.workers, "workers", 0, "concurrent features (default from config, then CPU count)")
	fl.StringVar(&sumFlags.labels, "labels", "", "class labels file (.yaml or .csv)")
	fl.StringVar(&sumFlags.labelColumn, "label-column", "", "column to label (default value, mode, or minority)")
	fl.StringVar(&sumFlags.format, "format", "", "output format: csv, json, xlsx, text (default from --output, else text)")
	fl.StringVarP(&sumFlags.output, "output", "o", "", "output file (default stdout)")
	fl.StringVar(&sumFlags.store, "store", "", "also save results to sqlite or postgres")
	fl.StringVar(&sumFlags.storeTable, "store-table", "", "result table name (default from config)")
	fl.StringVar(&sumFlags.orderBy, "order-by", "", "postgis column to order features by")
	_ = summarizeCmd.MarkFlagRequired("raster")
	_ = summarizeCmd.MarkFlagRequired("features")
	_ = summarizeCmd.MarkFlagRequired("stat")
	rootCmd.AddCommand(summarizeCmd)
}
