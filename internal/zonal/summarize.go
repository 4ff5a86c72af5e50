// Package zonal computes per-polygon statistics over raster cells, weighting
// each cell by the exact fraction of its area the polygon covers.
//
// A call runs in three stages per feature: coverage rasterizes the polygon
// against the primary grid, the assembler gathers the covered cells into
// Rows, and the operations reduce those rows to a scalar or a table
// fragment. Features are processed concurrently and merged back in input
// order.
package zonal

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/zonal-cli/internal/feature"
	"github.com/sells-group/zonal-cli/internal/raster"
)

// Output is the merged result of a Summarize call.
type Output struct {
	// Table has one row per feature for scalar operations, or the
	// concatenated fragments of a table operation. Include columns come
	// first.
	Table *Table
	// Values[i][j] is operation j for feature i. Nil for table operations.
	Values [][]float64
	// Errors holds per-feature failures skipped under the lenient policy,
	// in feature order.
	Errors []error
	// Features is the number of input features.
	Features int
}

// Succeeded returns the number of features that were summarized.
func (o *Output) Succeeded() int {
	return o.Features - len(o.Errors)
}

type featureResult struct {
	values []float64
	table  *Table
	err    error
}

// Summarize applies ops to every feature against layer. Scalar operations
// produce one output row per feature in input order; a table operation
// concatenates its fragments in feature order.
func Summarize(ctx context.Context, layer raster.Layer, features []feature.Feature, opts Options, ops ...Operation) (*Output, error) {
	if err := opts.validate(layer, ops); err != nil {
		return nil, err
	}

	start := time.Now()
	asm := newAssembler(layer, &opts)
	results := make([]featureResult, len(features))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	var mu sync.Mutex
	var done int
	for i, f := range features {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			res, err := process(asm, i, f, ops, opts.SummarizeAsTable)
			if err != nil {
				if opts.ErrorPolicy == Strict || !isFeatureError(err) {
					return err
				}
				zap.L().Warn("zonal: feature skipped",
					zap.Int("feature", i),
					zap.Error(err),
				)
				res = featureResult{err: err}
			}
			results[i] = res

			if opts.Progress != nil {
				mu.Lock()
				done++
				opts.Progress(done, len(features))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, err := merge(features, results, ops, opts.IncludeCols)
	if err != nil {
		return nil, err
	}

	zap.L().Info("zonal: summarize complete",
		zap.Int("features", out.Features),
		zap.Int("succeeded", out.Succeeded()),
		zap.Int("failed", len(out.Errors)),
		zap.Int("rows", out.Table.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// process runs every operation for one feature. Rows live only for the
// duration of this call.
func process(asm *assembler, i int, f feature.Feature, ops []Operation, asTable bool) (featureResult, error) {
	rows, err := asm.rows(f.Geometry)
	if err != nil {
		return featureResult{}, &GeometryError{Feature: i, Err: err}
	}

	var res featureResult
	for _, op := range ops {
		r, err := op.apply(i, rows, asTable)
		if err != nil {
			return featureResult{}, err
		}
		if op.IsTable() {
			res.table = r.table
			continue
		}
		res.values = append(res.values, r.value)
	}
	return res, nil
}

func passthrough(f feature.Feature, cols []string) []any {
	vals := make([]any, len(cols))
	for j, c := range cols {
		vals[j], _ = f.Get(c)
	}
	return vals
}

// merge assembles per-feature results in feature order.
func merge(features []feature.Feature, results []featureResult, ops []Operation, include []string) (*Output, error) {
	out := &Output{Features: len(features)}
	for _, r := range results {
		if r.err != nil {
			out.Errors = append(out.Errors, r.err)
		}
	}

	if len(ops) == 1 && ops[0].IsTable() {
		return mergeTables(out, features, results, include)
	}

	cols := slices.Clone(include)
	for _, op := range ops {
		cols = append(cols, op.Name())
	}
	out.Table = NewTable(cols...)
	out.Values = make([][]float64, len(results))
	for i, r := range results {
		vals := r.values
		if r.err != nil {
			vals = make([]float64, len(ops))
			for j := range vals {
				vals[j] = math.NaN()
			}
		}
		out.Values[i] = vals

		row := passthrough(features[i], include)
		for _, v := range vals {
			row = append(row, v)
		}
		out.Table.Rows = append(out.Table.Rows, row)
	}
	return out, nil
}

func mergeTables(out *Output, features []feature.Feature, results []featureResult, include []string) (*Output, error) {
	var schema *Table
	out.Table = NewTable(slices.Clone(include)...)
	for i, r := range results {
		if r.err != nil || r.table == nil {
			continue
		}
		if schema == nil {
			schema = r.table
			out.Table.Columns = append(out.Table.Columns, schema.Columns...)
		} else if !schema.SameColumns(r.table) {
			return nil, &SchemaMismatchError{Feature: i, Want: schema.Columns, Got: r.table.Columns}
		}

		pass := passthrough(features[i], include)
		for _, row := range r.table.Rows {
			out.Table.Rows = append(out.Table.Rows, append(slices.Clone(pass), row...))
		}
	}
	return out, nil
}
