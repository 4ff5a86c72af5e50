package zonal

import (
	"runtime"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zonal-cli/internal/coverage"
	"github.com/sells-group/zonal-cli/internal/raster"
)

// ErrorPolicy decides what happens when one feature fails.
type ErrorPolicy string

// Error policies.
const (
	// Strict aborts the call on the first per-feature error.
	Strict ErrorPolicy = "strict"
	// Lenient records the error, skips the feature, and keeps going.
	Lenient ErrorPolicy = "lenient"
)

// Options configures a Summarize call. The zero value summarizes the primary
// raster alone with the strict policy and one worker per CPU.
type Options struct {
	// Weights is an optional second raster sharing the primary grid.
	Weights raster.Layer
	// CoverageArea adds per-cell area to the rows.
	CoverageArea bool
	// AreaMethod picks planar or spherical cell area.
	AreaMethod raster.AreaMethod
	// IncludeCols names feature attributes copied into every output row.
	IncludeCols []string
	// IncludeXY adds cell-center coordinates to the rows.
	IncludeXY bool
	// IncludeCell adds row and column indexes to the rows.
	IncludeCell bool
	// IncludeNoData keeps cells holding the no-data sentinel (as NaN).
	IncludeNoData bool
	// SummarizeAsTable hands user functions a combined *Table instead of
	// column arrays.
	SummarizeAsTable bool
	ErrorPolicy      ErrorPolicy
	Workers          int
	FillRule         coverage.FillRule
	// Progress, if set, is called after each feature. Calls are serialized.
	Progress func(done, total int)
}

// validate fills defaults and checks the options against the primary layer
// and the requested operations.
func (o *Options) validate(layer raster.Layer, ops []Operation) error {
	if layer == nil {
		return eris.New("zonal: primary raster is required")
	}
	if err := layer.Geometry().Validate(); err != nil {
		return eris.Wrap(err, "zonal: primary raster")
	}
	if len(ops) == 0 {
		return eris.New("zonal: at least one operation is required")
	}

	switch o.ErrorPolicy {
	case "":
		o.ErrorPolicy = Strict
	case Strict, Lenient:
	default:
		return eris.Errorf("zonal: unknown error policy %q", o.ErrorPolicy)
	}
	switch o.FillRule {
	case "":
		o.FillRule = coverage.NonZero
	case coverage.NonZero, coverage.EvenOdd:
	default:
		return eris.Errorf("zonal: unknown fill rule %q", o.FillRule)
	}
	switch o.AreaMethod {
	case "":
		o.AreaMethod = raster.AreaAuto
	case raster.AreaAuto, raster.AreaCartesian, raster.AreaSpherical:
	default:
		return eris.Errorf("zonal: unknown area method %q", o.AreaMethod)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}

	if o.Weights != nil {
		if err := layer.Geometry().Aligned(o.Weights.Geometry()); err != nil {
			return &GridMismatchError{Layer: "weight", Err: err}
		}
	}

	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if op.IsTable() && len(ops) > 1 {
			return eris.Errorf("zonal: table operation %s must be the only operation", op.Name())
		}
		if seen[op.Name()] {
			return eris.Errorf("zonal: duplicate operation %s", op.Name())
		}
		seen[op.Name()] = true

		if op.kind != kindBuiltin {
			continue
		}
		if op.stat.needsWeights() && o.Weights == nil {
			return eris.Errorf("zonal: %s requires a weight raster", op.stat)
		}
		if op.stat == StatCoverageArea {
			o.CoverageArea = true
		}
	}
	for _, col := range o.IncludeCols {
		if seen[col] {
			return eris.Errorf("zonal: include column %s collides with an operation name", col)
		}
	}
	return nil
}
