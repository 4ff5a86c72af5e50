package zonal

import (
	"math"
	"slices"

	geom "github.com/twpayne/go-geom"

	"github.com/sells-group/zonal-cli/internal/coverage"
	"github.com/sells-group/zonal-cli/internal/raster"
)

// Row column names, as used by Rows.Table.
const (
	ColValue    = "value"
	ColCoverage = "coverage_fraction"
	ColWeight   = "weight"
	ColArea     = "area"
	ColRow      = "row"
	ColCol      = "col"
	ColX        = "x"
	ColY        = "y"
)

// Rows holds the covered cells of one feature as parallel arrays. Optional
// arrays are nil unless requested.
type Rows struct {
	Values   []float64
	Coverage []float64
	Weights  []float64
	Area     []float64
	Row      []int
	Col      []int
	X        []float64
	Y        []float64
}

// Len returns the number of covered cells.
func (r *Rows) Len() int {
	return len(r.Values)
}

// Clone returns a deep copy of r.
func (r *Rows) Clone() *Rows {
	return &Rows{
		Values:   slices.Clone(r.Values),
		Coverage: slices.Clone(r.Coverage),
		Weights:  slices.Clone(r.Weights),
		Area:     slices.Clone(r.Area),
		Row:      slices.Clone(r.Row),
		Col:      slices.Clone(r.Col),
		X:        slices.Clone(r.X),
		Y:        slices.Clone(r.Y),
	}
}

// Table returns the rows as one combined table.
func (r *Rows) Table() *Table {
	cols := []string{ColValue, ColCoverage}
	if r.Weights != nil {
		cols = append(cols, ColWeight)
	}
	if r.Area != nil {
		cols = append(cols, ColArea)
	}
	if r.Row != nil {
		cols = append(cols, ColRow, ColCol)
	}
	if r.X != nil {
		cols = append(cols, ColX, ColY)
	}

	t := NewTable(cols...)
	t.Rows = make([][]any, r.Len())
	for i := range r.Values {
		row := make([]any, 0, len(cols))
		row = append(row, r.Values[i], r.Coverage[i])
		if r.Weights != nil {
			row = append(row, r.Weights[i])
		}
		if r.Area != nil {
			row = append(row, r.Area[i])
		}
		if r.Row != nil {
			row = append(row, r.Row[i], r.Col[i])
		}
		if r.X != nil {
			row = append(row, r.X[i], r.Y[i])
		}
		t.Rows[i] = row
	}
	return t
}

// weight returns the effective weight of row i: coverage times the weight
// raster value, or coverage alone without a weight raster.
func (r *Rows) weight(i int) float64 {
	if r.Weights == nil {
		return r.Coverage[i]
	}
	return r.Coverage[i] * r.Weights[i]
}

// assembler turns one feature geometry into Rows. It only reads the layers.
type assembler struct {
	layer   raster.Layer
	weights raster.Layer
	grid    raster.Geometry
	opts    *Options
}

func newAssembler(layer raster.Layer, opts *Options) *assembler {
	return &assembler{
		layer:   layer,
		weights: opts.Weights,
		grid:    layer.Geometry(),
		opts:    opts,
	}
}

// rows rasterizes g and gathers the requested columns for every covered cell.
func (a *assembler) rows(g geom.T) (*Rows, error) {
	r := &Rows{}
	if a.weights != nil {
		r.Weights = []float64{}
	}
	if a.opts.CoverageArea {
		r.Area = []float64{}
	}
	if a.opts.IncludeCell {
		r.Row, r.Col = []int{}, []int{}
	}
	if a.opts.IncludeXY {
		r.X, r.Y = []float64{}, []float64{}
	}

	err := coverage.Rasterize(g, a.grid, a.opts.FillRule, func(row, col int, frac float64) {
		v := a.layer.At(row, col)
		if raster.IsNoData(a.layer, v) {
			if !a.opts.IncludeNoData {
				return
			}
			v = math.NaN()
		}

		var w float64
		if a.weights != nil {
			w = a.weights.At(row, col)
			if raster.IsNoData(a.weights, w) {
				return
			}
		}

		r.Values = append(r.Values, v)
		r.Coverage = append(r.Coverage, frac)
		if a.weights != nil {
			r.Weights = append(r.Weights, w)
		}
		if a.opts.CoverageArea {
			r.Area = append(r.Area, a.grid.CellArea(row, a.opts.AreaMethod))
		}
		if a.opts.IncludeCell {
			r.Row = append(r.Row, row)
			r.Col = append(r.Col, col)
		}
		if a.opts.IncludeXY {
			x, y := a.grid.CellCenter(row, col)
			r.X = append(r.X, x)
			r.Y = append(r.Y, y)
		}
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
