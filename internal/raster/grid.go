package raster

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Layer is a read-only grid of cell values. Implementations must be safe for
// concurrent reads.
type Layer interface {
	Geometry() Geometry
	At(row, col int) float64
	NoData() (float64, bool)
}

// Levels maps category codes to human-readable labels. It is carried for
// presentation only.
type Levels map[int]string

// Grid is an in-memory Layer backed by a row-major value slice.
type Grid struct {
	geom      Geometry
	values    []float64
	nodata    float64
	hasNoData bool
	levels    Levels
}

// GridOption configures a Grid.
type GridOption func(*Grid)

// WithNoData declares the no-data sentinel for the grid.
func WithNoData(v float64) GridOption {
	return func(g *Grid) {
		g.nodata = v
		g.hasNoData = true
	}
}

// WithLevels attaches a category label table.
func WithLevels(l Levels) GridOption {
	return func(g *Grid) {
		g.levels = l
	}
}

// NewGrid creates a Grid. len(values) must equal Rows*Cols.
func NewGrid(geom Geometry, values []float64, opts ...GridOption) (*Grid, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if len(values) != geom.Rows*geom.Cols {
		return nil, eris.Errorf("raster: got %d values for %dx%d grid", len(values), geom.Rows, geom.Cols)
	}
	g := &Grid{geom: geom, values: values}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Geometry implements Layer.
func (g *Grid) Geometry() Geometry { return g.geom }

// At implements Layer. Out-of-range addresses return NaN.
func (g *Grid) At(row, col int) float64 {
	if !g.geom.Contains(row, col) {
		return math.NaN()
	}
	return g.values[row*g.geom.Cols+col]
}

// NoData implements Layer.
func (g *Grid) NoData() (float64, bool) { return g.nodata, g.hasNoData }

// Levels returns the attached label table, if any.
func (g *Grid) Levels() Levels { return g.levels }

// IsNoData reports whether v is the layer's no-data sentinel or NaN.
func IsNoData(l Layer, v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	nd, ok := l.NoData()
	return ok && v == nd
}

// Histogram counts the cells holding each distinct valid value.
func Histogram(l Layer) map[float64]int {
	g := l.Geometry()
	h := make(map[float64]int)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := l.At(r, c)
			if IsNoData(l, v) {
				continue
			}
			h[v]++
		}
	}
	return h
}

// SortedKeys returns the keys of a histogram in ascending order.
func SortedKeys(h map[float64]int) []float64 {
	keys := make([]float64, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	return keys
}
