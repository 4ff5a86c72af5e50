package coverage

import (
	"math"
	"testing"

	cgeom "github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/zonal-cli/internal/raster"
)

// unitGrid is a rows x cols grid of 1x1 cells with its lower-left corner at
// the origin.
func unitGrid(rows, cols int) raster.Geometry {
	return raster.Geometry{OriginX: 0, OriginY: float64(rows), CellWidth: 1, CellHeight: 1, Rows: rows, Cols: cols}
}

func square(x0, y0, x1, y1 float64) []geom.Coord {
	return []geom.Coord{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}
}

func polygon(rings ...[]geom.Coord) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords(rings)
}

func fractions(cells []Cell) map[[2]int]float64 {
	m := make(map[[2]int]float64, len(cells))
	for _, c := range cells {
		m[[2]int{c.Row, c.Col}] = c.Fraction
	}
	return m
}

func total(cells []Cell) float64 {
	var s float64
	for _, c := range cells {
		s += c.Fraction
	}
	return s
}

func TestCoverage_ExactFourCells(t *testing.T) {
	cells, err := Coverage(polygon(square(0, 1, 2, 3)), unitGrid(3, 3), NonZero)
	require.NoError(t, err)

	require.Len(t, cells, 4)
	assert.Equal(t, []Cell{
		{Row: 0, Col: 0, Fraction: 1},
		{Row: 0, Col: 1, Fraction: 1},
		{Row: 1, Col: 0, Fraction: 1},
		{Row: 1, Col: 1, Fraction: 1},
	}, cells)
}

func TestCoverage_PartialCells(t *testing.T) {
	cells, err := Coverage(polygon(square(0.5, 0.5, 2.5, 2.5)), unitGrid(3, 3), NonZero)
	require.NoError(t, err)

	f := fractions(cells)
	require.Len(t, f, 9)
	assert.InDelta(t, 1.0, f[[2]int{1, 1}], 1e-12)
	for _, corner := range [][2]int{{0, 0}, {0, 2}, {2, 0}, {2, 2}} {
		assert.InDelta(t, 0.25, f[corner], 1e-12, "corner %v", corner)
	}
	for _, side := range [][2]int{{0, 1}, {1, 0}, {1, 2}, {2, 1}} {
		assert.InDelta(t, 0.5, f[side], 1e-12, "side %v", side)
	}
	assert.InDelta(t, 4.0, total(cells), 1e-9)
}

func TestCoverage_OrientationIndependent(t *testing.T) {
	cw := []geom.Coord{{0.5, 0.5}, {0.5, 2.5}, {2.5, 2.5}, {2.5, 0.5}, {0.5, 0.5}}
	a, err := Coverage(polygon(cw), unitGrid(3, 3), NonZero)
	require.NoError(t, err)
	b, err := Coverage(polygon(square(0.5, 0.5, 2.5, 2.5)), unitGrid(3, 3), NonZero)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestCoverage_DisjointIsEmpty(t *testing.T) {
	cells, err := Coverage(polygon(square(10, 10, 12, 12)), unitGrid(3, 3), NonZero)
	require.NoError(t, err)
	assert.Empty(t, cells)
}

func TestCoverage_ZeroAreaIsEmpty(t *testing.T) {
	flat := []geom.Coord{{0.5, 0.5}, {1.5, 1.5}, {2.5, 2.5}, {0.5, 0.5}}
	cells, err := Coverage(polygon(flat), unitGrid(3, 3), NonZero)
	require.NoError(t, err)
	assert.Empty(t, cells)
}

func TestCoverage_ClipsToGrid(t *testing.T) {
	cells, err := Coverage(polygon(square(-10, -10, 10, 10)), unitGrid(3, 3), NonZero)
	require.NoError(t, err)
	require.Len(t, cells, 9)
	for _, c := range cells {
		assert.Equal(t, 1.0, c.Fraction)
	}
}

func TestCoverage_Hole(t *testing.T) {
	p := polygon(square(0, 0, 3, 3), square(1, 1, 2, 2))
	cells, err := Coverage(p, unitGrid(3, 3), NonZero)
	require.NoError(t, err)

	f := fractions(cells)
	assert.Len(t, f, 8)
	_, ok := f[[2]int{1, 1}]
	assert.False(t, ok, "hole cell must be omitted")
}

func TestCoverage_PartialHole(t *testing.T) {
	// Hole wound the same way as the shell; normalisation must still subtract it.
	p := polygon(square(0, 0, 3, 3), square(0.5, 0.5, 1.5, 1.5))
	cells, err := Coverage(p, unitGrid(3, 3), NonZero)
	require.NoError(t, err)

	f := fractions(cells)
	for _, rc := range [][2]int{{1, 0}, {1, 1}, {2, 0}, {2, 1}} {
		assert.InDelta(t, 0.75, f[rc], 1e-12, "cell %v", rc)
	}
	assert.InDelta(t, 8.0, total(cells), 1e-9)
}

func TestCoverage_MultiPolygon(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
		{square(0, 0, 1, 1)},
		{square(2, 2, 3, 3)},
	})
	cells, err := Coverage(mp, unitGrid(3, 3), NonZero)
	require.NoError(t, err)
	assert.Equal(t, []Cell{{Row: 0, Col: 2, Fraction: 1}, {Row: 2, Col: 0, Fraction: 1}}, cells)
}

func TestCoverage_AreaConservation(t *testing.T) {
	grid := raster.Geometry{OriginX: 1000, OriginY: 2000, CellWidth: 30, CellHeight: 30, Rows: 40, Cols: 40}
	tri := polygon([]geom.Coord{{1013, 1120}, {1950, 1402}, {1333, 1987}, {1013, 1120}})

	cells, err := Coverage(tri, grid, NonZero)
	require.NoError(t, err)

	got := total(cells) * grid.CellWidth * grid.CellHeight
	assert.InDelta(t, tri.Area(), got, 1e-6*tri.Area())

	for i := 1; i < len(cells); i++ {
		prev, cur := cells[i-1], cells[i]
		assert.True(t, prev.Row < cur.Row || (prev.Row == cur.Row && prev.Col < cur.Col), "row-major order")
	}
}

// clipped is the area of cell (r, c) inside the closed ring coords, computed
// by an independent polygon intersection.
func clipped(grid raster.Geometry, r, c int, coords []geom.Coord) float64 {
	// The clipping library treats contours as implicitly closed.
	shape := make([]cgeom.Point, 0, len(coords)-1)
	for _, p := range coords[:len(coords)-1] {
		shape = append(shape, cgeom.Point{X: p[0], Y: p[1]})
	}
	b := grid.CellBounds(r, c)
	cell := cgeom.Polygon{{
		{X: b.MinX, Y: b.MinY}, {X: b.MaxX, Y: b.MinY},
		{X: b.MaxX, Y: b.MaxY}, {X: b.MinX, Y: b.MaxY},
	}}
	return math.Abs(cell.Intersection(cgeom.Polygon{shape}).Area())
}

// TestCoverage_MatchesPolygonClipping compares every fraction against an
// independent polygon intersection.
func TestCoverage_MatchesPolygonClipping(t *testing.T) {
	grid := unitGrid(4, 5)
	coords := []geom.Coord{{0.2, 0.3}, {4.7, 0.9}, {3.1, 3.8}, {1.4, 2.2}, {0.6, 3.6}, {0.2, 0.3}}

	cells, err := Coverage(polygon(coords), grid, NonZero)
	require.NoError(t, err)
	f := fractions(cells)

	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			want := clipped(grid, r, c, coords)
			assert.InDelta(t, want, f[[2]int{r, c}], 1e-9, "cell %d,%d", r, c)
		}
	}
}

func TestCoverage_EvenOddSimplePolygon(t *testing.T) {
	p := polygon(square(0.5, 0.5, 2.5, 2.5))
	nz, err := Coverage(p, unitGrid(3, 3), NonZero)
	require.NoError(t, err)
	eo, err := Coverage(p, unitGrid(3, 3), EvenOdd)
	require.NoError(t, err)
	assert.Equal(t, nz, eo)
}

func TestCoverage_OverlappingParts(t *testing.T) {
	grid := unitGrid(4, 4)
	a, b := square(0.5, 0.5, 2.5, 2.5), square(1.5, 1.5, 3.5, 3.5)
	overlap := square(1.5, 1.5, 2.5, 2.5)
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{a}, {b}})

	tests := []struct {
		rule  FillRule
		twice float64 // how many times the overlap is removed from a+b
		total float64
	}{
		{NonZero, 1, 7},
		{EvenOdd, 2, 6},
	}
	for _, tt := range tests {
		t.Run(string(tt.rule), func(t *testing.T) {
			cells, err := Coverage(mp, grid, tt.rule)
			require.NoError(t, err)
			f := fractions(cells)

			for r := 0; r < grid.Rows; r++ {
				for c := 0; c < grid.Cols; c++ {
					want := clipped(grid, r, c, a) + clipped(grid, r, c, b) - tt.twice*clipped(grid, r, c, overlap)
					assert.InDelta(t, want, f[[2]int{r, c}], 1e-9, "cell %d,%d", r, c)
				}
			}
			assert.InDelta(t, tt.total, total(cells), 1e-9)
		})
	}
}

func TestCoverage_BowTie(t *testing.T) {
	grid := unitGrid(4, 4)
	// The ring crosses itself at (1.8, 1.8), inside cell (2, 1), so its two
	// lobes wind in opposite directions within one cell.
	bowTie := polygon([]geom.Coord{{0.3, 0.3}, {3.3, 3.3}, {3.3, 0.3}, {0.3, 3.3}, {0.3, 0.3}})
	left := []geom.Coord{{0.3, 0.3}, {1.8, 1.8}, {0.3, 3.3}, {0.3, 0.3}}
	right := []geom.Coord{{3.3, 0.3}, {3.3, 3.3}, {1.8, 1.8}, {3.3, 0.3}}

	for _, rule := range []FillRule{NonZero, EvenOdd} {
		t.Run(string(rule), func(t *testing.T) {
			cells, err := Coverage(bowTie, grid, rule)
			require.NoError(t, err)
			f := fractions(cells)

			for r := 0; r < grid.Rows; r++ {
				for c := 0; c < grid.Cols; c++ {
					want := clipped(grid, r, c, left) + clipped(grid, r, c, right)
					assert.InDelta(t, want, f[[2]int{r, c}], 1e-9, "cell %d,%d", r, c)
				}
			}
			assert.InDelta(t, 4.5, total(cells), 1e-9)
		})
	}
}

func TestCoverage_NestedShellsEvenOdd(t *testing.T) {
	// A part inside another part: even-odd leaves a hole, nonzero fills it.
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
		{square(0.5, 0.5, 3.5, 3.5)},
		{square(1.25, 1.25, 2.75, 2.75)},
	})
	eo, err := Coverage(mp, unitGrid(4, 4), EvenOdd)
	require.NoError(t, err)
	assert.InDelta(t, 9-2.25, total(eo), 1e-9)

	nz, err := Coverage(mp, unitGrid(4, 4), NonZero)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, total(nz), 1e-9)
}

func TestSimple(t *testing.T) {
	ringsOf := func(g geom.T) []ring {
		rs, err := polygonRings(g)
		require.NoError(t, err)
		return rs
	}

	tests := []struct {
		name string
		g    geom.T
		want bool
	}{
		{"square", polygon(square(0, 0, 2, 2)), true},
		{"hole", polygon(square(0, 0, 3, 3), square(1, 1, 2, 2)), true},
		{"disjoint parts", geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
			{square(0, 0, 1, 1)}, {square(2, 2, 3, 3)},
		}), true},
		{"repeated vertex", polygon([]geom.Coord{{0, 0}, {2, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}), true},
		{"overlapping parts", geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
			{square(0, 0, 2, 2)}, {square(1, 1, 3, 3)},
		}), false},
		{"bow tie", polygon([]geom.Coord{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}), false},
		{"hole touches shell", polygon(square(0, 0, 3, 3), []geom.Coord{{0, 1}, {1, 1}, {1, 2}, {0, 1}}), false},
		{"hole outside shell", polygon(square(0, 0, 1, 1), square(2, 2, 3, 3)), false},
		{"overlapping holes", polygon(square(0, 0, 4, 4), square(1, 1, 2.5, 2.5), square(2, 2, 3, 3)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, simple(ringsOf(tt.g)))
		})
	}
}

func TestCoverage_Malformed(t *testing.T) {
	grid := unitGrid(3, 3)

	tests := []struct {
		name string
		g    geom.T
		want error
	}{
		{"nil", nil, ErrEmptyGeometry},
		{"empty polygon", geom.NewPolygon(geom.XY), ErrEmptyGeometry},
		{"point", geom.NewPointFlat(geom.XY, []float64{1, 1}), ErrUnsupportedGeometry},
		{"short ring", polygon([]geom.Coord{{0, 0}, {1, 0}, {0, 0}}), ErrMalformedGeometry},
		{"open ring", polygon([]geom.Coord{{0, 0}, {1, 0}, {1, 1}, {0, 1}}), ErrMalformedGeometry},
		{"nan", polygon([]geom.Coord{{0, 0}, {math.NaN(), 0}, {1, 1}, {0, 0}}), ErrMalformedGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coverage(tt.g, grid, NonZero)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRasterize_InvalidGrid(t *testing.T) {
	err := Rasterize(polygon(square(0, 0, 1, 1)), raster.Geometry{}, NonZero, func(int, int, float64) {})
	assert.Error(t, err)
}
