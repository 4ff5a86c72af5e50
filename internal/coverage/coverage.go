// Package coverage computes the exact fraction of each raster cell covered by
// a polygon.
//
// Polygon edges are accumulated per cell as signed "cover" (the vertical
// extent of the edge inside the cell's row) and "area" (the part of that
// extent lying right of the edge inside the cell). Integrating a row from
// left to right gives the covered area of every cell. For straight edges the
// trapezoid rule used here is exact, so fractions match true polygon/cell
// intersection areas up to floating point error.
//
// Plain accumulation is only exact while every point has winding 0 or 1.
// Geometries whose rings touch, cross or overlap are swept instead: each row
// is split at vertices and crossings into bands where the edge order is
// fixed, and only the edges where the fill rule switches are accumulated.
package coverage

import (
	"math"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/zonal-cli/internal/raster"
)

// Epsilon is the tolerance below which a fraction is treated as zero and
// within which of 1 it is treated as full coverage.
const Epsilon = 1e-10

// Geometry errors.
var (
	ErrEmptyGeometry       = eris.New("coverage: empty geometry")
	ErrMalformedGeometry   = eris.New("coverage: malformed geometry")
	ErrUnsupportedGeometry = eris.New("coverage: unsupported geometry type")
)

// FillRule decides which regions of a self-overlapping outline count as inside.
type FillRule string

// Fill rules.
const (
	NonZero FillRule = "nonzero"
	EvenOdd FillRule = "evenodd"
)

// Cell is one grid cell with positive coverage.
type Cell struct {
	Row      int
	Col      int
	Fraction float64
}

// edge is a ring segment in window-local cell units (x = column, y = row).
type edge struct {
	x0, y0 float64
	x1, y1 float64
	sign   float64
}

// Coverage returns every cell of grid covered by g, in row-major order.
func Coverage(g geom.T, grid raster.Geometry, rule FillRule) ([]Cell, error) {
	var cells []Cell
	err := Rasterize(g, grid, rule, func(row, col int, frac float64) {
		cells = append(cells, Cell{Row: row, Col: col, Fraction: frac})
	})
	if err != nil {
		return nil, err
	}
	return cells, nil
}

// Rasterize calls emit for every cell of grid covered by g, in row-major
// order. Cells outside the polygon or the grid are never emitted.
func Rasterize(g geom.T, grid raster.Geometry, rule FillRule, emit func(row, col int, frac float64)) error {
	if err := grid.Validate(); err != nil {
		return err
	}
	rings, err := polygonRings(g)
	if err != nil {
		return err
	}

	win, ok := window(g.Bounds(), grid)
	if !ok {
		return nil
	}

	edges := buildEdges(rings, grid, win)
	if len(edges) == 0 {
		return nil
	}

	s := scanner{width: win.c1 - win.c0}
	if !simple(rings) {
		s.inside = rule.inside
	}
	s.run(edges, win.r1-win.r0, func(r, c int, frac float64) {
		emit(win.r0+r, win.c0+c, frac)
	})
	return nil
}

// inside reports whether a region of winding number w is filled.
func (r FillRule) inside(w int) bool {
	if r == EvenOdd {
		return w%2 != 0
	}
	return w != 0
}

// ring is a closed ring of flat coordinates with its orientation factor.
// part numbers the polygon the ring belongs to; the first ring of each part
// is its shell.
type ring struct {
	flat   []float64
	layout geom.Layout
	stride int
	dir    float64
	part   int
	hole   bool
}

// polygonRings flattens g into rings, oriented so that shells have positive
// and holes negative winding.
func polygonRings(g geom.T) ([]ring, error) {
	if g == nil {
		return nil, ErrEmptyGeometry
	}
	var rings []ring
	var parts int
	add := func(p *geom.Polygon) error {
		parts++
		return appendPolygon(&rings, p, parts-1)
	}
	var walk func(t geom.T) error
	walk = func(t geom.T) error {
		switch v := t.(type) {
		case *geom.Polygon:
			return add(v)
		case *geom.MultiPolygon:
			for i := 0; i < v.NumPolygons(); i++ {
				if err := add(v.Polygon(i)); err != nil {
					return eris.Wrapf(err, "polygon %d", i)
				}
			}
			return nil
		case *geom.GeometryCollection:
			for i, sub := range v.Geoms() {
				if err := walk(sub); err != nil {
					return eris.Wrapf(err, "member %d", i)
				}
			}
			return nil
		default:
			return eris.Wrapf(ErrUnsupportedGeometry, "%T", t)
		}
	}
	if err := walk(g); err != nil {
		return nil, err
	}
	if len(rings) == 0 {
		return nil, ErrEmptyGeometry
	}
	return rings, nil
}

func appendPolygon(rings *[]ring, p *geom.Polygon, part int) error {
	if p == nil || len(p.FlatCoords()) == 0 {
		return ErrEmptyGeometry
	}
	stride := p.Stride()
	flat := p.FlatCoords()
	start := 0
	for i, end := range p.Ends() {
		coords := flat[start:end]
		start = end
		n := len(coords) / stride
		if n < 4 {
			return eris.Wrapf(ErrMalformedGeometry, "ring %d has %d coordinates", i, n)
		}
		for j := 0; j < len(coords); j += stride {
			if !finite(coords[j]) || !finite(coords[j+1]) {
				return eris.Wrapf(ErrMalformedGeometry, "ring %d has a non-finite coordinate", i)
			}
		}
		last := len(coords) - stride
		if coords[0] != coords[last] || coords[1] != coords[last+1] {
			return eris.Wrapf(ErrMalformedGeometry, "ring %d is not closed", i)
		}

		want := 1.0
		if i > 0 {
			want = -1
		}
		dir := want
		if geom.NewLinearRingFlat(p.Layout(), coords).Area()*want < 0 {
			dir = -want
		}
		*rings = append(*rings, ring{
			flat:   coords,
			layout: p.Layout(),
			stride: stride,
			dir:    dir,
			part:   part,
			hole:   i > 0,
		})
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// cellWindow is the half-open block of grid rows and columns that can be
// touched by the polygon.
type cellWindow struct {
	r0, r1, c0, c1 int
}

func window(gb *geom.Bounds, grid raster.Geometry) (cellWindow, bool) {
	b := raster.Bounds{MinX: gb.Min(0), MinY: gb.Min(1), MaxX: gb.Max(0), MaxY: gb.Max(1)}
	b = b.Intersect(grid.Extent())
	if b.Empty() {
		return cellWindow{}, false
	}

	cx0, cy0 := grid.ToCell(b.MinX, b.MaxY)
	cx1, cy1 := grid.ToCell(b.MaxX, b.MinY)
	w := cellWindow{
		c0: max(0, int(math.Floor(cx0))),
		c1: min(grid.Cols, int(math.Ceil(cx1))),
		r0: max(0, int(math.Floor(cy0))),
		r1: min(grid.Rows, int(math.Ceil(cy1))),
	}
	return w, w.c1 > w.c0 && w.r1 > w.r0
}

// buildEdges converts ring segments to window-local cell units. Horizontal
// segments carry no cover and are dropped.
func buildEdges(rings []ring, grid raster.Geometry, win cellWindow) []edge {
	var edges []edge
	for _, r := range rings {
		for j := 0; j+r.stride < len(r.flat); j += r.stride {
			x0, y0 := grid.ToCell(r.flat[j], r.flat[j+1])
			x1, y1 := grid.ToCell(r.flat[j+r.stride], r.flat[j+r.stride+1])
			if y0 == y1 {
				continue
			}
			// Map y grows upward, cell rows grow downward, so the ring's
			// map orientation flips in cell units.
			sign := -r.dir
			if y1 < y0 {
				sign = r.dir
			}
			edges = append(edges, edge{
				x0: x0 - float64(win.c0), y0: y0 - float64(win.r0),
				x1: x1 - float64(win.c0), y1: y1 - float64(win.r0),
				sign: sign,
			})
		}
	}
	return edges
}

func (e *edge) yMin() float64 { return math.Min(e.y0, e.y1) }
func (e *edge) yMax() float64 { return math.Max(e.y0, e.y1) }

// xAt returns the edge's x coordinate at y.
func (e *edge) xAt(y float64) float64 {
	return e.x0 + (e.x1-e.x0)*(y-e.y0)/(e.y1-e.y0)
}

// scanner accumulates one row at a time so memory stays proportional to the
// window width. With inside set, rows are swept exactly under that fill rule.
type scanner struct {
	width  int
	cover  []float64
	area   []float64
	inside func(w int) bool

	pieces []piece
	bands  []bandEdge
	ys     []float64
}

func (s *scanner) run(edges []edge, height int, emit func(r, c int, frac float64)) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].yMin() < edges[j].yMin() })

	s.cover = slices.Grow(s.cover[:0], s.width)[:s.width]
	s.area = slices.Grow(s.area[:0], s.width)[:s.width]

	var active []int
	next := 0
	for row := 0; row < height; row++ {
		top, bot := float64(row), float64(row+1)

		for next < len(edges) && edges[next].yMin() < bot {
			active = append(active, next)
			next++
		}
		kept := active[:0]
		for _, i := range active {
			if edges[i].yMax() > top {
				kept = append(kept, i)
			}
		}
		active = kept
		if len(active) == 0 {
			if next >= len(edges) {
				return
			}
			continue
		}

		clear(s.cover)
		clear(s.area)
		if s.inside != nil {
			s.sweep(edges, active, top, bot)
			integrateExact(s.cover, s.area)
		} else {
			for _, i := range active {
				e := &edges[i]
				yTop := math.Max(top, e.yMin())
				yBot := math.Min(bot, e.yMax())
				if yBot <= yTop {
					continue
				}
				s.span(e.xAt(yTop), yTop, e.xAt(yBot), yBot, e.sign)
			}
			integrateNonZero(s.cover, s.area)
		}
		for c, frac := range s.cover {
			if frac <= Epsilon {
				continue
			}
			if frac >= 1-Epsilon {
				frac = 1
			}
			emit(row, c, frac)
		}
	}
}

// span accumulates the segment (xa, ya)-(xb, yb), which lies inside a single
// row band with ya < yb.
func (s *scanner) span(xa, ya, xb, yb, sign float64) {
	w := float64(s.width)
	lo, hi := math.Min(xa, xb), math.Max(xa, xb)

	// Entirely left of the window: every cell of the row lies to its right.
	if hi <= 0 {
		v := sign * (yb - ya)
		s.cover[0] += v
		s.area[0] += v
		return
	}
	if lo >= w {
		return
	}

	pl := max(-1, int(math.Floor(lo)))
	pr := min(s.width, int(math.Floor(hi)))
	if pl == pr {
		s.column(pl, ya, yb, (xa+xb)/2, sign)
		return
	}

	dydx := (yb - ya) / (xb - xa)
	yAt := func(x float64) float64 { return ya + (x-xa)*dydx }
	for pix := pl; pix <= pr; pix++ {
		xl, xr := float64(pix), float64(pix+1)
		if pix < 0 {
			xl = math.Min(lo, xl)
		}
		if pix >= s.width {
			xr = math.Max(hi, xr)
		}
		y0, y1 := yAt(xl), yAt(xr)
		segMin := math.Max(math.Min(y0, y1), ya)
		segMax := math.Min(math.Max(y0, y1), yb)
		if segMax <= segMin {
			continue
		}
		xMid := xa + ((segMin+segMax)/2-ya)/dydx
		s.column(pix, segMin, segMax, xMid, sign)
	}
}

// column adds a segment confined to one column; xMid is its x at mid height.
func (s *scanner) column(pix int, yTop, yBot, xMid, sign float64) {
	v := sign * (yBot - yTop)
	if pix < 0 {
		s.cover[0] += v
		s.area[0] += v
		return
	}
	if pix >= s.width {
		return
	}
	frac := math.Max(0, math.Min(1, xMid-float64(pix)))
	s.cover[pix] += v
	s.area[pix] += v * (1 - frac)
}

// integrateNonZero turns accumulated cover/area into coverage in place.
func integrateNonZero(cover, area []float64) {
	var accum float64
	for i := range cover {
		raw := accum + area[i]
		accum += cover[i]
		cover[i] = math.Min(1, math.Abs(raw))
	}
}

// integrateExact sums spans accumulated by sweep. Spans mark only the edges
// where the fill rule switches on (+1) or off (-1), so the sum is the filled
// area itself.
func integrateExact(cover, area []float64) {
	var accum float64
	for i := range cover {
		raw := accum + area[i]
		accum += cover[i]
		cover[i] = math.Max(0, math.Min(1, raw))
	}
}
