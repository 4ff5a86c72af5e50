package coverage

import (
	"math"
	"slices"
	"sort"
)

// piece is an active edge clipped to the current row.
type piece struct {
	e          *edge
	ya, yb     float64
	xmin, xmax float64
}

// bandEdge is a piece restricted to one crossing-free band of a row.
type bandEdge struct {
	x0, x1 float64
	mid    float64
	sign   float64
}

// sweep accumulates the row [top, bot) under s.inside. The row is cut at
// every vertex and edge crossing, so inside each band the edges keep their
// left-to-right order and the winding number between neighbours is constant.
func (s *scanner) sweep(edges []edge, active []int, top, bot float64) {
	pieces := s.pieces[:0]
	ys := append(s.ys[:0], top, bot)
	for _, i := range active {
		e := &edges[i]
		ya, yb := math.Max(top, e.yMin()), math.Min(bot, e.yMax())
		if yb <= ya {
			continue
		}
		xa, xb := e.xAt(ya), e.xAt(yb)
		pieces = append(pieces, piece{e: e, ya: ya, yb: yb, xmin: math.Min(xa, xb), xmax: math.Max(xa, xb)})
		ys = append(ys, ya, yb)
	}

	sort.Slice(pieces, func(i, j int) bool { return pieces[i].xmin < pieces[j].xmin })
	for i := range pieces {
		a := &pieces[i]
		for j := i + 1; j < len(pieces) && pieces[j].xmin <= a.xmax; j++ {
			if y, ok := crossing(a, &pieces[j]); ok {
				ys = append(ys, y)
			}
		}
	}
	slices.Sort(ys)
	ys = slices.Compact(ys)

	bands := s.bands[:0]
	for k := 0; k+1 < len(ys); k++ {
		y0, y1 := ys[k], ys[k+1]
		bands = bands[:0]
		for i := range pieces {
			p := &pieces[i]
			if p.ya > y0 || p.yb < y1 {
				continue
			}
			x0, x1 := p.e.xAt(y0), p.e.xAt(y1)
			bands = append(bands, bandEdge{x0: x0, x1: x1, mid: (x0 + x1) / 2, sign: p.e.sign})
		}
		sort.Slice(bands, func(i, j int) bool { return bands[i].mid < bands[j].mid })

		w := 0
		for _, b := range bands {
			before := s.inside(w)
			w += int(b.sign)
			after := s.inside(w)
			switch {
			case after && !before:
				s.span(b.x0, y0, b.x1, y1, 1)
			case before && !after:
				s.span(b.x0, y0, b.x1, y1, -1)
			}
		}
	}
	s.pieces, s.bands, s.ys = pieces, bands, ys
}

// crossing returns the y at which pieces a and b swap sides, if they do so
// strictly inside the y range they share.
func crossing(a, b *piece) (float64, bool) {
	lo, hi := math.Max(a.ya, b.ya), math.Min(a.yb, b.yb)
	if hi <= lo {
		return 0, false
	}
	d0 := a.e.xAt(lo) - b.e.xAt(lo)
	d1 := a.e.xAt(hi) - b.e.xAt(hi)
	if d0 == 0 || d1 == 0 || (d0 < 0) == (d1 < 0) {
		return 0, false
	}
	return lo + (hi-lo)*d0/(d0-d1), true
}
