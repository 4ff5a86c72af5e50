package coverage

import (
	"sort"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersector"
)

// simple reports whether every point of rings has winding 0 or 1: no two
// ring segments meet other than consecutive ones, shells have disjoint
// bounds, and each hole lies inside its own shell apart from its siblings.
func simple(rings []ring) bool {
	return nested(rings) && !touching(rings)
}

type ringBox struct {
	b    *geom.Bounds
	part int
	hole bool
}

func nested(rings []ring) bool {
	shells := make(map[int]ring)
	for _, r := range rings {
		if !r.hole {
			shells[r.part] = r
		}
	}

	boxes := make([]ringBox, 0, len(rings))
	for _, r := range rings {
		if r.hole {
			s := shells[r.part]
			if !xy.IsPointInRing(s.layout, geom.Coord{r.flat[0], r.flat[1]}, s.flat) {
				return false
			}
		}
		b := geom.NewLinearRingFlat(r.layout, r.flat).Bounds()
		boxes = append(boxes, ringBox{b: b, part: r.part, hole: r.hole})
	}

	sort.Slice(boxes, func(i, j int) bool { return boxes[i].b.Min(0) < boxes[j].b.Min(0) })
	for i, a := range boxes {
		for _, b := range boxes[i+1:] {
			if b.b.Min(0) > a.b.Max(0) {
				break
			}
			if !a.b.Overlaps(geom.XY, b.b) {
				continue
			}
			if !a.hole && !b.hole {
				return false
			}
			if a.hole && b.hole && a.part == b.part {
				return false
			}
		}
	}
	return true
}

// segment is one non-degenerate ring segment; idx counts such segments
// along the ring, n is their total.
type segment struct {
	p0, p1 geom.Coord
	ring   int
	idx, n int
}

func (s segment) minX() float64 { return min(s.p0[0], s.p1[0]) }
func (s segment) maxX() float64 { return max(s.p0[0], s.p1[0]) }
func (s segment) minY() float64 { return min(s.p0[1], s.p1[1]) }
func (s segment) maxY() float64 { return max(s.p0[1], s.p1[1]) }

func (s segment) adjacent(o segment) bool {
	if s.ring != o.ring {
		return false
	}
	d := s.idx - o.idx
	if d < 0 {
		d = -d
	}
	return d == 1 || d == s.n-1
}

// touching reports whether any two non-consecutive segments intersect.
func touching(rings []ring) bool {
	var segs []segment
	for ri, r := range rings {
		start := len(segs)
		for j := 0; j+r.stride < len(r.flat); j += r.stride {
			p0 := geom.Coord{r.flat[j], r.flat[j+1]}
			p1 := geom.Coord{r.flat[j+r.stride], r.flat[j+r.stride+1]}
			if p0.Equal(geom.XY, p1) {
				continue
			}
			segs = append(segs, segment{p0: p0, p1: p1, ring: ri, idx: len(segs) - start})
		}
		for k := start; k < len(segs); k++ {
			segs[k].n = len(segs) - start
		}
	}

	sort.Slice(segs, func(i, j int) bool { return segs[i].minX() < segs[j].minX() })
	li := lineintersector.RobustLineIntersector{}
	for i, a := range segs {
		for _, b := range segs[i+1:] {
			if b.minX() > a.maxX() {
				break
			}
			if b.minY() > a.maxY() || b.maxY() < a.minY() || a.adjacent(b) {
				continue
			}
			res := lineintersector.LineIntersectsLine(li, a.p0, a.p1, b.p0, b.p1)
			if res.HasIntersection() {
				return true
			}
		}
	}
	return false
}
