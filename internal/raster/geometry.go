// Package raster describes regular grids of cell values and reads them from
// ESRI ASCII grids and world-file referenced TIFFs.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// EarthRadius is the mean earth radius in meters used for spherical cell areas.
const EarthRadius = 6371008.8

// alignTolerance is the relative tolerance used when comparing grid origins
// and cell sizes.
const alignTolerance = 1e-9

// AreaMethod selects how per-cell area is computed.
type AreaMethod string

// Area methods.
const (
	AreaAuto      AreaMethod = "auto"
	AreaCartesian AreaMethod = "cartesian"
	AreaSpherical AreaMethod = "spherical"
)

// CRS is the minimal coordinate reference description the engine needs.
type CRS struct {
	Name       string `yaml:"name" json:"name"`             // e.g., "EPSG:4326"
	Geographic bool   `yaml:"geographic" json:"geographic"` // lon/lat degrees
}

// Bounds is an axis-aligned rectangle.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Empty reports whether b has no area.
func (b Bounds) Empty() bool {
	return !(b.MaxX > b.MinX && b.MaxY > b.MinY)
}

// Intersect returns the overlap of b and o (possibly empty).
func (b Bounds) Intersect(o Bounds) Bounds {
	return Bounds{
		MinX: math.Max(b.MinX, o.MinX),
		MinY: math.Max(b.MinY, o.MinY),
		MaxX: math.Min(b.MaxX, o.MaxX),
		MaxY: math.Min(b.MaxY, o.MaxY),
	}
}

// Geometry locates a grid in space. OriginX/OriginY is the top-left corner;
// rows increase southward.
type Geometry struct {
	OriginX    float64
	OriginY    float64
	CellWidth  float64
	CellHeight float64
	Rows       int
	Cols       int
	CRS        CRS
}

// Validate checks that g describes a usable grid.
func (g Geometry) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return eris.Errorf("raster: invalid dimensions %dx%d", g.Rows, g.Cols)
	}
	if !(g.CellWidth > 0) || !(g.CellHeight > 0) {
		return eris.Errorf("raster: invalid cell size %gx%g", g.CellWidth, g.CellHeight)
	}
	if math.IsInf(g.OriginX, 0) || math.IsNaN(g.OriginX) || math.IsInf(g.OriginY, 0) || math.IsNaN(g.OriginY) {
		return eris.New("raster: non-finite origin")
	}
	return nil
}

// Extent returns the bounds of the whole grid.
func (g Geometry) Extent() Bounds {
	return Bounds{
		MinX: g.OriginX,
		MinY: g.OriginY - float64(g.Rows)*g.CellHeight,
		MaxX: g.OriginX + float64(g.Cols)*g.CellWidth,
		MaxY: g.OriginY,
	}
}

// CellBounds returns the rectangle covered by the cell at row, col.
func (g Geometry) CellBounds(row, col int) Bounds {
	return Bounds{
		MinX: g.OriginX + float64(col)*g.CellWidth,
		MinY: g.OriginY - float64(row+1)*g.CellHeight,
		MaxX: g.OriginX + float64(col+1)*g.CellWidth,
		MaxY: g.OriginY - float64(row)*g.CellHeight,
	}
}

// CellCenter returns the center coordinate of the cell at row, col.
func (g Geometry) CellCenter(row, col int) (x, y float64) {
	return g.OriginX + (float64(col)+0.5)*g.CellWidth,
		g.OriginY - (float64(row)+0.5)*g.CellHeight
}

// ToCell converts a map coordinate into fractional (column, row) units.
func (g Geometry) ToCell(x, y float64) (cx, cy float64) {
	return (x - g.OriginX) / g.CellWidth, (g.OriginY - y) / g.CellHeight
}

// Contains reports whether row, col addresses a cell of g.
func (g Geometry) Contains(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// Aligned returns an error describing the first difference that prevents
// other from being read with g's cell addressing.
func (g Geometry) Aligned(other Geometry) error {
	if g.CRS.Name != "" && other.CRS.Name != "" && g.CRS.Name != other.CRS.Name {
		return eris.Errorf("raster: crs %q differs from %q", other.CRS.Name, g.CRS.Name)
	}
	if !near(g.CellWidth, other.CellWidth, g.CellWidth) || !near(g.CellHeight, other.CellHeight, g.CellHeight) {
		return eris.Errorf("raster: cell size %gx%g differs from %gx%g",
			other.CellWidth, other.CellHeight, g.CellWidth, g.CellHeight)
	}
	if !near(g.OriginX, other.OriginX, g.CellWidth) || !near(g.OriginY, other.OriginY, g.CellHeight) {
		return eris.Errorf("raster: origin (%g, %g) differs from (%g, %g)",
			other.OriginX, other.OriginY, g.OriginX, g.OriginY)
	}
	if g.Rows != other.Rows || g.Cols != other.Cols {
		return eris.Errorf("raster: dimensions %dx%d differ from %dx%d",
			other.Rows, other.Cols, g.Rows, g.Cols)
	}
	return nil
}

// CellArea returns the area of a cell in the given row. Cartesian areas are in
// squared CRS units; spherical areas are in square meters.
func (g Geometry) CellArea(row int, method AreaMethod) float64 {
	if method == AreaAuto {
		method = AreaCartesian
		if g.CRS.Geographic {
			method = AreaSpherical
		}
	}
	if method != AreaSpherical {
		return g.CellWidth * g.CellHeight
	}
	b := g.CellBounds(row, 0)
	lat0 := clampLat(b.MinY) * math.Pi / 180
	lat1 := clampLat(b.MaxY) * math.Pi / 180
	dlon := g.CellWidth * math.Pi / 180
	return EarthRadius * EarthRadius * dlon * math.Abs(math.Sin(lat1)-math.Sin(lat0))
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func near(a, b, scale float64) bool {
	return math.Abs(a-b) <= alignTolerance*math.Max(1, math.Abs(scale))
}
