package feature

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// ReadShapefile reads every record of a polygon shapefile. Records with null
// or non-polygon shapes are kept with a nil Geometry so that feature order and
// count match the file; the summarizer reports them as geometry errors.
func ReadShapefile(path string) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// go-shp drops its own error when the .dbf is missing.
	if !hasAttributes(path) {
		zap.L().Warn("feature: shapefile has no .dbf; features carry no attributes",
			zap.String("path", path),
		)
	}

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var features []Feature
	var unsupported int
	for reader.Next() {
		_, shape := reader.Shape()

		props := make([]Property, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			props[i] = Property{Name: name, Value: val}
		}

		g := shapeToGeom(shape)
		if g == nil {
			unsupported++
		}
		features = append(features, Feature{Geometry: g, Properties: props})
	}

	if unsupported > 0 {
		zap.L().Debug("feature: shapefile records without polygon geometry",
			zap.String("path", path),
			zap.Int("records", unsupported),
		)
	}
	return features, nil
}

// hasAttributes reports whether the .dbf next to a .shp exists.
func hasAttributes(path string) bool {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".dbf", ".DBF"} {
		if _, err := os.Stat(base + ext); err == nil {
			return true
		}
	}
	return false
}

func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Polygon:
		return ringsToGeom(s.Parts, s.Points)
	case *shp.PolygonZ:
		return ringsToGeom(s.Parts, s.Points)
	case *shp.PolygonM:
		return ringsToGeom(s.Parts, s.Points)
	default:
		return nil
	}
}

// ringsToGeom groups shapefile parts into polygons. Shapefiles wind outer
// rings clockwise and holes counter-clockwise; each hole is attached to the
// first shell containing its first vertex. The result uses OGC winding:
// counter-clockwise shells and clockwise holes.
func ringsToGeom(parts []int32, points []shp.Point) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	var shells, holes []*geom.LinearRing
	for i := range parts {
		start := parts[i]
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, points[j].X, points[j].Y)
		}
		r := geom.NewLinearRingFlat(geom.XY, flat)
		if r.Area() <= 0 {
			shells = append(shells, r)
		} else {
			holes = append(holes, r)
		}
	}
	// Files that ignore the winding convention: treat every ring as a shell.
	if len(shells) == 0 {
		shells, holes = holes, nil
	}

	polys := make([][]*geom.LinearRing, len(shells))
	for i, s := range shells {
		if s.Area() < 0 {
			s.Reverse()
		}
		polys[i] = []*geom.LinearRing{s}
	}
	for _, h := range holes {
		if h.Area() > 0 {
			h.Reverse()
		}
		owner := len(polys) - 1
		for i, s := range shells {
			if xy.IsPointInRing(geom.XY, h.Coord(0), s.FlatCoords()) {
				owner = i
				break
			}
		}
		polys[owner] = append(polys[owner], h)
	}

	var flat []float64
	endss := make([][]int, len(polys))
	for i, rings := range polys {
		for _, r := range rings {
			flat = append(flat, r.FlatCoords()...)
			endss[i] = append(endss[i], len(flat))
		}
	}
	if len(endss) == 1 {
		return geom.NewPolygonFlat(geom.XY, flat, endss[0])
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss)
}
