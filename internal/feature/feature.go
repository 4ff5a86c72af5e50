// Package feature loads polygon features and their attributes from
// shapefiles, GeoJSON, and EWKB.
package feature

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// Property is one named attribute of a feature.
type Property struct {
	Name  string
	Value any
}

// Feature is a geometry plus its attributes in source order.
type Feature struct {
	Geometry   geom.T
	Properties []Property
}

// Get returns the value of the named property.
func (f Feature) Get(name string) (any, bool) {
	for _, p := range f.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Names returns the property names in order.
func (f Feature) Names() []string {
	names := make([]string, len(f.Properties))
	for i, p := range f.Properties {
		names[i] = p.Name
	}
	return names
}

// Source provides an ordered sequence of features.
type Source interface {
	Features(ctx context.Context) ([]Feature, error)
}

// FileSource reads features from a shapefile or GeoJSON file.
type FileSource struct {
	Path string
}

// Features implements Source.
func (s FileSource) Features(ctx context.Context) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "feature: context cancelled")
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".shp":
		return ReadShapefile(s.Path)
	case ".geojson", ".json":
		return ReadGeoJSONFile(s.Path)
	default:
		return nil, eris.Errorf("feature: unsupported file type %q", filepath.Ext(s.Path))
	}
}

// Slice is an in-memory Source.
type Slice []Feature

// Features implements Source.
func (s Slice) Features(context.Context) ([]Feature, error) {
	return s, nil
}

// DecodeEWKB decodes an (E)WKB geometry as stored by PostGIS.
func DecodeEWKB(data []byte) (geom.T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "feature: decode ewkb")
	}
	return g, nil
}

// EncodeEWKB encodes g as little-endian EWKB.
func EncodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "feature: encode ewkb")
	}
	return data, nil
}
