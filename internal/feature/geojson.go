package feature

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ReadGeoJSONFile reads a GeoJSON FeatureCollection from disk.
func ReadGeoJSONFile(path string) ([]Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: open %s", path)
	}
	defer func() { _ = f.Close() }()
	return ReadGeoJSON(f)
}

// ReadGeoJSON decodes a FeatureCollection (or a single Feature). Property
// order follows the document.
func ReadGeoJSON(r io.Reader) ([]Feature, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "feature: read geojson")
	}

	var head struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "feature: parse geojson")
	}

	raws := head.Features
	switch head.Type {
	case "FeatureCollection":
	case "Feature":
		raws = []json.RawMessage{data}
	default:
		return nil, eris.Errorf("feature: unsupported geojson type %q", head.Type)
	}

	features := make([]Feature, 0, len(raws))
	for i, raw := range raws {
		f, err := decodeFeature(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "feature: geojson feature %d", i)
		}
		features = append(features, f)
	}
	return features, nil
}

func decodeFeature(raw json.RawMessage) (Feature, error) {
	var gf geojson.Feature
	if err := json.Unmarshal(raw, &gf); err != nil {
		return Feature{}, err
	}

	var props struct {
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return Feature{}, err
	}
	order, err := objectKeys(props.Properties)
	if err != nil {
		return Feature{}, err
	}

	f := Feature{Geometry: gf.Geometry, Properties: make([]Property, 0, len(order))}
	for _, k := range order {
		f.Properties = append(f.Properties, Property{Name: k, Value: gf.Properties[k]})
	}
	return f, nil
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, eris.New("properties is not an object")
	}
	var keys []string
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		if !seen[key] {
			keys = append(keys, key)
			seen[key] = true
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// EncodeGeoJSON writes features as a FeatureCollection.
func EncodeGeoJSON(w io.Writer, features []Feature) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, len(features))}
	for i, f := range features {
		props := make(map[string]any, len(f.Properties))
		for _, p := range f.Properties {
			props[p.Name] = p.Value
		}
		fc.Features[i] = &geojson.Feature{Geometry: f.Geometry, Properties: props}
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "feature: encode geojson")
	}
	_, err = w.Write(data)
	return eris.Wrap(err, "feature: write geojson")
}
