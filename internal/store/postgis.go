package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonal-cli/internal/feature"
)

// PostGISSource reads polygon features from a PostGIS table. It implements
// feature.Source.
type PostGISSource struct {
	Pool       Pool
	Table      string   // may be schema-qualified, e.g. "tiger.county"
	GeomColumn string   // default "geom"
	Columns    []string // attribute columns, in output order
	OrderBy    string   // optional; keeps feature order stable across calls
}

var _ feature.Source = (*PostGISSource)(nil)

func (s *PostGISSource) query() (string, error) {
	for _, part := range strings.Split(s.Table, ".") {
		if err := validTable(part); err != nil {
			return "", err
		}
	}
	geomCol := s.GeomColumn
	if geomCol == "" {
		geomCol = "geom"
	}

	sel := []string{fmt.Sprintf("ST_AsEWKB(%s)", quoteIdent(geomCol))}
	for _, c := range s.Columns {
		sel = append(sel, quoteIdent(c))
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(sel, ", "), s.Table)
	if s.OrderBy != "" {
		q += " ORDER BY " + quoteIdent(s.OrderBy)
	}
	return q, nil
}

// Features implements feature.Source.
func (s *PostGISSource) Features(ctx context.Context) ([]feature.Feature, error) {
	q, err := s.query()
	if err != nil {
		return nil, err
	}

	rows, err := s.Pool.Query(ctx, q)
	if err != nil {
		return nil, eris.Wrapf(err, "postgis: query %s", s.Table)
	}
	defer rows.Close()

	var features []feature.Feature
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgis: read row")
		}
		if len(vals) != len(s.Columns)+1 {
			return nil, eris.Errorf("postgis: got %d values, want %d", len(vals), len(s.Columns)+1)
		}

		wkb, _ := vals[0].([]byte)
		g, err := feature.DecodeEWKB(wkb)
		if err != nil {
			// Keep the feature; the summarizer reports it as a geometry error.
			zap.L().Debug("postgis: undecodable geometry",
				zap.Int("feature", len(features)),
				zap.Error(err),
			)
			g = nil
		}

		f := feature.Feature{Geometry: g, Properties: make([]feature.Property, len(s.Columns))}
		for i, c := range s.Columns {
			f.Properties[i] = feature.Property{Name: c, Value: vals[i+1]}
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgis: iterate rows")
	}
	return features, nil
}
