// Package store persists zonal result tables to SQLite or PostgreSQL and
// reads polygon features back out of PostGIS.
package store

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zonal-cli/internal/config"
	"github.com/sells-group/zonal-cli/internal/zonal"
)

// RunIDColumn is prepended to every persisted result table.
const RunIDColumn = "run_id"

// Sink persists result tables. Each Save is one run with its own ID; rows
// from every run of the same name share one table.
type Sink interface {
	Save(ctx context.Context, name string, t *zonal.Table) (string, error)
	Close() error
}

// Run describes one saved result table.
type Run struct {
	ID        string    `json:"id"`
	Table     string    `json:"table"`
	Columns   []string  `json:"columns"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

// Open returns the sink named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Sink, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validTable checks a result table name. Table names are interpolated into
// DDL, so only plain identifiers are accepted.
func validTable(name string) error {
	if !identRe.MatchString(name) {
		return eris.Errorf("store: invalid table name %q", name)
	}
	return nil
}

// quoteIdent double-quotes a column name for both SQLite and PostgreSQL.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

type colKind int

const (
	kindNumber colKind = iota
	kindText
)

// columnKinds decides a storage type per column: numeric when every non-nil
// cell is a number, text otherwise.
func columnKinds(t *zonal.Table) []colKind {
	kinds := make([]colKind, len(t.Columns))
	for _, row := range t.Rows {
		for j, v := range row {
			switch v.(type) {
			case nil, float64, float32, int, int32, int64:
			default:
				kinds[j] = kindText
			}
		}
	}
	return kinds
}

// cell converts a table value for a driver: NaN becomes NULL and non-numeric
// values in text columns are stringified.
func cell(v any, kind colKind) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		if kind == kindText {
			return formatNumber(x)
		}
		return x
	case string:
		return x
	}
	if kind == kindText {
		return toString(v)
	}
	return v
}

// dbRows prefixes each table row with the run ID, ready for insertion.
func dbRows(runID string, t *zonal.Table) [][]any {
	kinds := columnKinds(t)
	rows := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]any, 0, len(row)+1)
		r = append(r, runID)
		for j, v := range row {
			r = append(r, cell(v, kinds[j]))
		}
		rows[i] = r
	}
	return rows
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toString(v any) string {
	return fmt.Sprint(v)
}
