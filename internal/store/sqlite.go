package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/zonal-cli/internal/zonal"
)

// SQLiteStore implements Sink using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS zonal_runs (
	id           TEXT PRIMARY KEY,
	result_table TEXT NOT NULL,
	columns      TEXT NOT NULL,
	row_count    INTEGER NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_zonal_runs_table ON zonal_runs(result_table);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteType(k colKind) string {
	if k == kindText {
		return "TEXT"
	}
	return "REAL"
}

// Save writes t into table name, creating it on first use, and records the
// run. The whole save is one transaction.
func (s *SQLiteStore) Save(ctx context.Context, name string, t *zonal.Table) (string, error) {
	if err := validTable(name); err != nil {
		return "", err
	}
	id := uuid.New().String()
	now := time.Now().UTC()

	colsJSON, err := json.Marshal(t.Columns)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal columns")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	kinds := columnKinds(t)
	defs := []string{quoteIdent(RunIDColumn) + " TEXT NOT NULL"}
	names := []string{quoteIdent(RunIDColumn)}
	for j, c := range t.Columns {
		defs = append(defs, quoteIdent(c)+" "+sqliteType(kinds[j]))
		names = append(names, quoteIdent(c))
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return "", eris.Wrapf(err, "sqlite: create table %s", name)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(names, ", "), placeholders))
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: prepare insert %s", name)
	}
	defer stmt.Close()

	for i, row := range dbRows(id, t) {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return "", eris.Wrapf(err, "sqlite: insert row %d", i)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO zonal_runs (id, result_table, columns, row_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, string(colsJSON), t.Len(), now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert run")
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit")
	}
	return id, nil
}

// ListRuns returns saved runs, newest first. An empty table lists all.
func (s *SQLiteStore) ListRuns(ctx context.Context, table string) ([]Run, error) {
	query := `SELECT id, result_table, columns, row_count, created_at FROM zonal_runs`
	var args []any
	if table != "" {
		query += ` WHERE result_table = ?`
		args = append(args, table)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var cols string
		if err := rows.Scan(&r.ID, &r.Table, &cols, &r.Rows, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if err := json.Unmarshal([]byte(cols), &r.Columns); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal columns")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// LoadRun reads the rows saved by one run, without the run ID column.
func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (*zonal.Table, error) {
	var table, cols string
	err := s.db.QueryRowContext(ctx,
		`SELECT result_table, columns FROM zonal_runs WHERE id = ?`, runID,
	).Scan(&table, &cols)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	var columns []string
	if err := json.Unmarshal([]byte(cols), &columns); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal columns")
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY rowid",
		strings.Join(quoted, ", "), quoteIdent(table), quoteIdent(RunIDColumn)), runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", table)
	}
	defer rows.Close()

	out := zonal.NewTable(columns...)
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate rows")
}
