package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/zonal-cli/internal/resilience"
	"github.com/sells-group/zonal-cli/internal/zonal"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresStore implements Sink using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("postgres: ping")
	if err := resilience.Do(ctx, retry, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool, e.g. for a PostGISSource.
func (s *PostgresStore) Pool() Pool {
	return s.pool
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const postgresMigration = `CREATE TABLE IF NOT EXISTS zonal_runs (
	id           TEXT PRIMARY KEY,
	result_table TEXT NOT NULL,
	columns      JSONB NOT NULL,
	row_count    INTEGER NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func postgresType(k colKind) string {
	if k == kindText {
		return "TEXT"
	}
	return "DOUBLE PRECISION"
}

// Save creates the result table if needed, COPYs t into it, and records the
// run, all in one transaction.
func (s *PostgresStore) Save(ctx context.Context, name string, t *zonal.Table) (runID string, err error) {
	if err := validTable(name); err != nil {
		return "", err
	}
	id := uuid.New().String()

	colsJSON, err := json.Marshal(t.Columns)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal columns")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, postgresMigration); err != nil {
		return "", eris.Wrap(err, "postgres: migrate")
	}

	kinds := columnKinds(t)
	defs := []string{quoteIdent(RunIDColumn) + " TEXT NOT NULL"}
	columns := []string{RunIDColumn}
	for j, c := range t.Columns {
		defs = append(defs, quoteIdent(c)+" "+postgresType(kinds[j]))
		columns = append(columns, c)
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err = tx.Exec(ctx, create); err != nil {
		return "", eris.Wrapf(err, "postgres: create table %s", name)
	}

	if rows := dbRows(id, t); len(rows) > 0 {
		if _, err = tx.CopyFrom(ctx, pgx.Identifier{name}, columns, pgx.CopyFromRows(rows)); err != nil {
			return "", eris.Wrapf(err, "postgres: COPY INTO %s", name)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO zonal_runs (id, result_table, columns, row_count) VALUES ($1, $2, $3, $4)`,
		id, name, colsJSON, t.Len(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert run")
	}

	if err = tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit")
	}
	return id, nil
}
