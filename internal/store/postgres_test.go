package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/zonal-cli/internal/feature"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_Save(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS zonal_runs`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "landcover" \("run_id" TEXT NOT NULL, "zone" TEXT, "mode" DOUBLE PRECISION, "mean" DOUBLE PRECISION\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"landcover"}, []string{"run_id", "zone", "mode", "mean"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO zonal_runs`).
		WithArgs(pgxmock.AnyArg(), "landcover", pgxmock.AnyArg(), 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	id, err := s.Save(context.Background(), "landcover", resultTable(t))
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS zonal_runs`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "landcover"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"landcover"}, []string{"run_id", "zone", "mode", "mean"}).
		WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err := s.Save(context.Background(), "landcover", resultTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO landcover")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin().WillReturnError(fmt.Errorf("no connection"))

	_, err := s.Save(context.Background(), "landcover", resultTable(t))
	assert.ErrorContains(t, err, "begin tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InvalidTable(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	_, err := s.Save(context.Background(), "1bad", resultTable(t))
	assert.ErrorContains(t, err, "invalid table name")
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS zonal_runs`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, s.Close())
}

func TestPostGISSource_Features(t *testing.T) {
	_, mock := newMockPostgresStore(t)

	sq := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}).SetSRID(4326)
	wkb, err := feature.EncodeEWKB(sq)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT ST_AsEWKB\("geom"\), "geoid", "name" FROM tiger\.county ORDER BY "geoid"`).
		WillReturnRows(mock.NewRows([]string{"st_asewkb", "geoid", "name"}).
			AddRow(wkb, "01001", "Autauga").
			AddRow([]byte{0x01}, "01003", "Baldwin"))

	src := &PostGISSource{
		Pool:    mock,
		Table:   "tiger.county",
		Columns: []string{"geoid", "name"},
		OrderBy: "geoid",
	}
	fs, err := src.Features(context.Background())
	require.NoError(t, err)
	require.Len(t, fs, 2)

	assert.Equal(t, sq.FlatCoords(), fs[0].Geometry.FlatCoords())
	name, _ := fs[0].Get("name")
	assert.Equal(t, "Autauga", name)

	// Undecodable geometry is kept so that feature order is preserved.
	assert.Nil(t, fs[1].Geometry)
	assert.Equal(t, []string{"geoid", "name"}, fs[1].Names())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISSource_QueryError(t *testing.T) {
	_, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT`).WillReturnError(fmt.Errorf("relation does not exist"))

	src := &PostGISSource{Pool: mock, Table: "zones"}
	_, err := src.Features(context.Background())
	assert.ErrorContains(t, err, "postgis: query zones")
}

func TestPostGISSource_InvalidTable(t *testing.T) {
	src := &PostGISSource{Table: "zones; --"}
	_, err := src.Features(context.Background())
	assert.ErrorContains(t, err, "invalid table name")
}
