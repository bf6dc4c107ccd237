package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/geojoin/internal/feature"
)

func pointLayer() Layer {
	return Layer{
		Name: "nearest",
		Schema: feature.Schema{
			{Name: "source_id", Type: feature.TypeInt},
			{Name: "distance", Type: feature.TypeFloat},
		},
		Geometry: feature.GeometryPoint,
		CRS:      "EPSG:2180",
	}
}

func pointRecord(id int64, x, y, d float64) feature.Record {
	return feature.Record{
		Geometry: geom.NewPointFlat(geom.XY, []float64{x, y}),
		Values:   []feature.Value{feature.Int(id), feature.Float(d)},
	}
}

func TestPostGIS_WritesInBatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"source_id", "distance", "geom"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "gis"."nearest" \(fid BIGSERIAL PRIMARY KEY, "source_id" BIGINT, "distance" DOUBLE PRECISION, geom geometry\(Point, 2180\)\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"gis", "nearest"}, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"gis", "nearest"}, cols).WillReturnResult(1)
	mock.ExpectCommit()

	s := NewPostGIS(mock, PostGISOptions{Table: "gis.nearest", BatchSize: 2})
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, pointLayer()))
	require.NoError(t, s.Append(ctx, pointRecord(1, 0, 0, 1)))
	require.NoError(t, s.Append(ctx, pointRecord(2, 1, 1, 2)))
	require.NoError(t, s.Append(ctx, pointRecord(3, 2, 2, 3)))
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, int64(3), s.total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_TableDefaultsToLayerName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "nearest"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	s := NewPostGIS(mock, PostGISOptions{})
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, pointLayer()))
	require.NoError(t, s.Close(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_AbortRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectRollback()

	s := NewPostGIS(mock, PostGISOptions{Table: "nearest"})
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, pointLayer()))
	require.NoError(t, s.Append(ctx, pointRecord(1, 0, 0, 1)))
	require.NoError(t, s.Abort())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_CreateTableError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	s := NewPostGIS(mock, PostGISOptions{Table: "nearest"})
	err = s.Create(context.Background(), pointLayer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create table nearest")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("begin failed"))

	s := NewPostGIS(mock, PostGISOptions{Table: "nearest"})
	err = s.Create(context.Background(), pointLayer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestPostGIS_CopyErrorRollsBackOnClose(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"nearest"}, []string{"source_id", "distance", "geom"}).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	s := NewPostGIS(mock, PostGISOptions{Table: "nearest"})
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, pointLayer()))
	require.NoError(t, s.Append(ctx, pointRecord(1, 0, 0, 1)))
	err = s.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO nearest")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_AppendBeforeCreate(t *testing.T) {
	s := NewPostGIS(nil, PostGISOptions{Table: "nearest"})
	err := s.Append(context.Background(), pointRecord(1, 0, 0, 1))
	assert.Error(t, err)
}

func TestPostgresType(t *testing.T) {
	assert.Equal(t, "BIGINT", postgresType(feature.TypeInt))
	assert.Equal(t, "DOUBLE PRECISION", postgresType(feature.TypeFloat))
	assert.Equal(t, "BOOLEAN", postgresType(feature.TypeBool))
	assert.Equal(t, "TEXT", postgresType(feature.TypeText))
}

func TestWithSRID(t *testing.T) {
	g, err := withSRID(geom.NewPointFlat(geom.XY, []float64{1, 2}), 2180)
	require.NoError(t, err)
	assert.Equal(t, 2180, g.SRID())

	_, err = withSRID(nil, 2180)
	assert.Error(t, err)
}
