package buffer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/feature"
	"github.com/sells-group/geojoin/internal/sink"
)

func TestCircle(t *testing.T) {
	t.Parallel()
	poly, err := Circle(100, 200, 10, 36)
	require.NoError(t, err)

	require.Equal(t, 1, poly.NumLinearRings())
	ring := poly.LinearRing(0)
	require.Equal(t, 37, ring.NumCoords())

	first, last := ring.Coord(0), ring.Coord(36)
	assert.Equal(t, first, last, "ring is closed")
	assert.InDelta(t, 110, first.X(), 1e-9)
	assert.InDelta(t, 200, first.Y(), 1e-9)

	// 90 degrees is vertex 9 of 36.
	assert.InDelta(t, 100, ring.Coord(9).X(), 1e-9)
	assert.InDelta(t, 210, ring.Coord(9).Y(), 1e-9)

	for i := 0; i < 36; i++ {
		c := ring.Coord(i)
		assert.InDelta(t, 10, math.Hypot(c.X()-100, c.Y()-200), 1e-9)
	}
}

func TestCircle_Invalid(t *testing.T) {
	t.Parallel()
	_, err := Circle(0, 0, 0, 36)
	assert.Error(t, err)
	_, err = Circle(0, 0, -1, 36)
	assert.Error(t, err)
	_, err = Circle(0, 0, math.NaN(), 36)
	assert.Error(t, err)
	_, err = Circle(0, 0, 1, 2)
	assert.Error(t, err)

	tri, err := Circle(0, 0, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, tri.LinearRing(0).NumCoords())
}

func testCollection() *feature.Collection {
	return &feature.Collection{
		Name:   "wells",
		CRS:    "EPSG:2180",
		Schema: feature.Schema{{Name: "name", Type: feature.TypeText}},
		Features: []feature.Feature{
			{ID: 4, X: 0, Y: 0, Values: []feature.Value{feature.Text("a")}},
			{ID: 2, X: 50, Y: 50, Values: []feature.Value{feature.Text("b")}},
		},
	}
}

func TestRun(t *testing.T) {
	t.Parallel()
	mem := sink.NewMemory()
	res, err := Run(context.Background(), testCollection(), mem, Options{Prefix: "src_", Logger: zap.NewNop()})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Features)
	assert.Equal(t, "EPSG:2180", res.CRS)
	assert.Equal(t, feature.GeometryPolygon, mem.Layer.Geometry)
	assert.Equal(t, []string{"source_id", "src_name"}, mem.Layer.Schema.Names())
	assert.Equal(t, DefaultLayerName, mem.Layer.Name)
	require.Len(t, mem.Records, 2)

	assert.Equal(t, int64(4), mem.Records[0].Values[0].Int)
	assert.Equal(t, "a", mem.Records[0].Values[1].Text)
	assert.Equal(t, int64(2), mem.Records[1].Values[0].Int)

	poly, ok := mem.Records[1].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, DefaultSegments+1, poly.LinearRing(0).NumCoords())
	assert.InDelta(t, 60, poly.LinearRing(0).Coord(0).X(), 1e-9)
	assert.True(t, mem.Closed)
}

func TestRun_AssignsCRS(t *testing.T) {
	t.Parallel()
	mem := sink.NewMemory()
	res, err := Run(context.Background(), testCollection(), mem, Options{CRS: "epsg:2177", Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, "EPSG:2177", res.CRS)
	assert.Equal(t, "EPSG:2177", mem.Layer.CRS)

	// Coordinates are untouched.
	poly := mem.Records[0].Geometry.(*geom.Polygon)
	assert.InDelta(t, 10, poly.LinearRing(0).Coord(0).X(), 1e-9)
}

func TestRun_InvalidParameters(t *testing.T) {
	t.Parallel()
	mem := sink.NewMemory()
	_, err := Run(context.Background(), testCollection(), mem, Options{Radius: -5, Logger: zap.NewNop()})
	require.Error(t, err)
	assert.False(t, mem.Created)

	_, err = Run(context.Background(), nil, mem, Options{})
	assert.Error(t, err)

	_, err = Run(context.Background(), testCollection(), nil, Options{})
	assert.Error(t, err)
}

func TestRun_DuplicateNames(t *testing.T) {
	t.Parallel()
	coll := testCollection()
	coll.Schema[0].Name = "source_id"
	_, err := Run(context.Background(), coll, sink.NewMemory(), Options{Logger: zap.NewNop()})
	assert.Error(t, err)
}

type rejectingSink struct {
	sink.Memory
}

func (r *rejectingSink) Append(context.Context, feature.Record) error {
	return errors.New("no space left")
}

func TestRun_AppendFailureAborts(t *testing.T) {
	t.Parallel()
	rs := &rejectingSink{}
	_, err := Run(context.Background(), testCollection(), rs, Options{Logger: zap.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no space left")
	assert.True(t, rs.Aborted)
}

type uncommittableSink struct {
	sink.Memory
}

func (u *uncommittableSink) Close(context.Context) error {
	return errors.New("commit failed")
}

func TestRun_CloseFailureAborts(t *testing.T) {
	t.Parallel()
	us := &uncommittableSink{}
	_, err := Run(context.Background(), testCollection(), us, Options{Logger: zap.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit failed")
	assert.True(t, us.Aborted)
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mem := sink.NewMemory()
	_, err := Run(ctx, testCollection(), mem, Options{Logger: zap.NewNop()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, mem.Aborted)
}
