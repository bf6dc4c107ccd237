package sink

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{Stdout: &buf, Table: "t"}

	tests := []struct {
		location string
		want     any
	}{
		{"-", &GeoJSON{}},
		{"out.geojson", &GeoJSON{}},
		{"out.JSON", &GeoJSON{}},
		{"out.shp", &Shapefile{}},
		{"out.sqlite", &SQLite{}},
		{"out.db", &SQLite{}},
		{"postgres://localhost/gis", &PostGIS{}},
		{"postgresql://localhost/gis", &PostGIS{}},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			s, err := Open(tt.location, opts)
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("", Options{})
	assert.Error(t, err)

	_, err = Open("-", Options{})
	assert.Error(t, err)

	_, err = Open("out.kml", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output")
}

func TestOpen_PostGISDefaults(t *testing.T) {
	s, err := Open("postgres://localhost/gis", Options{})
	require.NoError(t, err)
	pg := s.(*PostGIS)
	assert.Equal(t, defaultPostGISBatch, pg.opts.BatchSize)
	assert.True(t, pg.own)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	assert.Error(t, m.Append(ctx, pointRecord(1, 0, 0, 0)))

	require.NoError(t, m.Create(ctx, pointLayer()))
	assert.Error(t, m.Create(ctx, pointLayer()))
	require.NoError(t, m.Append(ctx, pointRecord(1, 0, 0, 0)))

	short := pointRecord(2, 0, 0, 0)
	short.Values = short.Values[:1]
	assert.Error(t, m.Append(ctx, short))

	require.NoError(t, m.Close(ctx))
	assert.True(t, m.Closed)
	assert.Len(t, m.Records, 1)
	assert.Error(t, m.Append(ctx, pointRecord(3, 0, 0, 0)))

	require.NoError(t, m.Abort())
	assert.True(t, m.Aborted)
	assert.Empty(t, m.Records)
}

func TestDBFNames(t *testing.T) {
	got := dbfNames([]string{
		"ID_Warstwa1",
		"Odległość",
		"reference_a",
		"reference_b",
		"reference_c",
		"Żółw ß",
		"",
		"REFERENCE_",
	})
	assert.Equal(t, []string{
		"ID_Warstwa",
		"Odleglosc",
		"reference_",
		"referenc_1",
		"referenc_2",
		"Zolw_ss",
		"field",
		"REFERENC_3",
	}, got)
	for _, n := range got {
		assert.LessOrEqual(t, len(n), maxDBFName)
	}

	// DBF readers compare names without case, so these collide.
	assert.Equal(t, []string{"Name", "NAME_1", "name_2"}, dbfNames([]string{"Name", "NAME", "name"}))
}
