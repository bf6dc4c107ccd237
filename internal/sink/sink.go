// Package sink writes output layers: a declared schema followed by a stream
// of records.
package sink

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geojoin/internal/feature"
)

// Layer declares what a sink is about to receive.
type Layer struct {
	Name     string
	Schema   feature.Schema
	Geometry feature.GeometryType
	CRS      string
	RunID    string
}

// Sink is a write-only destination. Create is called once before any
// Append; records arrive in the order they must be stored. Close reports the
// overall status. Abort discards whatever the sink can still discard and
// releases its resources; it is used instead of Close after a failure, and
// after a Close that failed.
type Sink interface {
	Create(ctx context.Context, layer Layer) error
	Append(ctx context.Context, rec feature.Record) error
	Close(ctx context.Context) error
	Abort() error
}

// Options configures Open.
type Options struct {
	// Stdout receives GeoJSON when the location is "-".
	Stdout io.Writer
	// Table overrides the destination table of SQLite and PostGIS sinks.
	Table string
	// BatchSize is the PostGIS COPY batch size.
	BatchSize int
	// FloatPrecision is the number of decimals of DBF floating-point fields.
	FloatPrecision int
}

// Open returns a sink for location without touching the destination; the
// destination itself is opened by Create.
func Open(location string, opts Options) (Sink, error) {
	if location == "" {
		return nil, eris.New("sink: output location is required")
	}
	if location == "-" {
		if opts.Stdout == nil {
			return nil, eris.New("sink: no stdout writer configured")
		}
		return NewGeoJSON(nopCloser{opts.Stdout}), nil
	}
	if strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://") {
		return NewPostGISURL(location, PostGISOptions{Table: opts.Table, BatchSize: opts.BatchSize}), nil
	}

	switch strings.ToLower(filepath.Ext(location)) {
	case ".geojson", ".json":
		return NewGeoJSONFile(location), nil
	case ".shp":
		return NewShapefile(location, ShapefileOptions{FloatPrecision: opts.FloatPrecision}), nil
	case ".sqlite", ".sqlite3", ".db":
		return NewSQLite(location, opts.Table), nil
	}
	return nil, eris.Errorf("sink: unsupported output %q", location)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
