package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/db"
	"github.com/sells-group/geojoin/internal/feature"
)

const defaultPostGISBatch = 5000

// PostGISOptions configures the PostGIS sink.
type PostGISOptions struct {
	// Table is the destination, optionally schema-qualified. Defaults to the layer name.
	Table string
	// BatchSize is the number of rows per COPY (default 5000).
	BatchSize int
}

// PostGIS writes a layer into a PostGIS table inside one transaction. The
// table is created if missing; rows are buffered and flushed with COPY.
type PostGIS struct {
	url  string
	pool db.Pool
	own  bool
	opts PostGISOptions

	tx      pgx.Tx
	layer   Layer
	srid    int
	columns []string
	rows    [][]any
	total   int64
}

// NewPostGIS writes through an existing pool. The pool is not closed by the sink.
func NewPostGIS(pool db.Pool, opts PostGISOptions) *PostGIS {
	return &PostGIS{pool: pool, opts: withPostGISDefaults(opts)}
}

// NewPostGISURL connects to url when the layer is created and closes the
// pool when the sink is closed.
func NewPostGISURL(url string, opts PostGISOptions) *PostGIS {
	return &PostGIS{url: url, own: true, opts: withPostGISDefaults(opts)}
}

func withPostGISDefaults(opts PostGISOptions) PostGISOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultPostGISBatch
	}
	return opts
}

// Create implements Sink.
func (p *PostGIS) Create(ctx context.Context, layer Layer) error {
	if p.tx != nil {
		return eris.New("sink: postgis layer already created")
	}
	if p.opts.Table == "" {
		p.opts.Table = layer.Name
	}
	if p.opts.Table == "" {
		return eris.New("sink: postgis needs a table or layer name")
	}

	if p.pool == nil {
		pool, err := db.Connect(ctx, p.url)
		if err != nil {
			return eris.Wrap(err, "sink: connect postgis")
		}
		p.pool = pool
	}

	p.srid, _ = feature.SRID(layer.CRS)
	p.layer = layer
	p.columns = append(layer.Schema.Names(), "geom")

	cols := make([]string, 0, len(layer.Schema)+2)
	cols = append(cols, "fid BIGSERIAL PRIMARY KEY")
	for _, f := range layer.Schema {
		cols = append(cols, pgx.Identifier{f.Name}.Sanitize()+" "+postgresType(f.Type))
	}
	cols = append(cols, fmt.Sprintf("geom geometry(%s, %d)", layer.Geometry, p.srid))
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", db.SanitizeTable(p.opts.Table), strings.Join(cols, ", "))

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		p.releasePool()
		return eris.Wrap(err, "sink: postgis begin tx")
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		_ = tx.Rollback(ctx)
		p.releasePool()
		return eris.Wrapf(err, "sink: postgis create table %s", p.opts.Table)
	}
	p.tx = tx
	return nil
}

// Append implements Sink.
func (p *PostGIS) Append(ctx context.Context, rec feature.Record) error {
	if p.tx == nil {
		return eris.New("sink: postgis layer is not open")
	}
	if len(rec.Values) != len(p.layer.Schema) {
		return eris.Errorf("sink: record has %d values, layer has %d fields", len(rec.Values), len(p.layer.Schema))
	}

	g, err := withSRID(rec.Geometry, p.srid)
	if err != nil {
		return err
	}
	blob, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return eris.Wrap(err, "sink: postgis encode geometry")
	}

	row := make([]any, 0, len(rec.Values)+1)
	for _, v := range rec.Values {
		row = append(row, v.Any())
	}
	row = append(row, blob)
	p.rows = append(p.rows, row)

	if len(p.rows) >= p.opts.BatchSize {
		return p.flush(ctx)
	}
	return nil
}

func (p *PostGIS) flush(ctx context.Context) error {
	n, err := db.CopyFrom(ctx, p.tx, p.opts.Table, p.columns, p.rows)
	if err != nil {
		return err
	}
	p.total += n
	zap.L().Debug("sink: postgis batch copied",
		zap.String("table", p.opts.Table),
		zap.Int64("rows", n),
		zap.Int64("total", p.total),
	)
	p.rows = p.rows[:0]
	return nil
}

// Close implements Sink. Buffered rows are copied and the transaction committed.
func (p *PostGIS) Close(ctx context.Context) error {
	if p.tx == nil {
		p.releasePool()
		return nil
	}
	defer p.releasePool()

	if err := p.flush(ctx); err != nil {
		_ = p.tx.Rollback(ctx)
		p.tx = nil
		return err
	}
	err := p.tx.Commit(ctx)
	p.tx = nil
	if err != nil {
		return eris.Wrap(err, "sink: postgis commit")
	}
	return nil
}

// Abort implements Sink and rolls the transaction back.
func (p *PostGIS) Abort() error {
	defer p.releasePool()
	if p.tx == nil {
		return nil
	}
	err := p.tx.Rollback(context.Background())
	p.tx = nil
	p.rows = nil
	if err != nil {
		return eris.Wrap(err, "sink: postgis rollback")
	}
	return nil
}

func (p *PostGIS) releasePool() {
	if p.own && p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}

func postgresType(t feature.FieldType) string {
	switch t {
	case feature.TypeInt:
		return "BIGINT"
	case feature.TypeFloat:
		return "DOUBLE PRECISION"
	case feature.TypeBool:
		return "BOOLEAN"
	}
	return "TEXT"
}

func withSRID(g geom.T, srid int) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Point:
		return t.SetSRID(srid), nil
	case *geom.LineString:
		return t.SetSRID(srid), nil
	case *geom.Polygon:
		return t.SetSRID(srid), nil
	case nil:
		return nil, eris.New("sink: record has no geometry")
	}
	return nil, eris.Errorf("sink: postgis cannot store %T", g)
}
