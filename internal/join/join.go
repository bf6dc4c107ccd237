// Package join links every point of a source layer to its nearest point in
// a reference layer and writes the connecting lines to a sink.
package join

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/geojoin/internal/feature"
	"github.com/sells-group/geojoin/internal/sink"
	"github.com/sells-group/geojoin/internal/spatial"
)

// Defaults used by DefaultOptions.
const (
	DefaultPrecision = 4
	DefaultBatchSize = 1024
	DefaultLayerName = "nearest_neighbor"
)

// Algorithm identifies an operation to people picking it from a list.
type Algorithm struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Group       string `json:"group" yaml:"group"`
	GroupID     string `json:"group_id" yaml:"group_id"`
}

// NearestNeighbor describes the join.
var NearestNeighbor = Algorithm{
	Name:        "nearest_neighbor",
	DisplayName: "Nearest neighbor",
	Group:       "Spatial analysis",
	GroupID:     "spatial_analysis",
}

// Options tunes a join. Start from DefaultOptions: the zero value rounds
// distances to whole units.
type Options struct {
	// Workers is the number of goroutines running nearest lookups. 1 or
	// less runs everything on the calling goroutine.
	Workers int
	// BatchSize is the number of source features looked up before their
	// records are appended.
	BatchSize int
	// Precision is the number of decimals kept in distances.
	Precision int
	// Index selects and tunes the spatial index over the reference layer.
	Index spatial.Options
	// Names controls the output field names. The zero value selects
	// DefaultFieldNames.
	Names FieldNames
	// LayerName is the name of the output layer.
	LayerName string
	// RunID is passed through to the sink layer.
	RunID string
	// Logger defaults to zap.L().
	Logger *zap.Logger
}

// DefaultOptions returns the options used by the CLI when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Workers:   1,
		BatchSize: DefaultBatchSize,
		Precision: DefaultPrecision,
		Index:     spatial.Options{Kind: spatial.KindRTree},
		Names:     DefaultFieldNames(),
		LayerName: DefaultLayerName,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Names == (FieldNames{}) {
		o.Names = DefaultFieldNames()
	}
	if o.LayerName == "" {
		o.LayerName = DefaultLayerName
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	return o
}

// Result summarizes a completed join.
type Result struct {
	Layer          string         `json:"layer" yaml:"layer"`
	Schema         feature.Schema `json:"-" yaml:"-"`
	Source         int            `json:"source" yaml:"source"`
	Reference      int            `json:"reference" yaml:"reference"`
	Matched        int            `json:"matched" yaml:"matched"`
	Skipped        int            `json:"skipped" yaml:"skipped"`
	EmptyReference bool           `json:"empty_reference" yaml:"empty_reference"`
	Duration       time.Duration  `json:"duration" yaml:"duration"`
}

// Line is one joined output feature.
type Line struct {
	SourceID    int64
	ReferenceID int64
	Distance    float64
	Geometry    *geom.LineString
	Values      []feature.Value
}

// Record converts the line to a sink record.
func (l *Line) Record() feature.Record {
	return feature.Record{Geometry: l.Geometry, Values: l.Values}
}

// BuildIndex indexes the reference collection by feature ID. An empty
// collection yields an index that matches nothing.
func BuildIndex(ref *feature.Collection, opts spatial.Options) (spatial.Index, error) {
	if ref == nil {
		return nil, &InputError{Reason: "reference collection is missing"}
	}
	points := make([]spatial.Point, len(ref.Features))
	for i, f := range ref.Features {
		points[i] = spatial.Point{ID: f.ID, X: f.X, Y: f.Y}
	}
	idx, err := spatial.Build(points, opts)
	if err != nil {
		return nil, eris.Wrap(err, "join: build index")
	}
	return idx, nil
}

// Nearest returns the identifier of the indexed point closest to (x, y).
// Equidistant points resolve to the one indexed first, so repeated queries
// give the same answer. It reports false only for an empty index.
func Nearest(idx spatial.Index, x, y float64) (int64, bool) {
	ids := idx.Nearest(x, y, 1)
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// Round rounds d to the given number of decimals, halves to even.
func Round(d float64, precision int) float64 {
	if precision < 0 {
		return d
	}
	scale := math.Pow(10, float64(precision))
	r := math.RoundToEven(d*scale) / scale
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return d
	}
	return r
}

// engine holds the immutable state shared by lookup workers.
type engine struct {
	src       *feature.Collection
	ref       *feature.Collection
	idx       spatial.Index
	width     int
	precision int
}

// line builds the output for the source feature at position i, or nil when
// nothing matches.
func (e *engine) line(i int) (*Line, error) {
	f := e.src.Features[i]
	refID, ok := Nearest(e.idx, f.X, f.Y)
	if !ok {
		return nil, nil
	}
	r, ok := e.ref.Lookup(refID)
	if !ok {
		return nil, eris.Errorf("join: index returned unknown reference id %d", refID)
	}

	dist := Round(spatial.Distance(f.X, f.Y, r.X, r.Y), e.precision)

	values := make([]feature.Value, 0, e.width)
	values = append(values, feature.Int(f.ID), feature.Int(r.ID), feature.Float(dist))
	values = append(values, f.Values...)
	values = append(values, r.Values...)

	return &Line{
		SourceID:    f.ID,
		ReferenceID: r.ID,
		Distance:    dist,
		Geometry:    geom.NewLineStringFlat(geom.XY, []float64{f.X, f.Y, r.X, r.Y}),
		Values:      values,
	}, nil
}

// lookupBatch fills out[k] with the line for source position start+k.
func (e *engine) lookupBatch(ctx context.Context, start int, out []*Line, workers int) error {
	if workers <= 1 || len(out) < 2 {
		for k := range out {
			if err := ctx.Err(); err != nil {
				return err
			}
			l, err := e.line(start + k)
			if err != nil {
				return err
			}
			out[k] = l
		}
		return nil
	}

	chunk := (len(out) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(out); lo += chunk {
		hi := min(lo+chunk, len(out))
		g.Go(func() error {
			for k := lo; k < hi; k++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				l, err := e.line(start + k)
				if err != nil {
					return err
				}
				out[k] = l
			}
			return nil
		})
	}
	return g.Wait()
}

// Join links every source feature to its nearest reference feature and
// writes one line per match to out, in source order. Source features are
// skipped only when the reference collection is empty. The sink is closed
// on success and aborted on any failure after it was created.
func Join(ctx context.Context, src, ref *feature.Collection, out sink.Sink, opts Options) (*Result, error) {
	started := time.Now()
	opts = opts.withDefaults()
	log := opts.Logger.With(zap.String("layer", opts.LayerName))

	if src == nil {
		return nil, &InputError{Reason: "source collection is missing"}
	}
	if ref == nil {
		return nil, &InputError{Reason: "reference collection is missing"}
	}
	if out == nil {
		return nil, &InputError{Reason: "output sink is missing"}
	}
	if err := src.Validate(); err != nil {
		return nil, &InputError{Reason: "source collection", Err: err}
	}
	if err := ref.Validate(); err != nil {
		return nil, &InputError{Reason: "reference collection", Err: err}
	}
	if src.CRS != "" && ref.CRS != "" && feature.NormalizeCRS(src.CRS) != feature.NormalizeCRS(ref.CRS) {
		log.Warn("join: source and reference CRS differ; coordinates are used as given",
			zap.String("source_crs", src.CRS),
			zap.String("reference_crs", ref.CRS),
		)
	}

	schema, err := OutputSchema(src.Schema, ref.Schema, opts.Names)
	if err != nil {
		return nil, err
	}

	idx, err := BuildIndex(ref, opts.Index)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Layer:     opts.LayerName,
		Schema:    schema,
		Source:    src.Len(),
		Reference: ref.Len(),
	}
	if ref.Len() == 0 {
		res.EmptyReference = true
		log.Warn("join: reference collection is empty, no source point will be matched",
			zap.Int("source", src.Len()),
		)
	}

	layer := sink.Layer{
		Name:     opts.LayerName,
		Schema:   schema,
		Geometry: feature.GeometryLineString,
		CRS:      src.CRS,
		RunID:    opts.RunID,
	}
	if err := out.Create(ctx, layer); err != nil {
		return nil, &SinkCreationError{Layer: opts.LayerName, Err: err}
	}

	fail := func(err error) (*Result, error) {
		if abortErr := out.Abort(); abortErr != nil {
			log.Warn("join: abort output", zap.Error(abortErr))
		}
		return nil, err
	}

	e := &engine{src: src, ref: ref, idx: idx, width: len(schema), precision: opts.Precision}
	progress := rate.Sometimes{First: 1, Interval: 5 * time.Second}
	batch := make([]*Line, min(opts.BatchSize, max(src.Len(), 1)))

	for start := 0; start < src.Len(); start += len(batch) {
		lines := batch[:min(len(batch), src.Len()-start)]
		clear(lines)

		if err := e.lookupBatch(ctx, start, lines, opts.Workers); err != nil {
			if ctx.Err() != nil {
				return fail(eris.Wrap(ctx.Err(), "join: cancelled"))
			}
			return fail(err)
		}

		for k, l := range lines {
			if l == nil {
				res.Skipped++
				continue
			}
			if err := out.Append(ctx, l.Record()); err != nil {
				return fail(&AppendError{Index: start + k, SourceID: l.SourceID, Err: err})
			}
			res.Matched++
		}

		progress.Do(func() {
			log.Info("join: progress",
				zap.Int("processed", start+len(lines)),
				zap.Int("total", src.Len()),
			)
		})
	}

	if err := out.Close(ctx); err != nil {
		return fail(eris.Wrap(err, "join: close output"))
	}

	res.Duration = time.Since(started)
	log.Info("join: complete",
		zap.Int("source", res.Source),
		zap.Int("reference", res.Reference),
		zap.Int("matched", res.Matched),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}
