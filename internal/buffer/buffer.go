// Package buffer turns point layers into layers of circular polygons.
package buffer

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/feature"
	"github.com/sells-group/geojoin/internal/sink"
)

// Defaults used when Options leaves a field unset.
const (
	DefaultRadius    = 10.0
	DefaultSegments  = 36
	DefaultIDField   = "source_id"
	DefaultLayerName = "circles"
)

// Circle returns a polygon approximating the circle of the given radius
// around (x, y). Vertex i sits at i*360/segments degrees, counter-clockwise
// from the positive x axis, and the ring is closed by repeating vertex 0.
func Circle(x, y, radius float64, segments int) (*geom.Polygon, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, eris.Errorf("buffer: radius must be positive, got %v", radius)
	}
	if segments < 3 {
		return nil, eris.Errorf("buffer: need at least 3 segments, got %d", segments)
	}

	flat := make([]float64, 0, 2*(segments+1))
	for i := 0; i < segments; i++ {
		angle := float64(i) * 360 / float64(segments) * math.Pi / 180
		flat = append(flat, x+radius*math.Cos(angle), y+radius*math.Sin(angle))
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}), nil
}

// Options configures Run.
type Options struct {
	Radius   float64
	Segments int
	// CRS is assigned to the output layer when set. Coordinates are not
	// transformed.
	CRS string
	// IDField names the output field holding the source feature ID.
	IDField string
	// Prefix is prepended to the copied source field names.
	Prefix    string
	LayerName string
	RunID     string
	Logger    *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Radius == 0 {
		o.Radius = DefaultRadius
	}
	if o.Segments == 0 {
		o.Segments = DefaultSegments
	}
	if o.IDField == "" {
		o.IDField = DefaultIDField
	}
	if o.LayerName == "" {
		o.LayerName = DefaultLayerName
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	return o
}

// Result summarizes a buffer run.
type Result struct {
	Layer    string        `json:"layer" yaml:"layer"`
	Features int           `json:"features" yaml:"features"`
	CRS      string        `json:"crs" yaml:"crs"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Run writes one circle per feature of coll to out, in collection order.
// The sink is aborted if anything fails after it was created.
func Run(ctx context.Context, coll *feature.Collection, out sink.Sink, opts Options) (*Result, error) {
	started := time.Now()
	opts = opts.withDefaults()

	if coll == nil {
		return nil, eris.New("buffer: input collection is missing")
	}
	if out == nil {
		return nil, eris.New("buffer: output sink is missing")
	}
	if err := coll.Validate(); err != nil {
		return nil, eris.Wrap(err, "buffer: invalid input")
	}
	// Reject bad parameters before the sink is touched.
	if _, err := Circle(0, 0, opts.Radius, opts.Segments); err != nil {
		return nil, err
	}

	schema := make(feature.Schema, 0, len(coll.Schema)+1)
	schema = append(schema, feature.Field{Name: opts.IDField, Type: feature.TypeInt})
	for _, f := range coll.Schema {
		schema = append(schema, feature.Field{Name: opts.Prefix + f.Name, Type: f.Type})
	}
	if err := schema.Validate(); err != nil {
		return nil, eris.Wrap(err, "buffer: output schema")
	}

	crs := coll.CRS
	if opts.CRS != "" {
		crs = feature.NormalizeCRS(opts.CRS)
		if coll.CRS != "" && feature.NormalizeCRS(coll.CRS) != crs {
			opts.Logger.Warn("buffer: assigning CRS without transforming coordinates",
				zap.String("input_crs", coll.CRS),
				zap.String("output_crs", crs),
			)
		}
	}

	layer := sink.Layer{
		Name:     opts.LayerName,
		Schema:   schema,
		Geometry: feature.GeometryPolygon,
		CRS:      crs,
		RunID:    opts.RunID,
	}
	if err := out.Create(ctx, layer); err != nil {
		return nil, eris.Wrapf(err, "buffer: create output layer %q", opts.LayerName)
	}

	fail := func(err error) (*Result, error) {
		if abortErr := out.Abort(); abortErr != nil {
			opts.Logger.Warn("buffer: abort output", zap.Error(abortErr))
		}
		return nil, err
	}

	for i, f := range coll.Features {
		if err := ctx.Err(); err != nil {
			return fail(eris.Wrap(err, "buffer: cancelled"))
		}
		poly, err := Circle(f.X, f.Y, opts.Radius, opts.Segments)
		if err != nil {
			return fail(err)
		}
		values := make([]feature.Value, 0, len(schema))
		values = append(values, feature.Int(f.ID))
		values = append(values, f.Values...)
		if err := out.Append(ctx, feature.Record{Geometry: poly, Values: values}); err != nil {
			return fail(eris.Wrapf(err, "buffer: append feature %d", i))
		}
	}

	if err := out.Close(ctx); err != nil {
		return fail(eris.Wrap(err, "buffer: close output"))
	}

	res := &Result{
		Layer:    opts.LayerName,
		Features: coll.Len(),
		CRS:      crs,
		Duration: time.Since(started),
	}
	opts.Logger.Info("buffer: complete",
		zap.String("layer", res.Layer),
		zap.Int("features", res.Features),
		zap.Float64("radius", opts.Radius),
		zap.Int("segments", opts.Segments),
	)
	return res, nil
}
