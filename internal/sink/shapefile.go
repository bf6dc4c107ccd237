package sink

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/feature"
)

// DBF column widths.
const (
	dbfIntSize   = 20
	dbfFloatSize = 32
	dbfTextSize  = 254
)

// ShapefileOptions configures the Shapefile sink.
type ShapefileOptions struct {
	// FloatPrecision is the number of decimals stored for float fields (default 8).
	FloatPrecision int
}

// Shapefile writes an ESRI Shapefile (.shp, .shx, .dbf, a UTF-8 .cpg and a
// .prj when the layer CRS is one prjWKT knows).
type Shapefile struct {
	path string
	opts ShapefileOptions

	w     *shp.Writer
	layer Layer
	names []string
	prj   string
}

// NewShapefile writes to path, which must end in .shp.
func NewShapefile(path string, opts ShapefileOptions) *Shapefile {
	if opts.FloatPrecision <= 0 {
		opts.FloatPrecision = 8
	}
	return &Shapefile{path: path, opts: opts}
}

// FieldNames returns the DBF names chosen for the layer's fields, in schema order.
func (s *Shapefile) FieldNames() []string {
	return s.names
}

// Create implements Sink.
func (s *Shapefile) Create(_ context.Context, layer Layer) error {
	if s.w != nil {
		return eris.New("sink: shapefile layer already created")
	}

	var shapeType shp.ShapeType
	switch layer.Geometry {
	case feature.GeometryPoint:
		shapeType = shp.POINT
	case feature.GeometryLineString:
		shapeType = shp.POLYLINE
	case feature.GeometryPolygon:
		shapeType = shp.POLYGON
	default:
		return eris.Errorf("sink: shapefile cannot store %s geometries", layer.Geometry)
	}

	w, err := shp.Create(s.path, shapeType)
	if err != nil {
		return eris.Wrapf(err, "sink: create shapefile %s", s.path)
	}

	s.names = dbfNames(layer.Schema.Names())
	fields := make([]shp.Field, len(layer.Schema))
	for i, f := range layer.Schema {
		switch f.Type {
		case feature.TypeInt:
			fields[i] = shp.NumberField(s.names[i], dbfIntSize)
		case feature.TypeFloat:
			fields[i] = shp.FloatField(s.names[i], dbfFloatSize, uint8(s.opts.FloatPrecision))
		case feature.TypeBool:
			fields[i] = shp.StringField(s.names[i], 1)
			fields[i].Fieldtype = 'L'
		default:
			fields[i] = shp.StringField(s.names[i], dbfTextSize)
		}
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return eris.Wrap(err, "sink: set shapefile fields")
	}

	s.prj = ""
	if layer.CRS != "" {
		prj, ok := prjWKT(layer.CRS)
		if !ok {
			zap.L().Warn("sink: no projection definition for crs, shapefile written without .prj",
				zap.String("path", s.path),
				zap.String("crs", layer.CRS),
			)
		}
		s.prj = prj
	}

	s.w = w
	s.layer = layer
	return nil
}

// Append implements Sink.
func (s *Shapefile) Append(_ context.Context, rec feature.Record) error {
	if s.w == nil {
		return eris.New("sink: shapefile layer is not open")
	}
	if len(rec.Values) != len(s.layer.Schema) {
		return eris.Errorf("sink: record has %d values, layer has %d fields", len(rec.Values), len(s.layer.Schema))
	}

	shape, err := toShape(rec.Geometry)
	if err != nil {
		return err
	}
	row := int(s.w.Write(shape))

	for i, v := range rec.Values {
		if err := s.w.WriteAttribute(row, i, dbfValue(v)); err != nil {
			return eris.Wrapf(err, "sink: write shapefile attribute %s", s.names[i])
		}
	}
	return nil
}

// Close implements Sink.
func (s *Shapefile) Close(_ context.Context) error {
	if s.w == nil {
		return nil
	}
	s.w.Close()
	s.w = nil

	// go-shp names the table <base>dbf, without the dot.
	base := shapeBase(s.path)
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrap(err, "sink: rename shapefile attribute table")
	}
	if err := os.WriteFile(base+".cpg", []byte("UTF-8"), 0o644); err != nil {
		return eris.Wrap(err, "sink: write shapefile code page")
	}
	if s.prj != "" {
		if err := os.WriteFile(base+".prj", []byte(s.prj), 0o644); err != nil {
			return eris.Wrap(err, "sink: write shapefile projection")
		}
	}
	return nil
}

// Abort implements Sink and removes the partially written files.
func (s *Shapefile) Abort() error {
	if s.w != nil {
		s.w.Close()
		s.w = nil
	}
	base := shapeBase(s.path)
	for _, ext := range []string{".shp", ".shx", "dbf", ".dbf", ".cpg", ".prj"} {
		if err := os.Remove(base + ext); err != nil && !os.IsNotExist(err) {
			return eris.Wrapf(err, "sink: remove %s", base+ext)
		}
	}
	return nil
}

// shapeBase strips the .shp extension the way shp.Create does.
func shapeBase(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".shp") {
		return path[:len(path)-len(".shp")]
	}
	return path
}

// dbfValue converts a value to one of the types go-shp can write.
func dbfValue(v feature.Value) interface{} {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case feature.TypeInt:
		return int(v.Int)
	case feature.TypeFloat:
		return v.Float
	case feature.TypeBool:
		if v.Bool {
			return "T"
		}
		return "F"
	}
	return truncateUTF8(v.Text, dbfTextSize)
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// toShape converts go-geom geometries to go-shp shapes.
func toShape(g geom.T) (shp.Shape, error) {
	switch t := g.(type) {
	case *geom.Point:
		return &shp.Point{X: t.X(), Y: t.Y()}, nil
	case *geom.LineString:
		return shp.NewPolyLine([][]shp.Point{shpPoints(t.Coords())}), nil
	case *geom.Polygon:
		rings := make([][]shp.Point, t.NumLinearRings())
		for i := range rings {
			// Shapefile outer rings run clockwise, holes counter-clockwise.
			rings[i] = orient(shpPoints(t.LinearRing(i).Coords()), i == 0)
		}
		p := shp.Polygon(*shp.NewPolyLine(rings))
		return &p, nil
	case nil:
		return nil, eris.New("sink: record has no geometry")
	}
	return nil, eris.Errorf("sink: shapefile cannot store %T", g)
}

func shpPoints(coords []geom.Coord) []shp.Point {
	pts := make([]shp.Point, len(coords))
	for i, c := range coords {
		pts[i] = shp.Point{X: c.X(), Y: c.Y()}
	}
	return pts
}

// orient reverses ring when its winding does not match clockwise.
func orient(ring []shp.Point, clockwise bool) []shp.Point {
	var area float64
	for i := 0; i+1 < len(ring); i++ {
		area += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	if (area < 0) == clockwise {
		return ring
	}
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
	return ring
}
