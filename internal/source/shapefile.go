package source

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/geojoin/internal/feature"
)

// prjAuthority finds EPSG codes in WKT1 (AUTHORITY["EPSG","2180"]) and
// WKT2 (ID["EPSG",2180]) projection files.
var prjAuthority = regexp.MustCompile(`(?i)(?:AUTHORITY|ID)\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)

// ReadShapefile reads a point shapefile. Feature IDs are record positions.
// Attribute bytes are decoded with the code page named in the .cpg sidecar,
// falling back to opts.Encoding.
func ReadShapefile(path string, opts Options) (*feature.Collection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	name := layerName(path)
	switch reader.GeometryType {
	case shp.POINT, shp.POINTZ, shp.POINTM:
	default:
		return nil, &feature.ValidationError{
			Layer:  name,
			Reason: "shapefile geometry is " + shapeTypeName(reader.GeometryType) + ", want points",
		}
	}

	charset := opts.Encoding
	if cpg, err := os.ReadFile(sidecar(path, ".cpg")); err == nil {
		charset = strings.TrimSpace(string(cpg))
	}
	dec, err := dbfDecoder(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "source: shapefile %s", path)
	}

	fields := reader.Fields()
	schema := make(feature.Schema, len(fields))
	for i, f := range fields {
		fieldName := strings.TrimRight(f.String(), "\x00")
		if dec != nil {
			if decoded, err := dec.String(fieldName); err == nil {
				fieldName = decoded
			}
		}
		schema[i] = feature.Field{Name: fieldName, Type: dbfFieldType(f)}
	}

	coll := &feature.Collection{
		Name:   name,
		CRS:    prjCRS(sidecar(path, ".prj")),
		Schema: schema,
	}

	var nullShapes, badValues int
	for reader.Next() {
		idx, shape := reader.Shape()

		var x, y float64
		switch s := shape.(type) {
		case *shp.Point:
			x, y = s.X, s.Y
		case *shp.PointZ:
			x, y = s.X, s.Y
		case *shp.PointM:
			x, y = s.X, s.Y
		default:
			nullShapes++
			continue
		}

		values := make([]feature.Value, len(schema))
		for i, f := range schema {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if dec != nil && raw != "" {
				if decoded, err := dec.String(raw); err == nil {
					raw = decoded
				}
			}
			v, err := dbfValue(f.Type, raw)
			if err != nil {
				badValues++
				v = feature.Null(f.Type)
			}
			values[i] = v
		}

		coll.Features = append(coll.Features, feature.Feature{ID: int64(idx), X: x, Y: y, Values: values})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "source: read shapefile %s", path)
	}

	if nullShapes > 0 || badValues > 0 {
		zap.L().Warn("source: shapefile records skipped or nulled",
			zap.String("layer", name),
			zap.Int("null_shapes", nullShapes),
			zap.Int("unparsable_values", badValues),
		)
	}
	return coll, nil
}

func sidecar(path, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if _, err := os.Stat(base + ext); err == nil {
		return base + ext
	}
	return base + strings.ToUpper(ext)
}

// dbfDecoder resolves a .cpg code page name. UTF-8 needs no decoding and
// yields a nil decoder.
func dbfDecoder(charset string) (*encoding.Decoder, error) {
	name := strings.ToLower(strings.TrimSpace(charset))
	name = strings.TrimPrefix(name, "ansi ")
	if _, err := strconv.Atoi(name); err == nil {
		// Bare code page numbers as written by ArcGIS.
		switch name {
		case "65001":
			name = "utf-8"
		case "88591":
			name = "iso-8859-1"
		case "88592":
			name = "iso-8859-2"
		default:
			name = "cp" + name
		}
	}
	if name == "" || name == "utf-8" || name == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "unsupported code page %q", charset)
	}
	return enc.NewDecoder(), nil
}

func dbfFieldType(f shp.Field) feature.FieldType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 {
			return feature.TypeInt
		}
		return feature.TypeFloat
	case 'F', 'O':
		return feature.TypeFloat
	case 'I':
		return feature.TypeInt
	case 'L':
		return feature.TypeBool
	}
	// C, D, M and anything else.
	return feature.TypeText
}

func dbfValue(kind feature.FieldType, raw string) (feature.Value, error) {
	switch kind {
	case feature.TypeBool:
		if raw == "?" {
			return feature.Null(kind), nil
		}
	case feature.TypeInt, feature.TypeFloat:
		// Overflowed numeric cells are filled with asterisks.
		if strings.Trim(raw, "*") == "" {
			return feature.Null(kind), nil
		}
	}
	return feature.ParseValue(kind, raw)
}

// prjCRS extracts the EPSG code of a .prj file. Projection files without
// an authority yield an empty CRS.
func prjCRS(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	matches := prjAuthority.FindAllStringSubmatch(string(data), -1)
	if len(matches) == 0 {
		zap.L().Debug("source: .prj has no EPSG authority", zap.String("path", path))
		return ""
	}
	// The authority of the outermost CRS comes last in WKT1.
	return "EPSG:" + matches[len(matches)-1][1]
}

func shapeTypeName(t shp.ShapeType) string {
	switch t {
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return "polyline"
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return "polygon"
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return "multipoint"
	case shp.NULL:
		return "null"
	}
	return "type " + strconv.Itoa(int(t))
}
