package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/feature"
)

// DefaultGeoJSONCRS is the RFC 7946 reference system assumed when a
// document carries no legacy crs member.
const DefaultGeoJSONCRS = "EPSG:4326"

type featureCollectionDoc struct {
	Type     string       `json:"type"`
	Name     string       `json:"name"`
	CRS      *crsDoc      `json:"crs"`
	Features []featureDoc `json:"features"`
}

type crsDoc struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type featureDoc struct {
	ID         json.RawMessage            `json:"id"`
	Geometry   json.RawMessage            `json:"geometry"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// ReadGeoJSONFile reads a GeoJSON FeatureCollection of points from path.
func ReadGeoJSONFile(path string, opts Options) (*feature.Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	coll, err := DecodeGeoJSON(f, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "source: %s", path)
	}
	if coll.Name == "" {
		coll.Name = layerName(path)
	}
	return coll, nil
}

// DecodeGeoJSON decodes a FeatureCollection of Point features.
//
// Feature IDs come from numeric "id" members when every feature has a
// distinct integral one, and from feature positions otherwise. The schema
// holds every property name, sorted, with the narrowest type that fits all
// non-null values: bool, int, float, then text for anything else.
func DecodeGeoJSON(r io.Reader, opts Options) (*feature.Collection, error) {
	var doc featureCollectionDoc
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "source: decode geojson")
	}
	if doc.Type != "FeatureCollection" {
		return nil, &feature.ValidationError{Layer: doc.Name, Reason: fmt.Sprintf("geojson type is %q, want FeatureCollection", doc.Type)}
	}

	coll := &feature.Collection{Name: doc.Name}
	switch {
	case doc.CRS != nil && doc.CRS.Properties.Name != "":
		coll.CRS = feature.NormalizeCRS(doc.CRS.Properties.Name)
	case opts.CRS != "":
		coll.CRS = feature.NormalizeCRS(opts.CRS)
	default:
		coll.CRS = DefaultGeoJSONCRS
	}

	type row struct {
		x, y  float64
		props map[string]json.RawMessage
		id    json.RawMessage
	}
	rows := make([]row, 0, len(doc.Features))
	var nullGeoms int
	for i, fd := range doc.Features {
		if len(fd.Geometry) == 0 || string(fd.Geometry) == "null" {
			nullGeoms++
			continue
		}
		var g geom.T
		if err := geojson.Unmarshal(fd.Geometry, &g); err != nil {
			return nil, eris.Wrapf(err, "source: decode geometry of feature %d", i)
		}
		pt, ok := g.(*geom.Point)
		if !ok {
			return nil, &feature.ValidationError{
				Layer:  coll.Name,
				Reason: fmt.Sprintf("feature %d geometry is %T, want Point", i, g),
				Index:  i,
			}
		}
		if pt.Empty() {
			nullGeoms++
			continue
		}
		rows = append(rows, row{x: pt.X(), y: pt.Y(), props: fd.Properties, id: fd.ID})
	}
	if nullGeoms > 0 {
		zap.L().Warn("source: geojson features without geometry skipped",
			zap.String("layer", coll.Name),
			zap.Int("skipped", nullGeoms),
		)
	}

	keys := map[string]struct{}{}
	for _, r := range rows {
		for k := range r.props {
			keys[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	coll.Schema = make(feature.Schema, len(names))
	for i, name := range names {
		samples := make([]json.RawMessage, 0, len(rows))
		for _, r := range rows {
			samples = append(samples, r.props[name])
		}
		coll.Schema[i] = feature.Field{Name: name, Type: inferJSONType(samples)}
	}

	ids, useIDs := numericIDs(rows, func(r row) json.RawMessage { return r.id })
	coll.Features = make([]feature.Feature, len(rows))
	for i, r := range rows {
		id := int64(i)
		if useIDs {
			id = ids[i]
		}
		values := make([]feature.Value, len(coll.Schema))
		for j, f := range coll.Schema {
			v, err := jsonValue(f.Type, r.props[f.Name])
			if err != nil {
				return nil, &feature.ValidationError{Layer: coll.Name, Reason: fmt.Sprintf("feature %d property %q: %v", i, f.Name, err), Index: i}
			}
			values[j] = v
		}
		coll.Features[i] = feature.Feature{ID: id, X: r.x, Y: r.y, Values: values}
	}
	return coll, nil
}

// numericIDs returns the integral "id" of every row when all are present
// and distinct.
func numericIDs[T any](rows []T, id func(T) json.RawMessage) ([]int64, bool) {
	if len(rows) == 0 {
		return nil, false
	}
	ids := make([]int64, len(rows))
	seen := make(map[int64]bool, len(rows))
	for i, r := range rows {
		raw := bytes.TrimSpace(id(r))
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil || seen[n] {
			return nil, false
		}
		seen[n] = true
		ids[i] = n
	}
	return ids, true
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || string(t) == "null"
}

func inferJSONType(samples []json.RawMessage) feature.FieldType {
	isBool, isInt, isFloat := true, true, true
	seen := false
	for _, raw := range samples {
		if isNull(raw) {
			continue
		}
		seen = true
		t := string(bytes.TrimSpace(raw))
		switch {
		case t == "true" || t == "false":
			isInt, isFloat = false, false
		case t[0] == '-' || (t[0] >= '0' && t[0] <= '9'):
			isBool = false
			if _, err := strconv.ParseInt(t, 10, 64); err != nil {
				isInt = false
			}
			if _, err := strconv.ParseFloat(t, 64); err != nil {
				isFloat = false
			}
		default:
			return feature.TypeText
		}
	}
	switch {
	case !seen:
		return feature.TypeText
	case isBool:
		return feature.TypeBool
	case isInt:
		return feature.TypeInt
	case isFloat:
		return feature.TypeFloat
	}
	return feature.TypeText
}

func jsonValue(kind feature.FieldType, raw json.RawMessage) (feature.Value, error) {
	if isNull(raw) {
		return feature.Null(kind), nil
	}
	t := bytes.TrimSpace(raw)
	switch kind {
	case feature.TypeBool:
		return feature.Bool(string(t) == "true"), nil
	case feature.TypeInt:
		n, err := strconv.ParseInt(string(t), 10, 64)
		if err != nil {
			return feature.Value{}, err
		}
		return feature.Int(n), nil
	case feature.TypeFloat:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return feature.Value{}, err
		}
		return feature.Float(f), nil
	}
	if t[0] == '"' {
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return feature.Value{}, err
		}
		return feature.Text(s), nil
	}
	// Numbers, booleans, objects and arrays in a text column keep their JSON form.
	return feature.Text(string(t)), nil
}
