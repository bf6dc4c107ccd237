package feature

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/twpayne/go-geom"
)

// Feature is a point with an identifier and an attribute record matching
// its collection's schema.
type Feature struct {
	ID     int64
	X      float64
	Y      float64
	Values []Value
}

// Coord returns the feature's position as a go-geom coordinate.
func (f Feature) Coord() geom.Coord {
	return geom.Coord{f.X, f.Y}
}

// Collection is an ordered set of point features sharing a schema and a
// coordinate reference frame.
type Collection struct {
	Name     string
	CRS      string
	Schema   Schema
	Features []Feature

	lookupOnce sync.Once
	byID       map[int64]int
}

// Len returns the number of features.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Features)
}

// Lookup resolves an identifier to its feature. The lookup table is built on
// first use and not refreshed, so callers must not mutate Features after
// the first call.
func (c *Collection) Lookup(id int64) (Feature, bool) {
	c.lookupOnce.Do(func() {
		c.byID = make(map[int64]int, len(c.Features))
		for i, f := range c.Features {
			c.byID[f.ID] = i
		}
	})
	i, ok := c.byID[id]
	if !ok {
		return Feature{}, false
	}
	return c.Features[i], true
}

// Validate checks the schema, identifier uniqueness, coordinates and that
// every record matches the schema.
func (c *Collection) Validate() error {
	if c == nil {
		return &ValidationError{Reason: "collection is nil"}
	}
	if err := c.Schema.Validate(); err != nil {
		return withLayer(err, c.Name)
	}
	seen := make(map[int64]bool, len(c.Features))
	for i, f := range c.Features {
		if seen[f.ID] {
			return &ValidationError{Layer: c.Name, Reason: fmt.Sprintf("duplicate feature id %d", f.ID), Index: i}
		}
		seen[f.ID] = true
		if !finite(f.X) || !finite(f.Y) {
			return &ValidationError{Layer: c.Name, Reason: fmt.Sprintf("feature %d has a non-finite coordinate", f.ID), Index: i}
		}
		if len(f.Values) != len(c.Schema) {
			return &ValidationError{
				Layer:  c.Name,
				Reason: fmt.Sprintf("feature %d has %d values, schema has %d fields", f.ID, len(f.Values), len(c.Schema)),
				Index:  i,
			}
		}
		for j, v := range f.Values {
			if v.Kind != c.Schema[j].Type {
				return &ValidationError{
					Layer:  c.Name,
					Reason: fmt.Sprintf("feature %d field %q is %s, want %s", f.ID, c.Schema[j].Name, v.Kind, c.Schema[j].Type),
					Index:  i,
				}
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// GeometryType is the geometry kind a sink is declared with.
type GeometryType int

// Geometry types produced by this module.
const (
	GeometryPoint GeometryType = iota + 1
	GeometryLineString
	GeometryPolygon
)

func (g GeometryType) String() string {
	switch g {
	case GeometryPoint:
		return "Point"
	case GeometryLineString:
		return "LineString"
	case GeometryPolygon:
		return "Polygon"
	}
	return "Unknown"
}

// Record is an output feature: a geometry plus values matching a declared schema.
type Record struct {
	Geometry geom.T
	Values   []Value
}

// NormalizeCRS folds the common spellings of an EPSG reference
// ("epsg:2180", "urn:ogc:def:crs:EPSG::2180", "EPSG:2180") to "EPSG:2180".
// Anything else is returned trimmed but otherwise untouched.
func NormalizeCRS(crs string) string {
	crs = strings.TrimSpace(crs)
	if code, ok := SRID(crs); ok {
		return "EPSG:" + strconv.Itoa(code)
	}
	return crs
}

// SRID extracts the EPSG code from a CRS identifier.
func SRID(crs string) (int, bool) {
	upper := strings.ToUpper(strings.TrimSpace(crs))
	var rest string
	switch {
	case strings.HasPrefix(upper, "EPSG:"):
		rest = upper[len("EPSG:"):]
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:"):
		rest = strings.TrimLeft(upper[len("URN:OGC:DEF:CRS:EPSG:"):], ":")
		if i := strings.LastIndex(rest, ":"); i >= 0 {
			rest = rest[i+1:]
		}
	default:
		return 0, false
	}
	code, err := strconv.Atoi(rest)
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}
