package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/geojoin/internal/feature"
)

// GeoJSON streams a FeatureCollection. Features are written as they arrive,
// so memory use does not grow with the layer.
type GeoJSON struct {
	path string
	w    io.WriteCloser
	bw   *bufio.Writer

	layer Layer
	count int
	open  bool
}

// NewGeoJSON writes to w. w is closed by Close and Abort.
func NewGeoJSON(w io.WriteCloser) *GeoJSON {
	return &GeoJSON{w: w}
}

// NewGeoJSONFile writes to a file created by Create.
func NewGeoJSONFile(path string) *GeoJSON {
	return &GeoJSON{path: path}
}

type namedCRS struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

// Create implements Sink.
func (g *GeoJSON) Create(_ context.Context, layer Layer) error {
	if g.open {
		return eris.New("sink: geojson layer already created")
	}
	if g.path != "" {
		f, err := os.Create(g.path)
		if err != nil {
			return eris.Wrapf(err, "sink: create geojson %s", g.path)
		}
		g.w = f
	}
	if g.w == nil {
		return eris.New("sink: geojson has no destination")
	}
	g.bw = bufio.NewWriter(g.w)
	g.layer = layer

	header := `{"type":"FeatureCollection"`
	if layer.Name != "" {
		name, _ := json.Marshal(layer.Name)
		header += `,"name":` + string(name)
	}
	if code, ok := feature.SRID(layer.CRS); ok {
		crs, _ := json.Marshal(namedCRS{
			Type:       "name",
			Properties: map[string]string{"name": "urn:ogc:def:crs:EPSG::" + strconv.Itoa(code)},
		})
		header += `,"crs":` + string(crs)
	}
	header += `,"features":[`
	if _, err := g.bw.WriteString(header); err != nil {
		return eris.Wrap(err, "sink: write geojson header")
	}
	g.open = true
	return nil
}

// Append implements Sink.
func (g *GeoJSON) Append(_ context.Context, rec feature.Record) error {
	if !g.open {
		return eris.New("sink: geojson layer is not open")
	}
	if len(rec.Values) != len(g.layer.Schema) {
		return eris.Errorf("sink: record has %d values, layer has %d fields", len(rec.Values), len(g.layer.Schema))
	}

	props := make(map[string]interface{}, len(rec.Values))
	for i, v := range rec.Values {
		props[g.layer.Schema[i].Name] = v.Any()
	}
	data, err := json.Marshal(&geojson.Feature{Geometry: rec.Geometry, Properties: props})
	if err != nil {
		return eris.Wrap(err, "sink: encode geojson feature")
	}

	if g.count > 0 {
		if err := g.bw.WriteByte(','); err != nil {
			return eris.Wrap(err, "sink: write geojson feature")
		}
	}
	if _, err := g.bw.Write(data); err != nil {
		return eris.Wrap(err, "sink: write geojson feature")
	}
	g.count++
	return nil
}

// Close implements Sink.
func (g *GeoJSON) Close(_ context.Context) error {
	if !g.open {
		if g.w != nil {
			return g.w.Close()
		}
		return nil
	}
	g.open = false
	if _, err := g.bw.WriteString("]}\n"); err != nil {
		_ = g.w.Close()
		return eris.Wrap(err, "sink: write geojson footer")
	}
	if err := g.bw.Flush(); err != nil {
		_ = g.w.Close()
		return eris.Wrap(err, "sink: flush geojson")
	}
	return eris.Wrap(g.w.Close(), "sink: close geojson")
}

// Abort implements Sink. A file destination is removed.
func (g *GeoJSON) Abort() error {
	g.open = false
	if g.w != nil {
		_ = g.w.Close()
	}
	if g.path != "" {
		if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
			return eris.Wrapf(err, "sink: remove %s", g.path)
		}
	}
	return nil
}

// Count returns the number of features written so far.
func (g *GeoJSON) Count() int {
	return g.count
}
