// Package source reads input point layers into feature collections.
package source

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/feature"
	"github.com/sells-group/geojoin/internal/fetcher"
)

// Options configures Open.
type Options struct {
	// Name overrides the collection name, which defaults to the file name
	// without extension.
	Name string
	// Encoding is the DBF code page used when a shapefile has no .cpg sidecar.
	Encoding string
	// CRS is assigned when the input does not declare one.
	CRS string

	// XColumn, YColumn and IDColumn locate coordinates and identifiers in
	// CSV and XLSX inputs. Without an ID column rows are numbered from 0.
	XColumn  string
	YColumn  string
	IDColumn string
	// Delimiter separates CSV fields (default ',').
	Delimiter rune
	// Sheet selects an XLSX worksheet by name; the first sheet otherwise.
	Sheet string

	// Fetch configures downloads of remote inputs.
	Fetch fetcher.Options
}

func (o Options) withDefaults() Options {
	if o.Encoding == "" {
		o.Encoding = "utf-8"
	}
	if o.XColumn == "" {
		o.XColumn = "x"
	}
	if o.YColumn == "" {
		o.YColumn = "y"
	}
	return o
}

// Open reads the point layer at location. Remote locations and zip
// archives are fetched first. The returned collection has been validated.
func Open(ctx context.Context, location string, opts Options) (*feature.Collection, error) {
	opts = opts.withDefaults()

	local, err := fetcher.Fetch(ctx, location, opts.Fetch)
	if err != nil {
		return nil, eris.Wrapf(err, "source: fetch %s", location)
	}
	defer local.Cleanup()

	var coll *feature.Collection
	switch ext := strings.ToLower(filepath.Ext(local.Path)); ext {
	case ".shp":
		coll, err = ReadShapefile(local.Path, opts)
	case ".geojson", ".json":
		coll, err = ReadGeoJSONFile(local.Path, opts)
	case ".csv", ".txt":
		coll, err = ReadCSVFile(ctx, local.Path, opts)
	case ".xlsx":
		coll, err = ReadXLSX(local.Path, opts)
	default:
		return nil, eris.Errorf("source: unsupported input %q", location)
	}
	if err != nil {
		return nil, err
	}

	if coll.Name == "" {
		coll.Name = layerName(local.Path)
	}
	if opts.Name != "" {
		coll.Name = opts.Name
	}
	if coll.CRS == "" {
		coll.CRS = feature.NormalizeCRS(opts.CRS)
	}
	if err := coll.Validate(); err != nil {
		return nil, err
	}

	zap.L().Debug("source: layer read",
		zap.String("location", location),
		zap.String("layer", coll.Name),
		zap.String("crs", coll.CRS),
		zap.Int("features", coll.Len()),
		zap.Int("fields", len(coll.Schema)),
	)
	return coll, nil
}

func layerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
