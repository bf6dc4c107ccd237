package main

import (
	"time"

	"github.com/sells-group/geojoin/internal/buffer"
	"github.com/sells-group/geojoin/internal/config"
	"github.com/sells-group/geojoin/internal/fetcher"
	"github.com/sells-group/geojoin/internal/join"
	"github.com/sells-group/geojoin/internal/source"
	"github.com/sells-group/geojoin/internal/spatial"
)

// joinOptions maps configuration onto join options.
func joinOptions(c *config.Config) join.Options {
	opts := join.DefaultOptions()
	opts.Workers = c.Join.Workers
	opts.BatchSize = c.Join.BatchSize
	opts.Precision = c.Join.Precision
	opts.Index = spatial.Options{
		Kind: spatial.Kind(c.Join.Index),
		RTree: spatial.RTreeOptions{
			MinChildren: c.Join.RTreeMin,
			MaxChildren: c.Join.RTreeMax,
		},
	}
	opts.Names = join.FieldNames{
		SourceID:        c.Join.SourceIDField,
		ReferenceID:     c.Join.ReferenceIDField,
		Distance:        c.Join.DistanceField,
		SourcePrefix:    c.Join.SourcePrefix,
		ReferencePrefix: c.Join.ReferencePrefix,
	}
	return opts
}

func bufferOptions(c *config.Config) buffer.Options {
	return buffer.Options{
		Radius:   c.Buffer.Radius,
		Segments: c.Buffer.Segments,
		CRS:      c.Buffer.CRS,
	}
}

func sourceOptions(c *config.Config) source.Options {
	return source.Options{
		Encoding: c.Input.Encoding,
		CRS:      c.Input.CRS,
		XColumn:  c.Input.XColumn,
		YColumn:  c.Input.YColumn,
		IDColumn: c.Input.IDColumn,
		Fetch: fetcher.Options{
			Timeout: time.Duration(c.Input.FTPTimeoutSecs) * time.Second,
			TempDir: c.Input.TempDir,
		},
	}
}

// outputLocation falls back to the configured PostGIS database when no
// output flag is given.
func outputLocation(flag string, c *config.Config) string {
	if flag != "" {
		return flag
	}
	return c.Store.DatabaseURL
}
