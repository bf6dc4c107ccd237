package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/buffer"
	"github.com/sells-group/geojoin/internal/report"
	"github.com/sells-group/geojoin/internal/sink"
	"github.com/sells-group/geojoin/internal/source"
)

var bufferFlags struct {
	input    string
	output   string
	table    string
	layer    string
	report   string
	radius   float64
	segments int
	crs      string
}

var bufferCmd = &cobra.Command{
	Use:   "buffer",
	Short: "Draw a circle of fixed radius around every input point",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f := cmd.Flags()

		if f.Changed("radius") {
			cfg.Buffer.Radius = bufferFlags.radius
		}
		if f.Changed("segments") {
			cfg.Buffer.Segments = bufferFlags.segments
		}
		if f.Changed("crs") {
			cfg.Buffer.CRS = bufferFlags.crs
		}
		if err := cfg.Validate("buffer"); err != nil {
			return err
		}

		output := outputLocation(bufferFlags.output, cfg)
		if output == "" {
			return eris.New("buffer: --output is required when store.database_url is not set")
		}

		rep := report.New("buffer")
		rep.Inputs["input"] = bufferFlags.input
		rep.Output = output
		rep.Settings = map[string]any{
			"radius":   cfg.Buffer.Radius,
			"segments": cfg.Buffer.Segments,
			"crs":      cfg.Buffer.CRS,
		}

		res, err := func() (*buffer.Result, error) {
			coll, err := source.Open(ctx, bufferFlags.input, sourceOptions(cfg))
			if err != nil {
				return nil, eris.Wrap(err, "buffer: read input")
			}
			out, err := sink.Open(output, sink.Options{
				Stdout:    cmd.OutOrStdout(),
				Table:     bufferFlags.table,
				BatchSize: cfg.Store.BatchSize,
			})
			if err != nil {
				return nil, err
			}
			opts := bufferOptions(cfg)
			opts.RunID = rep.RunID
			opts.LayerName = bufferFlags.layer
			return buffer.Run(ctx, coll, out, opts)
		}()

		rep.Buffer = res
		rep.Finish(err)
		if bufferFlags.report != "" {
			if werr := rep.Write(bufferFlags.report); werr != nil {
				zap.L().Warn("buffer: write report", zap.Error(werr))
			}
		}
		return err
	},
}

func init() {
	f := bufferCmd.Flags()
	f.StringVar(&bufferFlags.input, "input", "", "input point layer: path or http(s)/ftp URL (required)")
	f.StringVarP(&bufferFlags.output, "output", "o", "", "output: .geojson, .shp, .sqlite, postgres:// URL or - for stdout (default store.database_url)")
	f.StringVar(&bufferFlags.table, "table", "", "destination table for SQLite and PostGIS outputs (default layer name)")
	f.StringVar(&bufferFlags.layer, "layer", "", "output layer name (default circles)")
	f.StringVar(&bufferFlags.report, "report", "", "write a YAML run report to this path")
	f.Float64Var(&bufferFlags.radius, "radius", buffer.DefaultRadius, "circle radius in layer units")
	f.IntVar(&bufferFlags.segments, "segments", buffer.DefaultSegments, "vertices per circle")
	f.StringVar(&bufferFlags.crs, "crs", "", "CRS assigned to the output, e.g. EPSG:2177 (coordinates are not transformed)")
	_ = bufferCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(bufferCmd)
}
