package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/join"
	"github.com/sells-group/geojoin/internal/report"
	"github.com/sells-group/geojoin/internal/sink"
	"github.com/sells-group/geojoin/internal/source"
)

var joinFlags struct {
	source    string
	reference string
	output    string
	table     string
	layer     string
	report    string
	workers   int
	precision int
	index     string
	encoding  string
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Link every source point to its nearest reference point",
	Long: "Writes one line per source point, from the point to the closest reference point, carrying the " +
		"source ID, reference ID, Euclidean distance and the attributes of both features.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()

		if f.Changed("workers") {
			cfg.Join.Workers = joinFlags.workers
		}
		if f.Changed("precision") {
			cfg.Join.Precision = joinFlags.precision
		}
		if f.Changed("index") {
			cfg.Join.Index = joinFlags.index
		}
		if f.Changed("encoding") {
			cfg.Input.Encoding = joinFlags.encoding
		}
		if err := cfg.Validate("join"); err != nil {
			return err
		}

		output := outputLocation(joinFlags.output, cfg)
		if output == "" {
			return eris.New("join: --output is required when store.database_url is not set")
		}

		rep := report.New(join.NearestNeighbor.Name)
		rep.Inputs["source"] = joinFlags.source
		rep.Inputs["reference"] = joinFlags.reference
		rep.Output = output
		rep.Settings = map[string]any{
			"workers":   cfg.Join.Workers,
			"precision": cfg.Join.Precision,
			"index":     cfg.Join.Index,
		}

		res, err := runJoin(cmd, output, rep.RunID)
		rep.Join = res
		rep.Finish(err)
		if joinFlags.report != "" {
			if werr := rep.Write(joinFlags.report); werr != nil {
				zap.L().Warn("join: write report", zap.Error(werr))
			}
		}
		return err
	},
}

func runJoin(cmd *cobra.Command, output, runID string) (*join.Result, error) {
	ctx := cmd.Context()
	srcOpts := sourceOptions(cfg)

	src, err := source.Open(ctx, joinFlags.source, srcOpts)
	if err != nil {
		return nil, eris.Wrap(err, "join: read source")
	}
	ref, err := source.Open(ctx, joinFlags.reference, srcOpts)
	if err != nil {
		return nil, eris.Wrap(err, "join: read reference")
	}

	out, err := sink.Open(output, sink.Options{
		Stdout:    cmd.OutOrStdout(),
		Table:     joinFlags.table,
		BatchSize: cfg.Store.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	opts := joinOptions(cfg)
	opts.RunID = runID
	if joinFlags.layer != "" {
		opts.LayerName = joinFlags.layer
	}
	return join.Join(ctx, src, ref, out, opts)
}

func init() {
	f := joinCmd.Flags()
	f.StringVar(&joinFlags.source, "source", "", "source point layer: path or http(s)/ftp URL (required)")
	f.StringVar(&joinFlags.reference, "reference", "", "reference point layer: path or http(s)/ftp URL (required)")
	f.StringVarP(&joinFlags.output, "output", "o", "", "output: .geojson, .shp, .sqlite, postgres:// URL or - for stdout (default store.database_url)")
	f.StringVar(&joinFlags.table, "table", "", "destination table for SQLite and PostGIS outputs (default layer name)")
	f.StringVar(&joinFlags.layer, "layer", "", "output layer name (default nearest_neighbor)")
	f.StringVar(&joinFlags.report, "report", "", "write a YAML run report to this path")
	f.IntVar(&joinFlags.workers, "workers", 1, "goroutines running nearest lookups")
	f.IntVar(&joinFlags.precision, "precision", join.DefaultPrecision, "decimals kept in distances")
	f.StringVar(&joinFlags.index, "index", "rtree", "spatial index: rtree or linear")
	f.StringVar(&joinFlags.encoding, "encoding", "utf-8", "DBF code page for shapefiles without .cpg")
	_ = joinCmd.MarkFlagRequired("source")
	_ = joinCmd.MarkFlagRequired("reference")
	rootCmd.AddCommand(joinCmd)
}
