package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geojoin/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geojoin",
	Short: "Nearest-neighbor joins and circle buffers for point layers",
	Long: "Links every point of a source layer to the closest point of a reference layer, " +
		"writing connecting lines with both attribute sets, and builds circular buffers around points. " +
		"Reads Shapefile, GeoJSON, CSV and XLSX from disk, HTTP or FTP; writes GeoJSON, Shapefile, SQLite or PostGIS.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
