// Package cli implements the gridstore command-line entrypoints: serve
// runs the ingest+API process described in internal/app, seed populates
// a demo Postgres table with internal/seed's faker-driven generator.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func Execute() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	root := &cobra.Command{
		Use:   "gridstore",
		Short: "gridstore ingests a Postgres table into an in-memory filterable/sortable grid",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "gridstore.toml", "path to the TOML config file")

	root.AddCommand(newServeCmd(), newSeedCmd(), newInspectCmd())
	return root.Execute()
}
