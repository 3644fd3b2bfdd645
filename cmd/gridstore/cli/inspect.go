package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colgrid/gridstore/internal/config"
	"github.com/colgrid/gridstore/internal/ingest/catalog"
)

// newInspectCmd prints the tables and primary keys gridstore can see at
// cfg.Postgres.DSN, without starting an ingest+serve process. It connects
// over lib/pq rather than opening a pgxpool, since a one-shot read of
// information_schema doesn't need connection pooling.
func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "list tables and primary keys visible at the configured Postgres DSN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			cat, err := catalog.OpenOffline(cmd.Context(), cfg.Postgres.DSN)
			if err != nil {
				return err
			}

			for _, t := range cat.Tables() {
				fmt.Printf("%s.%s\tcolumns=%v\tpk=%v\n", t.Schema, t.Name, t.Columns, t.PK)
			}
			return nil
		},
	}
}
