package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/colgrid/gridstore/internal/config"
	"github.com/colgrid/gridstore/internal/seed"
)

func newSeedCmd() *cobra.Command {
	var (
		count int
		rseed int64
		table string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "insert deterministic faker-generated demo rows into a Postgres table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if table == "" {
				table = cfg.Ingest.Table
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			gen := seed.NewGenerator(rseed)
			rows, err := gen.Rows(count)
			if err != nil {
				return err
			}

			batch := make([][]any, len(rows))
			for i, row := range rows {
				batch[i] = []any{row["id"], row["sym"], row["name"], row["px"]}
			}

			n, err := pool.CopyFrom(ctx,
				splitTable(table),
				[]string{"id", "sym", "name", "px"},
				&pgxCopySource{rows: batch},
			)
			if err != nil {
				return err
			}

			zap.L().Info("seed complete", zap.Int64("rows_inserted", n), zap.String("table", table))
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 100, "number of demo rows to generate")
	cmd.Flags().Int64Var(&rseed, "seed", 1, "PRNG seed for deterministic demo data")
	cmd.Flags().StringVar(&table, "table", "", "table to insert into (defaults to ingest.table from config)")
	return cmd
}
