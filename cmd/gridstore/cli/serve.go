package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/colgrid/gridstore/internal/app"
	"github.com/colgrid/gridstore/internal/config"
	"github.com/colgrid/gridstore/internal/seed"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "load the configured query into a Store and serve it over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := app.New(ctx, cfg, seed.Schema(), zap.L())
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
