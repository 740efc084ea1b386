package main

import (
	"github.com/spf13/cobra"

	"mislaka/internal/importer"
	"mislaka/internal/server"
	"mislaka/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.logger.WithContext(cmd.Context())

			ex, err := a.extractor()
			if err != nil {
				return err
			}

			closeMetrics := initMetrics(ctx, a.cfg.Metrics, a.logger)
			defer closeMetrics()

			storeCfg := a.cfg.StorageConfig()
			deps := server.Dependencies{
				Runner:    importer.NewDefaultRunner(importer.New(ex, a.cfg.Import.Workers), storeCfg),
				Inspector: ex,
			}
			if storeCfg.Kind != "" {
				repo, err := storage.New(ctx, storeCfg)
				if err != nil {
					return err
				}
				defer repo.Close()
				if err := repo.EnsureSchema(ctx); err != nil {
					return err
				}
				deps.Clients = repo
			}

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			api := server.NewWebAPI(a.logger, server.Config{
				Addr:            addr,
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
				MaxUploadBytes:  a.cfg.Server.MaxUploadBytes,
				Dependencies:    deps,
			})
			return api.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	return cmd
}
