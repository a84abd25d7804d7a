package main

import (
	"context"

	"sharded-cache/internal/api"
	"sharded-cache/internal/config"
	"sharded-cache/internal/logs"
	"sharded-cache/internal/metrics"
	"sharded-cache/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newShardCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "shard",
		Short: "Run one cache shard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if listen != "" {
				cfg.Shard.Listen = listen
			}
			return runShard(cmd.Context(), cfg.Shard.Listen, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides shard.listen)")
	return cmd
}

func runShard(ctx context.Context, listen string, cfg *config.Config, logger *logs.Logger) error {
	reg := metrics.NewRegistry()

	st, err := store.NewStore(store.Options{
		Capacity:   cfg.Shard.Capacity,
		DefaultTTL: cfg.DefaultTTL(),
	}, reg)
	if err != nil {
		return err
	}

	logger.Info("shard configured",
		zap.String("listen", listen),
		zap.Int("capacity", cfg.Shard.Capacity),
		zap.Duration("default_ttl", cfg.DefaultTTL()),
	)

	srv := api.NewServer(listen, logger)
	api.RegisterShardRoutes(srv.Echo(), api.NewShardHandler(st, reg, logger))
	return srv.Start(ctx)
}
