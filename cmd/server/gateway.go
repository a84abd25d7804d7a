package main

import (
	"context"

	"sharded-cache/internal/api"
	"sharded-cache/internal/config"
	"sharded-cache/internal/logs"
	"sharded-cache/internal/metrics"
	"sharded-cache/internal/peers"
	"sharded-cache/internal/replication"
	"sharded-cache/internal/ring"
	"sharded-cache/internal/router"
	"sharded-cache/internal/transport"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newGatewayCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the routing and replication front end for the configured shards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if listen != "" {
				cfg.Gateway.Listen = listen
			}
			return runGateway(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides gateway.listen)")
	return cmd
}

func runGateway(ctx context.Context, cfg *config.Config, logger *logs.Logger) error {
	reg := metrics.NewRegistry()
	pc := cfg.PeerConfig()

	table := peers.NewTable(pc, reg)
	for _, id := range cfg.NodeIDs() {
		table.Add(id, cfg.Cluster.ShardEndpoints[id])
	}
	rg := ring.New(cfg.Cluster.VirtualNodesPerNode, cfg.NodeIDs()...)
	client := transport.NewClient(transport.WithTimeout(pc.Timeout.RequestTimeout))

	if err := peers.WaitHealthy(ctx, table, client, pc.Retry, pc.Timeout.HeartbeatTimeout); err != nil {
		// The health check takes unreachable shards off the ring once it runs.
		logger.Warn("not all shards answered at startup", zap.Error(err))
	}

	rt := router.New(rg, table, client,
		router.WithTimeout(pc.Timeout.RequestTimeout),
		router.WithMetrics(reg),
		router.WithLogger(logger.With(zap.String("component", "router"))),
	)

	co, err := replication.NewCoordinator(rg, table, client,
		replication.Config{
			ReplicationFactor: cfg.Cluster.ReplicationFactor,
			ResultBuffer:      cfg.Gateway.ResultBuffer,
			Peers:             pc,
		},
		replication.WithMetrics(reg),
		replication.WithLogger(logger.With(zap.String("component", "replication"))),
	)
	if err != nil {
		return err
	}
	defer co.Stop()

	if err := co.StartHealthCheck(ctx, pc.Heartbeat.Interval); err != nil {
		return err
	}
	go drainResults(ctx, co, logger)

	logger.Info("gateway configured",
		zap.Strings("nodes", cfg.NodeIDs()),
		zap.Int("replication_factor", cfg.Cluster.ReplicationFactor),
		zap.Int("virtual_nodes", cfg.Cluster.VirtualNodesPerNode),
	)

	srv := api.NewServer(cfg.Gateway.Listen, logger)
	api.RegisterGatewayRoutes(srv.Echo(), api.NewGatewayHandler(rt, co, table, reg, logger), reg)
	return srv.Start(ctx)
}

// drainResults keeps the results channel empty so replica outcomes are
// never dropped, logging each one at debug level.
func drainResults(ctx context.Context, co *replication.Coordinator, logger *logs.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-co.Results():
			logger.Debug("replica write finished",
				zap.String("key", res.Key),
				zap.String("node", res.NodeID),
				zap.Bool("ok", res.OK()),
				zap.Duration("took", res.Duration),
			)
		}
	}
}
