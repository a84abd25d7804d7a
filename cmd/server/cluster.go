package main

import (
	"fmt"
	"net"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newClusterCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cluster",
		Short: "Run every configured shard and the gateway in one process",
		Long: "Starts one shard per cluster.shard_endpoints entry, listening on the " +
			"port of its endpoint URL, and a gateway on gateway.listen. Intended for local use.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			g, ctx := errgroup.WithContext(cmd.Context())
			for _, id := range cfg.NodeIDs() {
				listen, err := listenAddr(cfg.Cluster.ShardEndpoints[id])
				if err != nil {
					return fmt.Errorf("shard %s: %w", id, err)
				}
				shardLogger := logger.With(zap.String("node", id))
				g.Go(func() error {
					return runShard(ctx, listen, cfg, shardLogger)
				})
			}
			g.Go(func() error {
				return runGateway(ctx, cfg, logger.With(zap.String("component", "gateway")))
			})
			return g.Wait()
		},
	}
}

// listenAddr turns an endpoint URL into a local listen address on the same port.
func listenAddr(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	port := u.Port()
	if port == "" {
		return "", fmt.Errorf("endpoint %q has no port", endpoint)
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
