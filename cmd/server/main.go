package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sharded-cache/internal/config"
	"sharded-cache/internal/logs"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "shardkv",
		Short:         "Sharded, replicated in-memory key-value cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newShardCmd(opts),
		newGatewayCmd(opts),
		newClusterCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, *logs.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger := logs.NewLogger(cfg.Log.BufferSize, logs.ParseLevel(cfg.Log.Level), logs.WithOutput(os.Stderr))
	return cfg, logger, nil
}
