package peers

import (
	"context"
	"time"

	"sharded-cache/internal/logs"
	"sharded-cache/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Prober checks whether the shard at endpoint is alive.
type Prober interface {
	Health(ctx context.Context, endpoint string) error
}

// TransitionFunc is called after a node changes state. It runs on the
// probing goroutine; keep it short.
type TransitionFunc func(id string, state State)

// HeartbeatWorker periodically checks node liveness
type HeartbeatWorker struct {
	table        *Table
	prober       Prober
	config       PeerConfig
	metrics      *metrics.Registry
	logger       *logs.Logger
	onTransition TransitionFunc
}

// NewHeartbeatWorker creates a new heartbeat worker
func NewHeartbeatWorker(
	table *Table,
	prober Prober,
	cfg PeerConfig,
	reg *metrics.Registry,
	logger *logs.Logger,
) *HeartbeatWorker {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	if logger == nil {
		logger = logs.NewLogger(0, logs.ERROR)
	}
	return &HeartbeatWorker{
		table:   table,
		prober:  prober,
		config:  cfg,
		metrics: reg,
		logger:  logger,
	}
}

// OnTransition registers fn to be called on every state change.
func (hw *HeartbeatWorker) OnTransition(fn TransitionFunc) {
	hw.onTransition = fn
}

// Interval returns the time between rounds.
func (hw *HeartbeatWorker) Interval() time.Duration {
	return hw.config.Heartbeat.Interval
}

// Start begins the heartbeat loop and blocks until ctx is cancelled.
// A round already in progress is allowed to finish; its probes are bounded
// by the heartbeat timeout.
func (hw *HeartbeatWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(hw.config.Heartbeat.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hw.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce probes every node concurrently and waits for all probes.
func (hw *HeartbeatWorker) RunOnce(ctx context.Context) {
	hw.metrics.Inc(metrics.HeartbeatRunsTotal)

	// Probes outlive cancellation so a stop does not mark nodes as failed.
	probeCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	if hw.config.Heartbeat.Concurrency > 0 {
		g.SetLimit(hw.config.Heartbeat.Concurrency)
	}

	for _, id := range hw.table.IDs() {
		id := id
		endpoint, ok := hw.table.Endpoint(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			hw.probe(probeCtx, id, endpoint)
			return nil
		})
	}
	_ = g.Wait()
}

func (hw *HeartbeatWorker) probe(ctx context.Context, id, endpoint string) {
	ctx, cancel := context.WithTimeout(ctx, hw.config.Timeout.HeartbeatTimeout)
	defer cancel()

	if err := hw.prober.Health(ctx, endpoint); err != nil {
		hw.metrics.Inc(metrics.HeartbeatFailuresTotal)
		hw.logger.Debug("heartbeat failed",
			zap.String("node", id),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		if hw.table.MarkFailure(id) {
			hw.logger.Warn("node degraded", zap.String("node", id))
			hw.notify(id, Degraded)
		}
		return
	}

	hw.metrics.Inc(metrics.HeartbeatSuccessTotal)
	if hw.table.MarkSuccess(id) {
		hw.logger.Info("node recovered", zap.String("node", id))
		hw.notify(id, Healthy)
	}
}

func (hw *HeartbeatWorker) notify(id string, state State) {
	if hw.onTransition != nil {
		hw.onTransition(id, state)
	}
}
