// Package replication fans writes out to a key's replica set and keeps
// the hash ring in step with node health.
package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sharded-cache/internal/logs"
	"sharded-cache/internal/metrics"
	"sharded-cache/internal/peers"
	"sharded-cache/internal/ring"
	"sharded-cache/internal/router"
	"sharded-cache/internal/transport"

	"go.uber.org/zap"
)

var (
	ErrReplicationFactor = errors.New("replication factor must be between 1 and the number of nodes")
	ErrHealthCheckActive = errors.New("health check already running")
	ErrStopped           = errors.New("coordinator stopped")
)

// ReplicaClient writes to and probes shards.
type ReplicaClient interface {
	Put(ctx context.Context, endpoint, key string, value json.RawMessage, opts ...transport.PutOption) error
	Health(ctx context.Context, endpoint string) error
}

// Config controls fan-out behavior.
type Config struct {
	ReplicationFactor int
	// ResultBuffer is the capacity of the Results channel. Results that do
	// not fit are dropped and counted.
	ResultBuffer int
	Peers        peers.PeerConfig
}

func DefaultConfig() Config {
	return Config{
		ReplicationFactor: 2,
		ResultBuffer:      256,
		Peers:             peers.DefaultPeerConfig(),
	}
}

// Coordinator replicates writes to the first R distinct nodes clockwise
// from the key on the ring. The ring it is given is shared with the read
// path; the health check removes degraded nodes from it and re-adds them
// when they recover, so both reads and writes skip nodes that are down.
type Coordinator struct {
	ring    *ring.Ring
	table   *peers.Table
	client  ReplicaClient
	cfg     Config
	metrics *metrics.Registry
	logger  *logs.Logger

	results chan Result

	mu       sync.Mutex
	idle     *sync.Cond // signalled when inflight drops to zero
	inflight int
	closed   bool
	stop     context.CancelFunc
	loop     sync.WaitGroup
	monitor  *peers.HeartbeatWorker
}

type Option func(*Coordinator)

func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Coordinator) {
		if reg != nil {
			c.metrics = reg
		}
	}
}

func WithLogger(l *logs.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator validates cfg against the node table.
func NewCoordinator(
	rg *ring.Ring,
	table *peers.Table,
	client ReplicaClient,
	cfg Config,
	opts ...Option,
) (*Coordinator, error) {
	if cfg.ReplicationFactor <= 0 || cfg.ReplicationFactor > table.Len() {
		return nil, fmt.Errorf("%w: factor %d, nodes %d", ErrReplicationFactor, cfg.ReplicationFactor, table.Len())
	}
	if cfg.ResultBuffer < 0 {
		cfg.ResultBuffer = 0
	}

	c := &Coordinator{
		ring:    rg,
		table:   table,
		client:  client,
		cfg:     cfg,
		metrics: metrics.NewRegistry(),
		logger:  logs.NewLogger(0, logs.ERROR),
		results: make(chan Result, cfg.ResultBuffer),
	}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.Set(metrics.RingNodes, int64(rg.Len()))
	return c, nil
}

// ReplicaSet returns the nodes that should hold key: the first
// min(R, nodes on ring) distinct nodes clockwise from the key.
func (c *Coordinator) ReplicaSet(key string) ([]string, error) {
	nodes, err := c.ring.Successors(key, c.cfg.ReplicationFactor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", router.ErrUnroutableKey, err)
	}
	return nodes, nil
}

// Put dispatches the write to every replica concurrently and returns as
// soon as all writes are in flight. Individual failures are logged,
// counted and reported on Results; they never fail the call.
// After Stop, Put returns ErrStopped.
func (c *Coordinator) Put(
	ctx context.Context,
	key string,
	value json.RawMessage,
	opts ...transport.PutOption,
) ([]string, error) {
	replicas, err := c.ReplicaSet(key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	c.inflight += len(replicas)
	c.mu.Unlock()

	// Writes complete after Put returns, so they must not die with the
	// caller's context.
	detached := context.WithoutCancel(ctx)

	for _, id := range replicas {
		c.metrics.Inc(metrics.ReplicationDispatchedTotal)
		go c.write(detached, id, key, value, opts)
	}
	return replicas, nil
}

func (c *Coordinator) write(
	ctx context.Context,
	id, key string,
	value json.RawMessage,
	opts []transport.PutOption,
) {
	defer c.done()

	start := time.Now()
	res := Result{Key: key, NodeID: id}

	endpoint, ok := c.table.Endpoint(id)
	if !ok {
		res.Err = fmt.Errorf("%w: no endpoint for node %s", router.ErrUnroutableKey, id)
	} else {
		res.Endpoint = endpoint
		if t := c.cfg.Peers.Timeout.RequestTimeout; t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		res.Err = c.client.Put(ctx, endpoint, key, value, opts...)
	}
	res.Duration = time.Since(start)

	if res.Err != nil {
		c.metrics.Inc(metrics.ReplicationFailureTotal)
		c.logger.Warn("replication failed",
			zap.String("key", key),
			zap.String("node", id),
			zap.Error(res.Err),
		)
	} else {
		c.metrics.Inc(metrics.ReplicationSuccessTotal)
		c.logger.Debug("replicated",
			zap.String("key", key),
			zap.String("node", id),
			zap.Duration("took", res.Duration),
		)
	}

	select {
	case c.results <- res:
	default:
		c.metrics.Inc(metrics.ReplicationResultsDroppedTotal)
	}
}

// Results delivers one Result per dispatched replica write. Draining it
// is optional. The channel is never closed.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

func (c *Coordinator) done() {
	c.mu.Lock()
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

// Wait blocks until no replica writes are in flight. It may be called
// concurrently with Put.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()
}

// StartHealthCheck probes every node each interval until Stop or ctx is
// cancelled. interval <= 0 uses the configured heartbeat interval.
func (c *Coordinator) StartHealthCheck(ctx context.Context, interval time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStopped
	}
	if c.stop != nil {
		return ErrHealthCheckActive
	}

	monitor := c.newMonitor(interval)
	ctx, cancel := context.WithCancel(ctx)
	c.stop = cancel
	c.monitor = monitor

	c.loop.Add(1)
	go func() {
		defer c.loop.Done()
		monitor.Start(ctx)
	}()

	c.logger.Info("health check started", zap.Duration("interval", monitor.Interval()))
	return nil
}

// CheckHealth runs a single probing round synchronously.
func (c *Coordinator) CheckHealth(ctx context.Context) {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()

	if monitor == nil {
		monitor = c.newMonitor(0)
	}
	monitor.RunOnce(ctx)
}

func (c *Coordinator) newMonitor(interval time.Duration) *peers.HeartbeatWorker {
	cfg := c.cfg.Peers
	if interval > 0 {
		cfg.Heartbeat.Interval = interval
	}
	monitor := peers.NewHeartbeatWorker(c.table, c.client, cfg, c.metrics, c.logger)
	monitor.OnTransition(c.onTransition)
	return monitor
}

// Stop tears the coordinator down: new Puts are refused, the health check
// ends after any round in progress, and Stop returns once in-flight
// replica writes finish. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.closed = true
	stop := c.stop
	c.stop = nil
	c.monitor = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
		c.loop.Wait()
		c.logger.Info("health check stopped")
	}
	c.Wait()
}

func (c *Coordinator) onTransition(id string, state peers.State) {
	switch state {
	case peers.Degraded:
		if err := c.ring.RemoveNode(id); err != nil {
			c.logger.Debug("node already off ring", zap.String("node", id))
			break
		}
		c.logger.Warn("node removed from ring", zap.String("node", id))
	case peers.Healthy:
		c.ring.AddNode(id)
		c.logger.Info("node restored to ring", zap.String("node", id))
	}
	c.metrics.Set(metrics.RingNodes, int64(c.ring.Len()))
}
