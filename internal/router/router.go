// Package router maps keys to the shard that owns them and performs
// single-shard reads and writes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sharded-cache/internal/logs"
	"sharded-cache/internal/metrics"
	"sharded-cache/internal/peers"
	"sharded-cache/internal/ring"
	"sharded-cache/internal/transport"

	"go.uber.org/zap"
)

// ErrUnroutableKey means no shard could be chosen: the ring is empty or
// the chosen node has no endpoint.
var ErrUnroutableKey = errors.New("key cannot be routed")

// ShardClient is the transport used to reach shards.
type ShardClient interface {
	Get(ctx context.Context, endpoint, key string) (json.RawMessage, bool, error)
	Put(ctx context.Context, endpoint, key string, value json.RawMessage, opts ...transport.PutOption) error
}

// Target identifies the shard chosen for a key.
type Target struct {
	NodeID   string `json:"node_id"`
	Endpoint string `json:"endpoint"`
}

type Router struct {
	ring    *ring.Ring
	table   *peers.Table
	client  ShardClient
	timeout time.Duration
	metrics *metrics.Registry
	logger  *logs.Logger
}

type Option func(*Router)

// WithTimeout bounds each shard call. Zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

func WithMetrics(reg *metrics.Registry) Option {
	return func(r *Router) {
		if reg != nil {
			r.metrics = reg
		}
	}
}

func WithLogger(l *logs.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a router over a ring of node IDs and the table resolving
// them to endpoints.
func New(rg *ring.Ring, table *peers.Table, client ShardClient, opts ...Option) *Router {
	r := &Router{
		ring:    rg,
		table:   table,
		client:  client,
		metrics: metrics.NewRegistry(),
		logger:  logs.NewLogger(0, logs.ERROR),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the shard that owns key.
func (r *Router) Resolve(key string) (Target, error) {
	node, err := r.ring.Route(key)
	if err != nil {
		r.metrics.Inc(metrics.RouterUnroutableTotal)
		return Target{}, fmt.Errorf("%w: %v", ErrUnroutableKey, err)
	}
	endpoint, ok := r.table.Endpoint(node)
	if !ok {
		r.metrics.Inc(metrics.RouterUnroutableTotal)
		return Target{}, fmt.Errorf("%w: no endpoint for node %s", ErrUnroutableKey, node)
	}
	return Target{NodeID: node, Endpoint: endpoint}, nil
}

// Get reads key from its owning shard. A missing key yields found == false
// and a nil error; a shard that cannot be reached yields an error wrapping
// transport.ErrShardUnreachable.
func (r *Router) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	target, err := r.Resolve(key)
	if err != nil {
		return nil, false, err
	}
	r.metrics.Inc(metrics.RouterRequestsTotal)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	value, found, err := r.client.Get(ctx, target.Endpoint, key)
	if err != nil {
		r.metrics.Inc(metrics.RouterUnreachableTotal)
		r.logger.Warn("shard read failed",
			zap.String("key", key),
			zap.String("node", target.NodeID),
			zap.Error(err),
		)
		return nil, false, err
	}
	return value, found, nil
}

// Put writes key to its owning shard only.
func (r *Router) Put(ctx context.Context, key string, value json.RawMessage, opts ...transport.PutOption) error {
	target, err := r.Resolve(key)
	if err != nil {
		return err
	}
	r.metrics.Inc(metrics.RouterRequestsTotal)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Put(ctx, target.Endpoint, key, value, opts...); err != nil {
		r.metrics.Inc(metrics.RouterUnreachableTotal)
		r.logger.Warn("shard write failed",
			zap.String("key", key),
			zap.String("node", target.NodeID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
