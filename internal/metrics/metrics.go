package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricKey is a strongly typed metric identifier.
type MetricKey string

// Metric keys (centralized)
const (
	// Cache
	CacheKeys         MetricKey = "cache_keys"
	CacheSetsTotal    MetricKey = "cache_sets_total"
	CacheGetsTotal    MetricKey = "cache_gets_total"
	CacheHitsTotal    MetricKey = "cache_hits_total"
	CacheMissesTotal  MetricKey = "cache_misses_total"
	CacheExpiredTotal MetricKey = "cache_expired_total"
	CacheEvictedTotal MetricKey = "cache_evicted_total"

	// Ring
	RingNodes MetricKey = "ring_nodes"

	// Router
	RouterRequestsTotal    MetricKey = "router_requests_total"
	RouterUnreachableTotal MetricKey = "router_unreachable_total"
	RouterUnroutableTotal  MetricKey = "router_unroutable_total"

	// Replication
	ReplicationDispatchedTotal     MetricKey = "replication_dispatched_total"
	ReplicationSuccessTotal        MetricKey = "replication_success_total"
	ReplicationFailureTotal        MetricKey = "replication_failure_total"
	ReplicationResultsDroppedTotal MetricKey = "replication_results_dropped_total"

	// Peers
	PeersHealthy      MetricKey = "peers_healthy"
	PeersDegraded     MetricKey = "peers_degraded"
	PeerFailuresTotal MetricKey = "peer_failures_total"

	// Heartbeat metrics
	HeartbeatRunsTotal     MetricKey = "heartbeat_runs_total"
	HeartbeatSuccessTotal  MetricKey = "heartbeat_success_total"
	HeartbeatFailuresTotal MetricKey = "heartbeat_failures_total"
)

const namespace = "shardkv"

var help = map[MetricKey]string{
	CacheKeys:                      "Number of resident cache entries",
	CacheSetsTotal:                 "Cache writes",
	CacheGetsTotal:                 "Cache reads",
	CacheHitsTotal:                 "Cache hits",
	CacheMissesTotal:               "Cache misses, including expired entries",
	CacheExpiredTotal:              "Entries removed lazily after their TTL passed",
	CacheEvictedTotal:              "Entries evicted to stay within capacity",
	RingNodes:                      "Physical nodes currently placed on the hash ring",
	RouterRequestsTotal:            "Requests routed to a shard",
	RouterUnreachableTotal:         "Routed requests that failed to reach their shard",
	RouterUnroutableTotal:          "Requests that could not be mapped to a shard",
	ReplicationDispatchedTotal:     "Replica writes dispatched",
	ReplicationSuccessTotal:        "Replica writes acknowledged",
	ReplicationFailureTotal:        "Replica writes that failed",
	ReplicationResultsDroppedTotal: "Replica results dropped because nobody drained the results channel",
	PeersHealthy:                   "Nodes considered healthy",
	PeersDegraded:                  "Nodes considered degraded",
	PeerFailuresTotal:              "Failed probes recorded against nodes",
	HeartbeatRunsTotal:             "Heartbeat rounds",
	HeartbeatSuccessTotal:          "Successful heartbeat probes",
	HeartbeatFailuresTotal:         "Failed heartbeat probes",
}

// Registry stores all metrics.
// Keys ending in "_total" are exported as Prometheus counters, everything
// else as gauges.
type Registry struct {
	mu         sync.RWMutex
	prom       *prometheus.Registry
	counters   map[MetricKey]prometheus.Counter
	gauges     map[MetricKey]prometheus.Gauge
	collectors map[MetricKey]prometheus.Metric
}

// NewRegistry creates a metrics registry backed by a private Prometheus registry.
func NewRegistry() *Registry {
	return &Registry{
		prom:       prometheus.NewRegistry(),
		counters:   make(map[MetricKey]prometheus.Counter),
		gauges:     make(map[MetricKey]prometheus.Gauge),
		collectors: make(map[MetricKey]prometheus.Metric),
	}
}

// Gatherer exposes the underlying registry for promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// Inc increments a metric by 1.
func (r *Registry) Inc(key MetricKey) {
	r.Add(key, 1)
}

// Add increments a metric by delta.
// Negative deltas are ignored for counters.
func (r *Registry) Add(key MetricKey, delta int64) {
	if isCounter(key) {
		if delta < 0 {
			return
		}
		r.counter(key).Add(float64(delta))
		return
	}
	r.gauge(key).Add(float64(delta))
}

// Set sets a gauge to an absolute value.
func (r *Registry) Set(key MetricKey, value int64) {
	if isCounter(key) {
		return
	}
	r.gauge(key).Set(float64(value))
}

func (r *Registry) counter(key MetricKey) prometheus.Counter {
	r.mu.RLock()
	c, ok := r.counters[key]
	r.mu.RUnlock()
	if ok {
		return c
	}

	// Slow path: metric not yet initialized
	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if c, ok = r.counters[key]; ok {
		return c
	}

	c = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      string(key),
		Help:      helpFor(key),
	})
	r.prom.MustRegister(c)
	r.counters[key] = c
	r.collectors[key] = c
	return c
}

func (r *Registry) gauge(key MetricKey) prometheus.Gauge {
	r.mu.RLock()
	g, ok := r.gauges[key]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok = r.gauges[key]; ok {
		return g
	}

	g = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      string(key),
		Help:      helpFor(key),
	})
	r.prom.MustRegister(g)
	r.gauges[key] = g
	r.collectors[key] = g
	return g
}

func isCounter(key MetricKey) bool {
	return strings.HasSuffix(string(key), "_total")
}

func helpFor(key MetricKey) string {
	if h, ok := help[key]; ok {
		return h
	}
	return string(key)
}
