// Package config loads cluster and shard settings from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sharded-cache/internal/peers"
	"sharded-cache/internal/ring"
	"sharded-cache/internal/store"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix = "SHARDKV"

var (
	ErrCapacityMisconfigured = store.ErrCapacityMisconfigured
	ErrReplicationFactor     = errors.New("replication factor must be between 1 and the number of shards")
	ErrNoShards              = errors.New("no shard endpoints configured")
	ErrVirtualNodes          = errors.New("virtual nodes per node must be positive")
)

type Config struct {
	Shard   ShardConfig   `mapstructure:"shard" yaml:"shard"`
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Peers   PeersConfig   `mapstructure:"peers" yaml:"peers"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ShardConfig struct {
	Listen   string `mapstructure:"listen" yaml:"listen"`
	Capacity int    `mapstructure:"capacity" yaml:"capacity"`
	// DefaultTTL is in seconds; 0 disables the default expiry.
	DefaultTTL float64 `mapstructure:"default_ttl" yaml:"default_ttl"`
}

type ClusterConfig struct {
	// ShardEndpoints maps node ID to base URL. Viper lower-cases map keys,
	// so node IDs are case-insensitive.
	ShardEndpoints      map[string]string `mapstructure:"shard_endpoints" yaml:"shard_endpoints"`
	ReplicationFactor   int               `mapstructure:"replication_factor" yaml:"replication_factor"`
	VirtualNodesPerNode int               `mapstructure:"virtual_nodes_per_node" yaml:"virtual_nodes_per_node"`
}

type GatewayConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	// ResultBuffer is the capacity of the replication results channel.
	ResultBuffer int `mapstructure:"result_buffer" yaml:"result_buffer"`
}

type PeersConfig struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	FailureThreshold  int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold  int           `mapstructure:"success_threshold" yaml:"success_threshold"`
	ProbeConcurrency  int           `mapstructure:"probe_concurrency" yaml:"probe_concurrency"`
	StartupRetries    int           `mapstructure:"startup_retries" yaml:"startup_retries"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("shard.listen", ":5001")
	v.SetDefault("shard.capacity", 1000)
	v.SetDefault("shard.default_ttl", 300)

	v.SetDefault("cluster.shard_endpoints", map[string]string{
		"cache1": "http://127.0.0.1:5001",
		"cache2": "http://127.0.0.1:5002",
		"cache3": "http://127.0.0.1:5003",
	})
	v.SetDefault("cluster.replication_factor", 2)
	v.SetDefault("cluster.virtual_nodes_per_node", ring.DefaultReplicas)

	v.SetDefault("gateway.listen", ":8080")
	v.SetDefault("gateway.result_buffer", 256)

	def := peers.DefaultPeerConfig()
	v.SetDefault("peers.request_timeout", def.Timeout.RequestTimeout)
	v.SetDefault("peers.heartbeat_timeout", def.Timeout.HeartbeatTimeout)
	v.SetDefault("peers.heartbeat_interval", def.Heartbeat.Interval)
	v.SetDefault("peers.failure_threshold", def.Health.FailureThreshold)
	v.SetDefault("peers.success_threshold", def.Health.SuccessThreshold)
	v.SetDefault("peers.probe_concurrency", def.Heartbeat.Concurrency)
	v.SetDefault("peers.startup_retries", def.Retry.MaxRetries)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.buffer_size", 1000)
}

// Load reads path (optional; "" uses defaults) and applies SHARDKV_*
// environment overrides, e.g. SHARDKV_SHARD_CAPACITY=5000.
// The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the cluster cannot run with.
func (c *Config) Validate() error {
	if c.Shard.Capacity <= 0 {
		return fmt.Errorf("shard.capacity: %w: got %d", ErrCapacityMisconfigured, c.Shard.Capacity)
	}
	if len(c.Cluster.ShardEndpoints) == 0 {
		return ErrNoShards
	}
	if r := c.Cluster.ReplicationFactor; r <= 0 || r > len(c.Cluster.ShardEndpoints) {
		return fmt.Errorf("cluster.replication_factor: %w: got %d with %d shards",
			ErrReplicationFactor, r, len(c.Cluster.ShardEndpoints))
	}
	if c.Cluster.VirtualNodesPerNode <= 0 {
		return fmt.Errorf("cluster.virtual_nodes_per_node: %w", ErrVirtualNodes)
	}
	return nil
}

// NodeIDs returns the configured node IDs, sorted.
func (c *Config) NodeIDs() []string {
	ids := make([]string, 0, len(c.Cluster.ShardEndpoints))
	for id := range c.Cluster.ShardEndpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultTTL returns the shard default TTL as a duration.
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.Shard.DefaultTTL * float64(time.Second))
}

// PeerConfig converts the peers section, keeping library defaults for
// anything not exposed in configuration.
func (c *Config) PeerConfig() peers.PeerConfig {
	pc := peers.DefaultPeerConfig()
	if c.Peers.RequestTimeout > 0 {
		pc.Timeout.RequestTimeout = c.Peers.RequestTimeout
	}
	if c.Peers.HeartbeatTimeout > 0 {
		pc.Timeout.HeartbeatTimeout = c.Peers.HeartbeatTimeout
	}
	if c.Peers.HeartbeatInterval > 0 {
		pc.Heartbeat.Interval = c.Peers.HeartbeatInterval
	}
	if c.Peers.FailureThreshold > 0 {
		pc.Health.FailureThreshold = c.Peers.FailureThreshold
	}
	if c.Peers.SuccessThreshold > 0 {
		pc.Health.SuccessThreshold = c.Peers.SuccessThreshold
	}
	if c.Peers.StartupRetries >= 0 {
		pc.Retry.MaxRetries = c.Peers.StartupRetries
	}
	pc.Heartbeat.Concurrency = c.Peers.ProbeConcurrency
	return pc
}
