package peers

import (
	"testing"

	"sharded-cache/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAddAndIsHealthy(t *testing.T) {
	cfg := DefaultPeerConfig()
	reg := metrics.NewRegistry()
	tbl := NewTable(cfg, reg)

	tbl.Add("cache1", "http://127.0.0.1:5001")
	assert.True(t, tbl.IsHealthy("cache1"))
	assert.False(t, tbl.IsHealthy("cache2"))

	ep, ok := tbl.Endpoint("cache1")
	assert.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:5001", ep)

	_, ok = tbl.Endpoint("cache2")
	assert.False(t, ok)

	assert.Equal(t, int64(1), reg.Snapshot()[string(metrics.PeersHealthy)])
}

func TestTableAddUpdatesEndpoint(t *testing.T) {
	tbl := NewTable(DefaultPeerConfig(), nil)

	tbl.Add("cache1", "http://a")
	tbl.Add("cache1", "http://b")

	ep, _ := tbl.Endpoint("cache1")
	assert.Equal(t, "http://b", ep)
	assert.Equal(t, 1, tbl.Len())
}

func TestTableMarkFailureTransitionsToDegraded(t *testing.T) {
	cfg := DefaultPeerConfig()
	cfg.Health.FailureThreshold = 2

	reg := metrics.NewRegistry()
	tbl := NewTable(cfg, reg)
	tbl.Add("cache1", "http://a")

	assert.False(t, tbl.MarkFailure("cache1"))
	assert.True(t, tbl.IsHealthy("cache1"))

	assert.True(t, tbl.MarkFailure("cache1"), "second failure crosses the threshold")
	assert.False(t, tbl.IsHealthy("cache1"))

	assert.False(t, tbl.MarkFailure("cache1"), "already degraded")

	snap := reg.Snapshot()
	assert.Equal(t, int64(3), snap[string(metrics.PeerFailuresTotal)])
	assert.Equal(t, int64(1), snap[string(metrics.PeersDegraded)])
	assert.Equal(t, int64(0), snap[string(metrics.PeersHealthy)])
}

func TestTableMarkSuccessRecoversNode(t *testing.T) {
	cfg := DefaultPeerConfig()
	cfg.Health.FailureThreshold = 1
	cfg.Health.SuccessThreshold = 2

	reg := metrics.NewRegistry()
	tbl := NewTable(cfg, reg)

	tbl.Add("cache1", "http://a")
	require.True(t, tbl.MarkFailure("cache1"))

	assert.False(t, tbl.MarkSuccess("cache1"))
	assert.False(t, tbl.IsHealthy("cache1"))

	assert.True(t, tbl.MarkSuccess("cache1"))
	assert.True(t, tbl.IsHealthy("cache1"))

	assert.False(t, tbl.MarkSuccess("cache1"), "already healthy")

	snap := reg.Snapshot()
	assert.Equal(t, int64(1), snap[string(metrics.PeersHealthy)])
	assert.Equal(t, int64(0), snap[string(metrics.PeersDegraded)])
}

func TestTableCountersResetCorrectly(t *testing.T) {
	tbl := NewTable(DefaultPeerConfig(), nil)
	tbl.Add("cache1", "http://a")

	tbl.MarkSuccess("cache1")
	tbl.MarkFailure("cache1")

	n := tbl.Snapshot()[0]
	assert.Equal(t, 0, n.SuccessCount)
	assert.Equal(t, 1, n.FailureCount)
	assert.False(t, n.LastChecked.IsZero())
}

func TestTableUnknownNodeNoPanic(t *testing.T) {
	tbl := NewTable(DefaultPeerConfig(), nil)

	assert.NotPanics(t, func() {
		assert.False(t, tbl.MarkFailure("unknown"))
		assert.False(t, tbl.MarkSuccess("unknown"))
	})
	assert.ErrorIs(t, tbl.Remove("unknown"), ErrNodeNotFound)
}

func TestTableSnapshotSorted(t *testing.T) {
	tbl := NewTable(DefaultPeerConfig(), nil)

	tbl.Add("cache2", "http://b")
	tbl.Add("cache1", "http://a")
	tbl.Add("cache3", "http://c")
	require.NoError(t, tbl.Remove("cache3"))

	assert.Equal(t, []string{"cache1", "cache2"}, tbl.IDs())

	snap := tbl.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "cache1", snap[0].ID)
	assert.Equal(t, Healthy, snap[0].State)

	// Snapshot is a copy.
	snap[0].State = Degraded
	assert.True(t, tbl.IsHealthy("cache1"))
}
