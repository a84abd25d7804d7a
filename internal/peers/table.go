package peers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"sharded-cache/internal/metrics"
)

var ErrNodeNotFound = errors.New("node not in table")

// State represents the health state of a node.
type State int

const (
	Healthy State = iota
	Degraded
)

func (s State) String() string {
	if s == Degraded {
		return "degraded"
	}
	return "healthy"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Node tracks the address and health-related state of a single shard.
type Node struct {
	ID           string    `json:"id"`
	Endpoint     string    `json:"endpoint"`
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	LastChecked  time.Time `json:"last_checked"`
}

// Table maps node IDs to endpoints and tracks node health.
// Membership is fixed at construction time in practice; Add and Remove
// exist for wiring and tests.
type Table struct {
	mu      sync.RWMutex
	nodes   map[string]*Node
	config  PeerConfig
	metrics *metrics.Registry
}

// NewTable creates a node table.
func NewTable(cfg PeerConfig, reg *metrics.Registry) *Table {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Table{
		nodes:   make(map[string]*Node),
		config:  cfg,
		metrics: reg,
	}
}

// Add registers a node as healthy, or updates the endpoint of a known node.
func (t *Table) Add(id, endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n, exists := t.nodes[id]; exists {
		n.Endpoint = endpoint
		return
	}
	t.nodes[id] = &Node{
		ID:       id,
		Endpoint: endpoint,
		State:    Healthy,
	}
	t.publishLocked()
}

// Remove forgets a node.
func (t *Table) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	delete(t.nodes, id)
	t.publishLocked()
	return nil
}

// Endpoint returns the base URL of a node.
func (t *Table) Endpoint(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return "", false
	}
	return n.Endpoint, true
}

// MarkFailure records a failed probe. It returns true when this call
// moved the node from Healthy to Degraded.
func (t *Table) MarkFailure(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	t.metrics.Inc(metrics.PeerFailuresTotal)

	n.FailureCount++
	n.SuccessCount = 0
	n.LastChecked = time.Now()
	if n.State == Healthy && n.FailureCount >= t.config.Health.FailureThreshold {
		n.State = Degraded
		t.publishLocked()
		return true
	}
	return false
}

// MarkSuccess records a successful probe. It returns true when this call
// moved the node from Degraded back to Healthy.
func (t *Table) MarkSuccess(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	n.SuccessCount++
	n.FailureCount = 0
	n.LastChecked = time.Now()
	if n.State == Degraded && n.SuccessCount >= t.config.Health.SuccessThreshold {
		n.State = Healthy
		t.publishLocked()
		return true
	}
	return false
}

func (t *Table) IsHealthy(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	return ok && n.State == Healthy
}

// IDs returns all node IDs, sorted.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of configured nodes, healthy or not.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Snapshot returns copies of all nodes sorted by ID.
func (t *Table) Snapshot() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Table) publishLocked() {
	var healthy, degraded int64
	for _, n := range t.nodes {
		if n.State == Healthy {
			healthy++
		} else {
			degraded++
		}
	}
	t.metrics.Set(metrics.PeersHealthy, healthy)
	t.metrics.Set(metrics.PeersDegraded, degraded)
}
