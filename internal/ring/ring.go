// Package ring implements consistent hashing with virtual nodes.
//
// Each physical node is placed on a 128-bit ring at the md5 positions of
// "{nodeID}#{i}" for i in [0, replicas). A key belongs to the node owning
// the first placement at or clockwise after md5(key).
package ring

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
)

// DefaultReplicas is the number of virtual placements per physical node.
const DefaultReplicas = 100

var (
	ErrNoNodes      = errors.New("ring has no nodes")
	ErrNodeNotFound = errors.New("node not on ring")
)

// Hash is a position on the 128-bit ring.
type Hash struct {
	Hi, Lo uint64
}

// Compare orders positions as unsigned 128-bit integers.
func (h Hash) Compare(o Hash) int {
	switch {
	case h.Hi < o.Hi:
		return -1
	case h.Hi > o.Hi:
		return 1
	case h.Lo < o.Lo:
		return -1
	case h.Lo > o.Lo:
		return 1
	default:
		return 0
	}
}

// HashKey returns the ring position of an arbitrary string.
func HashKey(s string) Hash {
	sum := md5.Sum([]byte(s))
	return Hash{
		Hi: binary.BigEndian.Uint64(sum[:8]),
		Lo: binary.BigEndian.Uint64(sum[8:]),
	}
}

type point struct {
	hash Hash
	node string
}

// Ring is safe for concurrent use.
type Ring struct {
	mu       sync.RWMutex
	replicas int
	points   []point // sorted by hash
	nodes    map[string]struct{}
}

// New builds a ring with the given placements per node (DefaultReplicas
// when replicas <= 0) and adds nodes in order.
func New(replicas int, nodes ...string) *Ring {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	r := &Ring{
		replicas: replicas,
		nodes:    make(map[string]struct{}),
	}
	for _, n := range nodes {
		r.AddNode(n)
	}
	return r
}

// Replicas returns the number of placements per node.
func (r *Ring) Replicas() int {
	return r.replicas
}

func virtualKey(node string, i int) string {
	return node + "#" + strconv.Itoa(i)
}

func cmpPoint(p point, h Hash) int {
	return p.hash.Compare(h)
}

// AddNode places node on the ring. Adding a node that is already present
// is a no-op.
func (r *Ring) AddNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[node]; ok {
		return
	}
	r.nodes[node] = struct{}{}

	for i := 0; i < r.replicas; i++ {
		h := HashKey(virtualKey(node, i))
		idx, found := slices.BinarySearchFunc(r.points, h, cmpPoint)
		if found {
			// Position already owned; the earlier owner keeps it.
			continue
		}
		r.points = slices.Insert(r.points, idx, point{hash: h, node: node})
	}
}

// RemoveNode removes every placement of node.
func (r *Ring) RemoveNode(node string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[node]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, node)
	}
	delete(r.nodes, node)
	r.points = slices.DeleteFunc(r.points, func(p point) bool {
		return p.node == node
	})
	return nil
}

// Route returns the node owning key.
func (r *Ring) Route(key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.points) == 0 {
		return "", ErrNoNodes
	}
	return r.points[r.search(HashKey(key))].node, nil
}

// Successors returns up to n distinct nodes walking clockwise from key's
// position. The first element is Route(key).
func (r *Ring) Successors(key string, n int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.points) == 0 {
		return nil, ErrNoNodes
	}
	if n <= 0 {
		return nil, nil
	}
	if n > len(r.nodes) {
		n = len(r.nodes)
	}

	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	start := r.search(HashKey(key))
	for i := 0; i < len(r.points) && len(out) < n; i++ {
		node := r.points[(start+i)%len(r.points)].node
		if _, dup := seen[node]; dup {
			continue
		}
		seen[node] = struct{}{}
		out = append(out, node)
	}
	return out, nil
}

// search returns the index of the first point at or after h, wrapping to 0.
func (r *Ring) search(h Hash) int {
	idx, _ := slices.BinarySearchFunc(r.points, h, cmpPoint)
	if idx == len(r.points) {
		return 0
	}
	return idx
}

// Has reports whether node is on the ring.
func (r *Ring) Has(node string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[node]
	return ok
}

// Nodes returns the physical nodes on the ring, sorted.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.nodes))
	for n := range r.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of physical nodes.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
