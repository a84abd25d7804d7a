package store

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"sharded-cache/internal/metrics"
)

// ErrCapacityMisconfigured is returned when a cache is built with a non-positive capacity.
var ErrCapacityMisconfigured = errors.New("cache capacity must be positive")

// Options configures a Store.
type Options struct {
	// Capacity is the maximum number of resident entries. Required.
	Capacity int
	// DefaultTTL applies to Put. Zero means entries written by Put never expire.
	DefaultTTL time.Duration
	// Clock defaults to wall-clock time.
	Clock Clock
	// OnEvict is called with the lock held; it must not call back into the Store.
	OnEvict func(key string, reason EvictReason)
}

// Store is a bounded, concurrency-safe LRU cache with per-entry TTL.
//
// Entries live in a fixed arena of slots linked into a recency list by
// index, so there is no per-entry pointer chasing and freed slots are
// reused. A single mutex serializes every operation, Get included,
// because a hit reorders the recency list.
//
// Expiry is lazy: an expired entry is only reclaimed when Get touches it.
// Until then it still occupies a slot and can be evicted for capacity
// like any other entry.
type Store struct {
	mu         sync.Mutex
	slots      []slot
	free       []int32
	index      map[string]int32
	head       int32 // most recently used
	tail       int32 // least recently used
	capacity   int
	defaultTTL time.Duration
	clock      Clock
	onEvict    func(string, EvictReason)
	metrics    *metrics.Registry
}

// NewStore initializes and returns a new Store.
func NewStore(opts Options, reg *metrics.Registry) (*Store, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrCapacityMisconfigured, opts.Capacity)
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	initial := opts.Capacity
	if initial > 1024 {
		initial = 1024
	}

	return &Store{
		slots:      make([]slot, 0, initial),
		index:      make(map[string]int32, initial),
		head:       nilIndex,
		tail:       nilIndex,
		capacity:   opts.Capacity,
		defaultTTL: opts.DefaultTTL,
		clock:      opts.Clock,
		onEvict:    opts.OnEvict,
		metrics:    reg,
	}, nil
}

// Get returns the value for key and marks it most recently used.
// An entry found past its expiry is removed and reported as absent.
func (s *Store) Get(key string) ([]byte, bool) {
	s.metrics.Inc(metrics.CacheGetsTotal)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[key]
	if !ok {
		s.metrics.Inc(metrics.CacheMissesTotal)
		return nil, false
	}

	sl := &s.slots[idx]
	if sl.expired(s.clock.NowUnixNano()) {
		s.removeLocked(idx, true)
		s.metrics.Inc(metrics.CacheExpiredTotal)
		s.metrics.Inc(metrics.CacheMissesTotal)
		return nil, false
	}

	s.moveToFront(idx)
	s.metrics.Inc(metrics.CacheHitsTotal)
	return sl.value, true
}

// Put stores value under key with the default TTL.
func (s *Store) Put(key string, value []byte) {
	s.put(key, value, s.defaultTTL)
}

// PutWithTTL stores value under key, expiring ttl from now.
// A non-positive ttl means the entry never expires.
func (s *Store) PutWithTTL(key string, value []byte, ttl time.Duration) {
	s.put(key, value, ttl)
}

// deadline returns now+ttl, saturating at math.MaxInt64 so very long
// TTLs never wrap into the past.
func deadline(now int64, ttl time.Duration) int64 {
	if int64(ttl) > math.MaxInt64-now {
		return math.MaxInt64
	}
	return now + int64(ttl)
}

func (s *Store) put(key string, value []byte, ttl time.Duration) {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = deadline(s.clock.NowUnixNano(), ttl)
	}

	s.metrics.Inc(metrics.CacheSetsTotal)

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.index[key]; ok {
		sl := &s.slots[idx]
		sl.value = value
		sl.expiresAt = expiresAt
		s.moveToFront(idx)
		return
	}

	// Full: the LRU entry goes before the new one takes a slot. The new
	// entry always lands at the head, so this is the same entry that would
	// be evicted after inserting.
	if len(s.index) >= s.capacity {
		s.evictTail()
	}

	idx := s.allocSlot()
	s.slots[idx] = slot{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
		prev:      nilIndex,
		next:      nilIndex,
	}
	s.index[key] = idx
	s.insertFront(idx)
	s.metrics.Set(metrics.CacheKeys, int64(len(s.index)))
}

// Delete removes key. It reports whether the key was resident.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[key]
	if !ok {
		return false
	}
	s.removeLocked(idx, false)
	return true
}

// Len returns the number of resident entries, including expired ones
// that have not been touched since they expired.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Capacity returns the configured capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// List returns a snapshot of all non-expired entries.
// It neither reclaims expired entries nor changes recency.
// Used by admin APIs.
func (s *Store) List() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.NowUnixNano()
	result := make(map[string]Entry, len(s.index))
	for i := s.head; i != nilIndex; i = s.slots[i].next {
		sl := &s.slots[i]
		if sl.expired(now) {
			continue
		}
		e := Entry{Value: sl.value}
		if sl.expiresAt != 0 {
			e.ExpiresAt = time.Unix(0, sl.expiresAt)
		}
		result[sl.key] = e
	}
	return result
}

/* ---------------- arena + recency list (lock held) ---------------- */

func (s *Store) allocSlot() int32 {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		return idx
	}
	s.slots = append(s.slots, slot{})
	return int32(len(s.slots) - 1)
}

func (s *Store) insertFront(idx int32) {
	sl := &s.slots[idx]
	sl.prev = nilIndex
	sl.next = s.head
	if s.head != nilIndex {
		s.slots[s.head].prev = idx
	}
	s.head = idx
	if s.tail == nilIndex {
		s.tail = idx
	}
}

func (s *Store) unlink(idx int32) {
	sl := &s.slots[idx]
	if sl.prev != nilIndex {
		s.slots[sl.prev].next = sl.next
	} else {
		s.head = sl.next
	}
	if sl.next != nilIndex {
		s.slots[sl.next].prev = sl.prev
	} else {
		s.tail = sl.prev
	}
	sl.prev, sl.next = nilIndex, nilIndex
}

func (s *Store) moveToFront(idx int32) {
	if s.head == idx {
		return
	}
	s.unlink(idx)
	s.insertFront(idx)
}

func (s *Store) evictTail() {
	if s.tail == nilIndex {
		return
	}
	key := s.slots[s.tail].key
	s.removeLocked(s.tail, false)
	s.metrics.Inc(metrics.CacheEvictedTotal)
	if s.onEvict != nil {
		s.onEvict(key, EvictCapacity)
	}
}

func (s *Store) removeLocked(idx int32, expired bool) {
	key := s.slots[idx].key
	s.unlink(idx)
	delete(s.index, key)
	s.slots[idx] = slot{prev: nilIndex, next: nilIndex}
	s.free = append(s.free, idx)
	s.metrics.Set(metrics.CacheKeys, int64(len(s.index)))

	if expired && s.onEvict != nil {
		s.onEvict(key, EvictTTL)
	}
}
