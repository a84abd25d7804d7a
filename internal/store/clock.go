package store

import "time"

// Clock abstracts time for TTL decisions; inject a fake one in tests.
type Clock interface {
	NowUnixNano() int64
}

type realClock struct{}

func (realClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// EvictReason tells an OnEvict callback why an entry left the cache.
type EvictReason int

const (
	EvictCapacity EvictReason = iota
	EvictTTL
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictTTL:
		return "ttl"
	default:
		return "unknown"
	}
}
