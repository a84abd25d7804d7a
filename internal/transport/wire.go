package transport

import (
	"encoding/json"
	"math"
	"time"
)

// GetResponse is the body of GET /cache/{key}. Value is JSON null when
// the key is absent.
type GetResponse struct {
	Value json.RawMessage `json:"value"`
}

// PutRequest is the body of POST /cache/{key}.
// TTL is in seconds; omitted means the shard's default TTL and a
// non-positive value means no expiry.
type PutRequest struct {
	Value json.RawMessage `json:"value" validate:"required"`
	TTL   *float64        `json:"ttl,omitempty"`
}

// PutResponse acknowledges a write.
type PutResponse struct {
	OK bool `json:"ok"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

const StatusUp = "up"

// TTLSeconds converts a wire TTL to a duration. Values beyond the range
// of time.Duration saturate.
func TTLSeconds(secs float64) time.Duration {
	ns := secs * float64(time.Second)
	switch {
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}

// PutOption customizes a single write.
type PutOption func(*PutRequest)

// WithTTL expires the entry d after it is written. d <= 0 disables expiry.
func WithTTL(d time.Duration) PutOption {
	return func(r *PutRequest) {
		secs := d.Seconds()
		if d <= 0 {
			secs = 0
		}
		r.TTL = &secs
	}
}

// NoExpiry stores the entry without expiry regardless of the shard default.
func NoExpiry() PutOption {
	return WithTTL(0)
}

// NewPutRequest builds a write body from value and options.
func NewPutRequest(value json.RawMessage, opts ...PutOption) PutRequest {
	req := PutRequest{Value: value}
	for _, opt := range opts {
		if opt != nil {
			opt(&req)
		}
	}
	return req
}
