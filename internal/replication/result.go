package replication

import "time"

// Result reports the outcome of one replica write.
//
// Each Put produces one Result per replica; they arrive on the
// Coordinator's Results channel in completion order.
type Result struct {
	Key      string
	NodeID   string
	Endpoint string
	Err      error
	Duration time.Duration
}

// OK reports whether the replica acknowledged the write.
func (r Result) OK() bool {
	return r.Err == nil
}
