package metrics

import dto "github.com/prometheus/client_model/go"

// Snapshot returns a copy of all metrics as integers keyed by MetricKey.
// Safe for concurrent use and immune to external mutation.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.collectors))
	for key, c := range r.collectors {
		var m dto.Metric
		if err := c.Write(&m); err != nil {
			continue
		}
		switch {
		case m.Counter != nil:
			out[string(key)] = int64(m.Counter.GetValue())
		case m.Gauge != nil:
			out[string(key)] = int64(m.Gauge.GetValue())
		}
	}
	return out
}
