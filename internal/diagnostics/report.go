package diagnostics

// HealthStatus represents overall cluster health.
type HealthStatus string

const (
	StatusOK       HealthStatus = "OK"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusCritical HealthStatus = "CRITICAL"
)

// HealthReport summarizes what the metrics and recent logs say.
type HealthReport struct {
	OverallStatus   HealthStatus `json:"overall_status"`
	Summary         string       `json:"summary"`
	Signals         []string     `json:"signals"`
	Recommendations []string     `json:"recommendations"`
}

func escalate(current, next HealthStatus) HealthStatus {
	if next == StatusCritical || current == StatusCritical {
		return StatusCritical
	}
	if next == StatusDegraded || current == StatusDegraded {
		return StatusDegraded
	}
	return StatusOK
}
