// Package diagnostics turns metrics and recent log entries into a
// human-readable health report.
package diagnostics

import (
	"strings"

	"sharded-cache/internal/logs"
	"sharded-cache/internal/metrics"
)

const logWindow = 100

// HealthAnalyzer converts metrics + logs into a health report.
type HealthAnalyzer struct {
	metrics *metrics.Registry
	logger  *logs.Logger
	rules   []Rule
}

// NewHealthAnalyzer creates a new analyzer using DefaultRules.
func NewHealthAnalyzer(
	reg *metrics.Registry,
	logger *logs.Logger,
	rules ...Rule,
) *HealthAnalyzer {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &HealthAnalyzer{
		metrics: reg,
		logger:  logger,
		rules:   rules,
	}
}

// Analyze evaluates metrics and logs and returns a health report.
func (ha *HealthAnalyzer) Analyze() HealthReport {
	snapshot := ha.metrics.Snapshot()

	var (
		signals         = []string{}
		recommendations = []string{}
		status          = StatusOK
	)

	/* ---------- METRICS-BASED RULES ---------- */

	for _, rule := range ha.rules {
		result := rule(snapshot)
		if !result.Triggered {
			continue
		}

		signals = append(signals, result.Signal)
		recommendations = append(recommendations, result.Recommendation)
		status = escalate(status, result.Severity)
	}

	/* ---------- LOG-BASED SIGNALS ---------- */

	replicationFailures := 0
	panicCount := 0

	for _, entry := range ha.logger.GetLast(logWindow) {
		if entry.Level == logs.WARN &&
			strings.Contains(entry.Message, "replication failed") {
			replicationFailures++
		}

		if entry.Level == logs.ERROR &&
			strings.Contains(entry.Message, "panic") {
			panicCount++
		}
	}

	if replicationFailures >= 3 {
		signals = append(signals,
			"Repeated replication failures detected in logs",
		)
		recommendations = append(recommendations,
			"Investigate network connectivity or node health",
		)
		status = escalate(status, StatusDegraded)
	}

	if panicCount > 0 {
		signals = append(signals,
			"Application panics detected in logs",
		)
		recommendations = append(recommendations,
			"Inspect stack traces and stabilize error handling",
		)
		status = StatusCritical
	}

	/* ---------- SUMMARY ---------- */

	summary := "System is healthy"
	if status != StatusOK {
		summary = "System health issues detected"
	}

	return HealthReport{
		OverallStatus:   status,
		Summary:         summary,
		Signals:         signals,
		Recommendations: recommendations,
	}
}
