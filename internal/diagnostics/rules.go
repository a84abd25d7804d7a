package diagnostics

import "sharded-cache/internal/metrics"

// RuleResult represents the outcome of a single rule.
type RuleResult struct {
	Triggered      bool
	Signal         string
	Recommendation string
	Severity       HealthStatus
}

// Rule evaluates a metrics snapshot.
type Rule func(snapshot map[string]int64) RuleResult

// DefaultRules is the rule set used by NewHealthAnalyzer.
var DefaultRules = []Rule{
	ReplicationFailureRule,
	NodeDegradedRule,
	RingEmptyRule,
	ShardUnreachableRule,
	UnroutableKeyRule,
	HeartbeatFailureRule,
}

// ---------- RULES ----------

// Failed replica writes leave keys under-replicated.
func ReplicationFailureRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.ReplicationFailureTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Replica writes have failed",
			Recommendation: "Check shard reachability and the request timeout",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Degraded nodes are off the ring; capacity and redundancy are reduced.
func NodeDegradedRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.PeersDegraded)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "One or more nodes are degraded",
			Recommendation: "Inspect degraded shards; they rejoin the ring once probes succeed",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// With no nodes on the ring nothing can be served.
func RingEmptyRule(snapshot map[string]int64) RuleResult {
	if n, ok := snapshot[string(metrics.RingNodes)]; ok && n == 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Hash ring is empty",
			Recommendation: "Bring at least one shard back online",
			Severity:       StatusCritical,
		}
	}
	return RuleResult{}
}

// Reads or writes routed to a shard that did not answer.
func ShardUnreachableRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.RouterUnreachableTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Routed requests could not reach their shard",
			Recommendation: "Check shard processes and network; lower the heartbeat interval to react faster",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Keys with no owner mean the ring was empty or the node table is stale.
func UnroutableKeyRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.RouterUnroutableTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Requests could not be routed to any shard",
			Recommendation: "Verify the shard endpoint table matches the ring",
			Severity:       StatusCritical,
		}
	}
	return RuleResult{}
}

// Frequent heartbeat failures indicate liveness issues.
func HeartbeatFailureRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.HeartbeatFailuresTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Heartbeat failures detected",
			Recommendation: "Check shard availability and /health endpoints",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}
