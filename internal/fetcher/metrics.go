package fetcher

import "sync/atomic"

// Metrics counts fetch outcomes for status reporting.
type Metrics struct {
	attempts  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// Snapshot returns current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Attempts:  m.attempts.Load(),
		Successes: m.successes.Load(),
		Failures:  m.failures.Load(),
	}
}
