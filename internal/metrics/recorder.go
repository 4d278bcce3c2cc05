// Package metrics provides observability hooks for the ingestion pipeline
// and search engine. Components receive a Recorder through dependency
// injection; the default NoopRecorder keeps metrics entirely optional.
package metrics

import "time"

// ResultLabel enumerates fetch result categories for counters.
type ResultLabel string

const (
	ResultSuccess     ResultLabel = "success"
	ResultFailure     ResultLabel = "failure"
	ResultRateLimited ResultLabel = "rate_limited"
	ResultSkipped     ResultLabel = "skipped"
)

// Recorder defines observability hooks for tenant sync and search metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveFetchDuration(tenant string, d time.Duration)
	IncFetchResult(tenant string, result ResultLabel)
	SetQueueDepth(tenant string, depth int)
	ObserveSearchDuration(tenant string, d time.Duration)
	IncSearchQueries(tenant string)
	ObserveSegmentBuild(tenant string, d time.Duration, docs int)
	IncSyncOutcome(tenant, outcome string) // outcome: success|failed|skipped
	SetIndexedDocuments(tenant string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveFetchDuration(string, time.Duration)        {}
func (NoopRecorder) IncFetchResult(string, ResultLabel)                {}
func (NoopRecorder) SetQueueDepth(string, int)                         {}
func (NoopRecorder) ObserveSearchDuration(string, time.Duration)       {}
func (NoopRecorder) IncSearchQueries(string)                           {}
func (NoopRecorder) ObserveSegmentBuild(string, time.Duration, int)    {}
func (NoopRecorder) IncSyncOutcome(string, string)                     {}
func (NoopRecorder) SetIndexedDocuments(string, int)                   {}
