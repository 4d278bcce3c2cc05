package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderImplementsRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveFetchDuration("t", time.Second)
	r.IncFetchResult("t", ResultSuccess)
	r.SetQueueDepth("t", 3)
	r.ObserveSearchDuration("t", time.Millisecond)
	r.IncSearchQueries("t")
	r.ObserveSegmentBuild("t", time.Second, 10)
	r.IncSyncOutcome("t", "success")
	r.SetIndexedDocuments("t", 42)
}

func TestPrometheusRecorderRegistersAndCounts(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.IncFetchResult("golang", ResultSuccess)
	pr.IncFetchResult("golang", ResultSuccess)
	pr.IncFetchResult("golang", ResultRateLimited)
	pr.SetQueueDepth("golang", 17)
	pr.ObserveSearchDuration("golang", 5*time.Millisecond)
	pr.IncSearchQueries("golang")
	pr.ObserveSegmentBuild("golang", 2*time.Second, 120)
	pr.IncSyncOutcome("golang", "failed")
	pr.SetIndexedDocuments("golang", 120)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.Counter != nil:
				byName[mf.GetName()] += m.Counter.GetValue()
			case m.Gauge != nil:
				byName[mf.GetName()] = m.Gauge.GetValue()
			}
		}
	}

	assert.Equal(t, 3.0, byName["docsearch_fetch_results_total"])
	assert.Equal(t, 17.0, byName["docsearch_crawl_queue_depth"])
	assert.Equal(t, 1.0, byName["docsearch_search_queries_total"])
	assert.Equal(t, 1.0, byName["docsearch_sync_outcomes_total"])
	assert.Equal(t, 120.0, byName["docsearch_indexed_documents"])
}

func TestPrometheusRecorderNilRegistry(t *testing.T) {
	require.NotPanics(t, func() {
		pr := NewPrometheusRecorder(nil)
		pr.IncSearchQueries("t")
	})
}
