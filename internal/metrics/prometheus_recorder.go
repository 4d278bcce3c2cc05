package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	fetchDuration  *prom.HistogramVec
	fetchResults   *prom.CounterVec
	queueDepth     *prom.GaugeVec
	searchDuration *prom.HistogramVec
	searchQueries  *prom.CounterVec
	segmentBuild   *prom.HistogramVec
	segmentDocs    *prom.GaugeVec
	syncOutcomes   *prom.CounterVec
	indexedDocs    *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on the
// given registry. A nil registry gets a fresh private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		fetchDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docsearch",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of individual document fetches",
			Buckets:   prom.DefBuckets,
		}, []string{"tenant"}),
		fetchResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docsearch",
			Name:      "fetch_results_total",
			Help:      "Fetch result counts by outcome",
		}, []string{"tenant", "result"}),
		queueDepth: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "docsearch",
			Name:      "crawl_queue_depth",
			Help:      "Pending URLs in the crawl queue",
		}, []string{"tenant"}),
		searchDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docsearch",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search request latency",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"tenant"}),
		searchQueries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docsearch",
			Name:      "search_queries_total",
			Help:      "Search queries served",
		}, []string{"tenant"}),
		segmentBuild: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docsearch",
			Name:      "segment_build_duration_seconds",
			Help:      "Duration of index segment builds",
			Buckets:   prom.DefBuckets,
		}, []string{"tenant"}),
		segmentDocs: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "docsearch",
			Name:      "segment_build_documents",
			Help:      "Documents indexed in the most recent segment build",
		}, []string{"tenant"}),
		syncOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docsearch",
			Name:      "sync_outcomes_total",
			Help:      "Tenant sync cycles by final status",
		}, []string{"tenant", "outcome"}),
		indexedDocs: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "docsearch",
			Name:      "indexed_documents",
			Help:      "Documents in the active search segment",
		}, []string{"tenant"}),
	}
	reg.MustRegister(
		pr.fetchDuration, pr.fetchResults, pr.queueDepth,
		pr.searchDuration, pr.searchQueries,
		pr.segmentBuild, pr.segmentDocs, pr.syncOutcomes, pr.indexedDocs,
	)
	return pr
}

func (pr *PrometheusRecorder) ObserveFetchDuration(tenant string, d time.Duration) {
	pr.fetchDuration.WithLabelValues(tenant).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncFetchResult(tenant string, result ResultLabel) {
	pr.fetchResults.WithLabelValues(tenant, string(result)).Inc()
}

func (pr *PrometheusRecorder) SetQueueDepth(tenant string, depth int) {
	pr.queueDepth.WithLabelValues(tenant).Set(float64(depth))
}

func (pr *PrometheusRecorder) ObserveSearchDuration(tenant string, d time.Duration) {
	pr.searchDuration.WithLabelValues(tenant).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncSearchQueries(tenant string) {
	pr.searchQueries.WithLabelValues(tenant).Inc()
}

func (pr *PrometheusRecorder) ObserveSegmentBuild(tenant string, d time.Duration, docs int) {
	pr.segmentBuild.WithLabelValues(tenant).Observe(d.Seconds())
	pr.segmentDocs.WithLabelValues(tenant).Set(float64(docs))
}

func (pr *PrometheusRecorder) IncSyncOutcome(tenant, outcome string) {
	pr.syncOutcomes.WithLabelValues(tenant, outcome).Inc()
}

func (pr *PrometheusRecorder) SetIndexedDocuments(tenant string, n int) {
	pr.indexedDocs.WithLabelValues(tenant).Set(float64(n))
}
