// Package metrics defines the prometheus collectors shared by sync, search
// and monthly preparation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "azurebridge"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	WorkItemsSynced *prometheus.CounterVec
	WorkItemsFailed *prometheus.CounterVec
	RevisionsStored prometheus.Counter
	SyncRuns        *prometheus.CounterVec
	Searches        *prometheus.CounterVec
	SearchResults   *prometheus.CounterVec
	SearchLegErrors *prometheus.CounterVec
	SearchDuration  prometheus.Histogram
	EmbeddingTokens *prometheus.CounterVec
	ChunksIngested  *prometheus.CounterVec
	PreparationRuns *prometheus.CounterVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		WorkItemsSynced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_items_synced_total",
			Help:      "Work items written to the store, by sync mode.",
		}, []string{"mode"}),
		WorkItemsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_items_failed_total",
			Help:      "Work items skipped because of a per-item error, by sync mode.",
		}, []string{"mode"}),
		RevisionsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_stored_total",
			Help:      "Work item revisions upserted.",
		}),
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Completed sync runs, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Hybrid searches served, by outcome.",
		}, []string{"outcome"}),
		SearchResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_results_total",
			Help:      "Results returned, by match type.",
		}, []string{"match_type"}),
		SearchLegErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_leg_errors_total",
			Help:      "Failed search legs, by leg.",
		}, []string{"leg"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Hybrid search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		EmbeddingTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_tokens_total",
			Help:      "Tokens billed by the embedding provider, by caller.",
		}, []string{"caller"}),
		ChunksIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Chunks inserted, by source type.",
		}, []string{"source_type"}),
		PreparationRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preparation_runs_total",
			Help:      "Monthly preparation runs finished, by status.",
		}, []string{"status"}),
	}
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ItemsSynced(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.WorkItemsSynced.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) ItemsFailed(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.WorkItemsFailed.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) Revisions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RevisionsStored.Add(float64(n))
}

func (m *Metrics) SyncRun(mode string, err error) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(mode, outcome(err)).Inc()
}

// Search records one search call with its latency and per-match-type result counts
func (m *Metrics) Search(elapsed time.Duration, matchTypes []string, err error) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(outcome(err)).Inc()
	m.SearchDuration.Observe(elapsed.Seconds())
	for _, mt := range matchTypes {
		m.SearchResults.WithLabelValues(mt).Inc()
	}
}

func (m *Metrics) SearchLegFailed(leg string) {
	if m == nil {
		return
	}
	m.SearchLegErrors.WithLabelValues(leg).Inc()
}

func (m *Metrics) Tokens(caller string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EmbeddingTokens.WithLabelValues(caller).Add(float64(n))
}

func (m *Metrics) Chunks(sourceType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunksIngested.WithLabelValues(sourceType).Add(float64(n))
}

func (m *Metrics) PreparationFinished(status string) {
	if m == nil {
		return
	}
	m.PreparationRuns.WithLabelValues(status).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
