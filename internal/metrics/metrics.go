// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package metrics holds the Prometheus instruments of the retrieval core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup outcomes.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Metrics holds all instruments, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CacheLookups     *prometheus.CounterVec
	CacheWrites      *prometheus.CounterVec
	CacheInvalidated prometheus.Counter
	CacheEntries     prometheus.Gauge

	IndexQueries *prometheus.CounterVec
	IndexRecords prometheus.Gauge

	EmbedCalls     *prometheus.CounterVec
	EmbedFallbacks prometheus.Counter
	ProviderTime   *prometheus.HistogramVec
}

// New creates the instruments on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_cache_lookups_total",
			Help: "Semantic cache lookups by outcome",
		}, []string{"outcome"}), // hit, miss, error

		CacheWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_cache_writes_total",
			Help: "Semantic cache writes by kind",
		}, []string{"kind"}), // insert, merge

		CacheInvalidated: f.NewCounter(prometheus.CounterOpts{
			Name: "recall_cache_invalidated_entries_total",
			Help: "Cache entries removed by invalidation",
		}),

		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "recall_cache_entries",
			Help: "Current number of cache entries",
		}),

		IndexQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_index_queries_total",
			Help: "Vector index queries by kind",
		}, []string{"kind"}), // query, filtered

		IndexRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "recall_index_records",
			Help: "Current number of indexed records",
		}),

		EmbedCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_embedding_calls_total",
			Help: "Embedding adapter calls by mode and outcome",
		}, []string{"mode", "outcome"}),

		EmbedFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "recall_embedding_batch_fallbacks_total",
			Help: "Batch embedding calls that fell back to per-item requests",
		}),

		ProviderTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recall_provider_request_duration_seconds",
			Help:    "Provider call latency in seconds, retries included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"op"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Lookup(outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheWrite(merged bool) {
	if m == nil {
		return
	}
	kind := "insert"
	if merged {
		kind = "merge"
	}
	m.CacheWrites.WithLabelValues(kind).Inc()
}

func (m *Metrics) Invalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheInvalidated.Add(float64(n))
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

func (m *Metrics) IndexQuery(kind string) {
	if m == nil {
		return
	}
	m.IndexQueries.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetIndexRecords(n int) {
	if m == nil {
		return
	}
	m.IndexRecords.Set(float64(n))
}

func (m *Metrics) Embed(mode string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EmbedCalls.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) EmbedFallback() {
	if m == nil {
		return
	}
	m.EmbedFallbacks.Inc()
}

// ObserveProvider records the time since start under op.
func (m *Metrics) ObserveProvider(op string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderTime.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
