// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Lookup(metrics.LookupHit)
		m.CacheWrite(true)
		m.Invalidated(3)
		m.SetCacheEntries(1)
		m.IndexQuery("query")
		m.SetIndexRecords(2)
		m.Embed("single", nil)
		m.EmbedFallback()
		m.ObserveProvider("embed", time.Now())
	})
}

func TestCountersRecord(t *testing.T) {
	m := metrics.New()

	m.Lookup(metrics.LookupHit)
	m.Lookup(metrics.LookupHit)
	m.Lookup(metrics.LookupMiss)
	m.CacheWrite(false)
	m.CacheWrite(true)
	m.Invalidated(2)
	m.Invalidated(0)
	m.SetCacheEntries(7)
	m.Embed("batch", errors.New("boom"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheWrites.WithLabelValues("merge")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheInvalidated), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.CacheEntries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EmbedCalls.WithLabelValues("batch", "error")), 0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := metrics.New()
	m.IndexQuery("filtered")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `recall_index_queries_total{kind="filtered"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestInstancesAreIndependent(t *testing.T) {
	a := metrics.New()
	b := metrics.New()
	a.Lookup(metrics.LookupHit)
	assert.InDelta(t, 0, testutil.ToFloat64(b.CacheLookups.WithLabelValues("hit")), 0)
}
