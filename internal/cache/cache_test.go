// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/metrics"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
	"github.com/sigil-dev/recall/pkg/vecmath"
)

// mapEmbedder returns the vector registered for a text.
type mapEmbedder struct {
	vectors map[string][]float32
	calls   []string
	err     error
}

func newMapEmbedder() *mapEmbedder {
	return &mapEmbedder{vectors: map[string][]float32{}}
}

func (m *mapEmbedder) set(text string, v ...float32) { m.vectors[text] = v }

func (m *mapEmbedder) Dimensions() int { return 2 }

func (m *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls = append(m.calls, text)
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return []float32{0, 1}, nil
}

// unit returns a 2-d unit vector whose cosine to (1, 0) is sim.
func unit(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func newCache(t *testing.T, emb *mapEmbedder) (*cache.Cache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "answer_cache.json")
	c, err := cache.New(path, emb, cache.Options{})
	require.NoError(t, err)
	return c, path
}

func TestFindSimilarEmptyCache(t *testing.T) {
	emb := newMapEmbedder()
	c, _ := newCache(t, emb)

	hit, err := c.FindSimilar(context.Background(), "How do I center a div?", "")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestFindSimilarParaphraseHit(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("How do I center a div?", 1, 0)
	emb.set("How can I center a div?", unit(0.93)...)
	c, _ := newCache(t, emb)

	_, err := c.Add(ctx, "How do I center a div?", "Use flexbox...", "html_css")
	require.NoError(t, err)

	hit, err := c.FindSimilarAt(ctx, "How can I center a div?", "", 0.85)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "Use flexbox...", hit.Answer)
	assert.Equal(t, "How do I center a div?", hit.OriginalQuery)
	assert.GreaterOrEqual(t, hit.Similarity, 0.85)
	assert.False(t, hit.CreatedAt.IsZero())
}

func TestAddMergesNearDuplicates(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("Q", 1, 0)
	emb.set("Q ", unit(0.99)...)
	c, _ := newCache(t, emb)

	updated := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	merged, err := c.Add(ctx, "Q", "A1", "")
	require.NoError(t, err)
	assert.False(t, merged)

	c.SetNowFunc(func() time.Time { return updated })
	merged, err = c.Add(ctx, "Q ", "A2", "")
	require.NoError(t, err)
	assert.True(t, merged)

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "A2", entries[0].Answer)
	assert.Equal(t, "Q", entries[0].Query, "merge keeps the original query")
	assert.True(t, updated.Equal(entries[0].UpdatedAt))
}

func TestAddBelowMergeThresholdAppends(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("a", 1, 0)
	emb.set("b", unit(0.97)...)
	c, _ := newCache(t, emb)

	_, err := c.Add(ctx, "a", "1", "")
	require.NoError(t, err)
	_, err = c.Add(ctx, "b", "2", "")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestFindSimilarSingleBestMatch(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("mid", 0.866, -0.5)
	emb.set("best", 0.9397, 0.342)
	emb.set("low", 0.5, 0.866)
	c, _ := newCache(t, emb)

	for _, q := range []string{"mid", "best", "low"} {
		_, err := c.Add(ctx, q, "answer for "+q, "")
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	hit, err := c.FindSimilarVector([]float32{1, 0}, "", 0.5)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "best", hit.OriginalQuery)
	assert.Equal(t, "answer for best", hit.Answer)
}

func TestFindSimilarTiesKeepFirst(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("first", 0.6, 0.8)
	emb.set("second", 0.6, -0.8)
	c, _ := newCache(t, emb)

	_, err := c.Add(ctx, "first", "1", "")
	require.NoError(t, err)
	_, err = c.Add(ctx, "second", "2", "")
	require.NoError(t, err)

	hit, err := c.FindSimilarVector([]float32{1, 0}, "", 0.5)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "first", hit.OriginalQuery)
}

func TestFindSimilarThresholdMonotonic(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("q", unit(0.8)...)
	c, _ := newCache(t, emb)
	_, err := c.Add(ctx, "q", "a", "")
	require.NoError(t, err)

	missed := false
	for threshold := 0.0; threshold <= 1.0; threshold += 0.05 {
		hit, err := c.FindSimilarVector([]float32{1, 0}, "", threshold)
		require.NoError(t, err)
		if missed {
			assert.Nil(t, hit, "threshold %.2f turned a miss back into a hit", threshold)
		}
		if hit == nil {
			missed = true
		}
	}
	assert.True(t, missed)
}

func TestFindSimilarThresholdIsInclusive(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	stored := unit(0.85)
	emb.set("q", stored...)
	c, _ := newCache(t, emb)
	_, err := c.Add(ctx, "q", "a", "")
	require.NoError(t, err)

	query := []float32{1, 0}
	score := vecmath.Cosine(query, stored)

	hit, err := c.FindSimilarVector(query, "", score)
	require.NoError(t, err)
	assert.NotNil(t, hit)

	hit, err = c.FindSimilarVector(query, "", math.Nextafter(score, 2))
	require.NoError(t, err)
	assert.Nil(t, hit)
}

// Lookup requires an exact category match when one is given, so entries
// stored without a category never hit a filtered lookup. Invalidation treats
// uncategorized entries the opposite way; TestInvalidateCategoryAsymmetry
// covers that side.
func TestFindSimilarCategoryFilter(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("css", 1, 0)
	emb.set("none", 0.6, 0.8)
	c, _ := newCache(t, emb)

	_, err := c.Add(ctx, "css", "css answer", "html_css")
	require.NoError(t, err)
	_, err = c.Add(ctx, "none", "uncategorized answer", "")
	require.NoError(t, err)

	hit, err := c.FindSimilarVector([]float32{1, 0}, "python", 0.5)
	require.NoError(t, err)
	assert.Nil(t, hit, "different category is excluded and uncategorized is not a wildcard")

	hit, err = c.FindSimilarVector([]float32{0.6, 0.8}, "html_css", 0.5)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "css answer", hit.Answer)

	hit, err = c.FindSimilarVector([]float32{0.6, 0.8}, "all", 0.5)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "uncategorized answer", hit.Answer)
}

func TestInvalidateRelated(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("flexbox layout correction", 1, 0)
	emb.set("flexbox card layout", unit(0.72)...)
	emb.set("python decorators", unit(0.2)...)
	c, _ := newCache(t, emb)

	_, err := c.Add(ctx, "flexbox card layout", "old answer", "")
	require.NoError(t, err)
	_, err = c.Add(ctx, "python decorators", "keep", "")
	require.NoError(t, err)

	n, err := c.InvalidateRelatedAt(ctx, "flexbox layout correction", "", 0.60)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "python decorators", entries[0].Query)

	n, err = c.InvalidateRelated(ctx, "flexbox layout correction", "")
	require.NoError(t, err)
	assert.Zero(t, n, "zero removals is not an error")
}

func TestInvalidateThresholdIsInclusive(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	at := unit(0.6)
	below := unit(0.3)
	emb.set("at", at...)
	emb.set("below", below...)
	c, _ := newCache(t, emb)
	_, err := c.Add(ctx, "at", "x", "")
	require.NoError(t, err)
	_, err = c.Add(ctx, "below", "y", "")
	require.NoError(t, err)

	query := []float32{1, 0}
	n, err := c.InvalidateVector(query, "", vecmath.Cosine(query, at))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "below", c.Entries()[0].Query)
}

// Invalidation protects an entry only when it has a category different from
// the supplied one; uncategorized entries are always eligible.
func TestInvalidateCategoryAsymmetry(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("css", 1, 0)
	emb.set("py", 0.8, 0.6)
	emb.set("none", 0.8, -0.6)
	c, _ := newCache(t, emb)

	_, err := c.Add(ctx, "css", "a", "html_css")
	require.NoError(t, err)
	_, err = c.Add(ctx, "py", "b", "python")
	require.NoError(t, err)
	_, err = c.Add(ctx, "none", "c", "")
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())

	n, err := c.InvalidateVector([]float32{1, 0}, "html_css", 0.6)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining := c.Entries()
	require.Len(t, remaining, 1)
	assert.Equal(t, "python", remaining[0].Category)
}

func TestInvalidateTruncatesText(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	c, err := cache.New("", emb, cache.Options{InvalidateMaxChars: 5})
	require.NoError(t, err)
	_, err = c.Add(ctx, "seed", "x", "")
	require.NoError(t, err)

	_, err = c.InvalidateRelated(ctx, "ÀÉÎÕÜ and more", "")
	require.NoError(t, err)
	assert.Equal(t, "ÀÉÎÕÜ", emb.calls[len(emb.calls)-1])
}

func TestProviderErrorPropagates(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	c, _ := newCache(t, emb)
	_, err := c.Add(ctx, "seed", "x", "")
	require.NoError(t, err)

	emb.err = sigilerr.New(sigilerr.CodeProviderUpstreamFailure, "down")
	_, err = c.FindSimilar(ctx, "q", "")
	assert.True(t, sigilerr.IsProviderFailure(err))
	_, err = c.Add(ctx, "q", "a", "")
	assert.True(t, sigilerr.IsProviderFailure(err))
	_, err = c.InvalidateRelated(ctx, "q", "")
	assert.True(t, sigilerr.IsProviderFailure(err))
}

func TestWrongDimensionRejected(t *testing.T) {
	c, _ := newCache(t, newMapEmbedder())
	_, err := c.FindSimilarVector([]float32{1, 0, 0}, "", 0.5)
	assert.True(t, sigilerr.IsInvalidInput(err))
	_, err = c.AddVector([]float32{1}, "q", "a", "")
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("q1", 1, 0)
	emb.set("q2", 0, 1)
	c, path := newCache(t, emb)

	_, err := c.Add(ctx, "q1", "a1", "html_css")
	require.NoError(t, err)
	_, err = c.Add(ctx, "q2", "a2", "")
	require.NoError(t, err)
	require.NoError(t, c.LastSaveError())

	reloaded, err := cache.New(path, emb, cache.Options{})
	require.NoError(t, err)
	entries := reloaded.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "q1", entries[0].Query)
	assert.Equal(t, "html_css", entries[0].Category)
	assert.Equal(t, []float32{1, 0}, entries[0].Embedding)
	assert.Empty(t, entries[1].Category)
	assert.False(t, entries[1].CreatedAt.IsZero())
}

func TestLoadsLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer_cache.json")
	legacy := `{"entries": [
  {"query": "q", "embedding": [1, 0], "answer": "a", "category": null, "created_at": "2025-01-02T03:04:05.123456"},
  {"query": "wrong dims", "embedding": [1, 0, 0], "answer": "b", "category": "python", "created_at": "2025-01-02T03:04:05"}
]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	c, err := cache.New(path, newMapEmbedder(), cache.Options{})
	require.NoError(t, err)
	entries := c.Entries()
	require.Len(t, entries, 1, "mismatched dimension entries are dropped")
	assert.Equal(t, 2025, entries[0].CreatedAt.Year())
	assert.Empty(t, entries[0].Category)
}

func TestCorruptFileResetsToEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "answer_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	emb := newMapEmbedder()
	c, err := cache.New(path, emb, cache.Options{})
	require.NoError(t, err)
	assert.Zero(t, c.Len())

	_, err = c.Add(ctx, "q", "a", "")
	require.NoError(t, err)

	reloaded, err := cache.New(path, emb, cache.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	// The parent of the cache path is a regular file, so every save fails.
	c, err := cache.New(filepath.Join(blocker, "answer_cache.json"), newMapEmbedder(), cache.Options{})
	require.NoError(t, err)

	_, err = c.Add(ctx, "q", "a", "")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.True(t, sigilerr.HasCode(c.LastSaveError(), sigilerr.CodeStorageWriteFailure), "got code %s", sigilerr.CodeOf(c.LastSaveError()))
	assert.Contains(t, c.LastSaveError().Error(), "saving answer cache")
}

func TestClearAndStats(t *testing.T) {
	ctx := context.Background()
	emb := newMapEmbedder()
	emb.set("a", 1, 0)
	emb.set("b", 0, 1)
	emb.set("c", 0.6, 0.8)
	c, path := newCache(t, emb)

	_, err := c.Add(ctx, "a", "1", "python")
	require.NoError(t, err)
	_, err = c.Add(ctx, "b", "2", "html_css")
	require.NoError(t, err)
	_, err = c.Add(ctx, "c", "3", "")
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, []string{"html_css", "python"}, stats.Categories)
	assert.Equal(t, path, stats.Path)

	c.Clear()
	assert.Zero(t, c.Stats().Count)
	assert.Empty(t, c.Stats().Categories)

	reloaded, err := cache.New(path, emb, cache.Options{})
	require.NoError(t, err)
	assert.Zero(t, reloaded.Len())
}

func TestMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	emb := newMapEmbedder()
	emb.set("q", 1, 0)
	c, err := cache.New("", emb, cache.Options{Metrics: m})
	require.NoError(t, err)

	_, err = c.Add(ctx, "q", "a", "")
	require.NoError(t, err)
	_, err = c.Add(ctx, "q", "b", "")
	require.NoError(t, err)
	_, err = c.FindSimilar(ctx, "q", "")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheWrites.WithLabelValues("insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheWrites.WithLabelValues("merge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.LookupHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEntries))
}

func TestNewRejectsBadThreshold(t *testing.T) {
	_, err := cache.New("", newMapEmbedder(), cache.Options{HitThreshold: 1.5})
	assert.True(t, sigilerr.IsInvalidInput(err))
}
