// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package cache is the semantic answer cache: (query, answer) pairs looked
// up by cosine similarity of the query vector rather than by exact text.
//
// The whole cache lives in memory and is rewritten to a single JSON file
// after every mutation. Mutations within one process are serialized; two
// processes sharing the file overwrite each other's changes.
package cache

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sigil-dev/recall/internal/metrics"
	"github.com/sigil-dev/recall/internal/record"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
	"github.com/sigil-dev/recall/pkg/vecmath"
)

// Default policy values.
const (
	DefaultHitThreshold        = 0.85
	DefaultMergeThreshold      = 0.98
	DefaultInvalidateThreshold = 0.60
	DefaultInvalidateMaxChars  = 2000
)

// Embedder converts query text to vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	HitThreshold        float64
	MergeThreshold      float64
	InvalidateThreshold float64
	InvalidateMaxChars  int
	Logger              *slog.Logger
	Metrics             *metrics.Metrics
}

// Entry is one cached answer.
type Entry struct {
	Query     string
	Embedding []float32
	Answer    string
	Category  string // empty when absent
	CreatedAt time.Time
	UpdatedAt time.Time // zero until merged
}

// Hit is a successful lookup.
type Hit struct {
	Answer        string    `json:"answer"`
	OriginalQuery string    `json:"original_query"`
	Similarity    float64   `json:"similarity"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stats summarizes the cache contents.
type Stats struct {
	Count      int      `json:"count"`
	Categories []string `json:"categories"`
	Path       string   `json:"path"`
}

// Cache is the SemanticCache.
type Cache struct {
	mu          sync.Mutex
	path        string
	embedder    Embedder
	opts        Options
	entries     []Entry
	lastSaveErr error
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New loads the cache persisted at path. A missing file starts empty; an
// unreadable or malformed file is logged and replaced by an empty cache on
// the next write. An empty path keeps the cache in memory only.
func New(path string, embedder Embedder, opts Options) (*Cache, error) {
	if embedder == nil {
		return nil, sigilerr.New(sigilerr.CodeCacheInvalidInput, "cache requires an embedder")
	}
	if err := applyDefaults(&opts); err != nil {
		return nil, err
	}

	c := &Cache{
		path:     path,
		embedder: embedder,
		opts:     opts,
		now:      time.Now,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.load()
	c.metrics.SetCacheEntries(len(c.entries))
	c.logger.Info("answer cache loaded", "path", path, "entry_count", len(c.entries))
	return c, nil
}

func applyDefaults(opts *Options) error {
	if opts.HitThreshold == 0 {
		opts.HitThreshold = DefaultHitThreshold
	}
	if opts.MergeThreshold == 0 {
		opts.MergeThreshold = DefaultMergeThreshold
	}
	if opts.InvalidateThreshold == 0 {
		opts.InvalidateThreshold = DefaultInvalidateThreshold
	}
	if opts.InvalidateMaxChars <= 0 {
		opts.InvalidateMaxChars = DefaultInvalidateMaxChars
	}
	for name, v := range map[string]float64{
		"hit_threshold":        opts.HitThreshold,
		"merge_threshold":      opts.MergeThreshold,
		"invalidate_threshold": opts.InvalidateThreshold,
	} {
		if err := checkThreshold(name, v); err != nil {
			return err
		}
	}
	return nil
}

func checkThreshold(name string, v float64) error {
	if v < -1 || v > 1 {
		return sigilerr.Errorf(sigilerr.CodeCacheInvalidInput, "%s must be within [-1, 1], got %v", name, v)
	}
	return nil
}

// SetNowFunc replaces the clock used for timestamps.
func (c *Cache) SetNowFunc(fn func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = fn
}

// HitThreshold is the configured acceptance threshold.
func (c *Cache) HitThreshold() float64 { return c.opts.HitThreshold }

// FindSimilar embeds query and looks it up with the configured threshold.
func (c *Cache) FindSimilar(ctx context.Context, query, category string) (*Hit, error) {
	return c.FindSimilarAt(ctx, query, category, c.opts.HitThreshold)
}

// FindSimilarAt embeds query and looks it up with threshold.
func (c *Cache) FindSimilarAt(ctx context.Context, query, category string, threshold float64) (*Hit, error) {
	if c.Len() == 0 {
		c.metrics.Lookup(metrics.LookupMiss)
		c.logger.Debug("answer cache empty")
		return nil, nil
	}
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.metrics.Lookup(metrics.LookupError)
		return nil, err
	}
	return c.FindSimilarVector(vec, category, threshold)
}

// FindSimilarVector returns the single best-scoring entry when its score is
// at least threshold, or nil. Ties keep the earliest entry. When category is
// set only entries stored under that exact category are eligible.
func (c *Cache) FindSimilarVector(vec []float32, category string, threshold float64) (*Hit, error) {
	if err := c.checkVector(vec); err != nil {
		c.metrics.Lookup(metrics.LookupError)
		return nil, err
	}
	category = record.NormalizeFilter(category)

	c.mu.Lock()
	defer c.mu.Unlock()

	best, bestScore := -1, 0.0
	for i, e := range c.entries {
		if category != "" && e.Category != category {
			continue
		}
		score := vecmath.Cosine(vec, e.Embedding)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore < threshold {
		c.metrics.Lookup(metrics.LookupMiss)
		c.logger.Debug("answer cache miss", "best_similarity", bestScore, "threshold", threshold)
		return nil, nil
	}

	e := c.entries[best]
	c.metrics.Lookup(metrics.LookupHit)
	c.logger.Info("answer cache hit",
		"similarity", bestScore,
		"original_query", truncate(e.Query, 30),
	)
	return &Hit{
		Answer:        e.Answer,
		OriginalQuery: e.Query,
		Similarity:    bestScore,
		CreatedAt:     e.CreatedAt,
	}, nil
}

// Add embeds query and stores answer. An existing entry at or above the
// merge threshold takes the new answer in place; otherwise a new entry is
// appended. It reports whether an entry was merged.
func (c *Cache) Add(ctx context.Context, query, answer, category string) (bool, error) {
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return false, err
	}
	return c.AddVector(vec, query, answer, category)
}

// AddVector is Add with a precomputed query vector.
func (c *Cache) AddVector(vec []float32, query, answer, category string) (bool, error) {
	if err := c.checkVector(vec); err != nil {
		return false, err
	}
	category = record.NormalizeFilter(category)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for i := range c.entries {
		if vecmath.Cosine(vec, c.entries[i].Embedding) >= c.opts.MergeThreshold {
			c.entries[i].Answer = answer
			c.entries[i].UpdatedAt = now
			c.saveLocked()
			c.metrics.CacheWrite(true)
			c.logger.Debug("answer cache entry updated", "query", truncate(query, 30))
			return true, nil
		}
	}

	c.entries = append(c.entries, Entry{
		Query:     query,
		Embedding: slices.Clone(vec),
		Answer:    answer,
		Category:  category,
		CreatedAt: now,
	})
	c.saveLocked()
	c.metrics.CacheWrite(false)
	c.metrics.SetCacheEntries(len(c.entries))
	c.logger.Info("answer cache entry added",
		"query", truncate(query, 30),
		"entry_count", len(c.entries),
	)
	return false, nil
}

// InvalidateRelated removes entries related to text using the configured
// invalidation threshold.
func (c *Cache) InvalidateRelated(ctx context.Context, text, category string) (int, error) {
	return c.InvalidateRelatedAt(ctx, text, category, c.opts.InvalidateThreshold)
}

// InvalidateRelatedAt embeds the leading part of text and removes every
// eligible entry scoring at least threshold against it. An entry is
// protected only when it has a category that differs from category; entries
// without a category are always eligible.
func (c *Cache) InvalidateRelatedAt(ctx context.Context, text, category string, threshold float64) (int, error) {
	if c.Len() == 0 {
		return 0, nil
	}
	vec, err := c.embedder.Embed(ctx, truncateRunes(text, c.opts.InvalidateMaxChars))
	if err != nil {
		return 0, err
	}
	return c.InvalidateVector(vec, category, threshold)
}

// InvalidateVector is InvalidateRelatedAt with a precomputed vector.
func (c *Cache) InvalidateVector(vec []float32, category string, threshold float64) (int, error) {
	if err := c.checkVector(vec); err != nil {
		return 0, err
	}
	category = record.NormalizeFilter(category)

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.entries[:0]
	removed := 0
	for _, e := range c.entries {
		protected := e.Category != "" && category != "" && e.Category != category
		if !protected && vecmath.Cosine(vec, e.Embedding) >= threshold {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(c.entries[len(kept):])
	c.entries = kept

	if removed > 0 {
		c.saveLocked()
		c.metrics.Invalidated(removed)
		c.metrics.SetCacheEntries(len(c.entries))
		c.logger.Info("answer cache entries invalidated",
			"removed", removed,
			"entry_count", len(c.entries),
			"threshold", threshold,
		)
	}
	return removed, nil
}

// Clear drops every entry and persists the empty cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	c.saveLocked()
	c.metrics.SetCacheEntries(0)
	c.logger.Info("answer cache cleared")
}

// Stats reports the entry count and the distinct non-empty categories.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	cats := make([]string, 0)
	seen := make(map[string]bool)
	for _, e := range c.entries {
		if e.Category != "" && !seen[e.Category] {
			seen[e.Category] = true
			cats = append(cats, e.Category)
		}
	}
	slices.Sort(cats)
	return Stats{Count: len(c.entries), Categories: cats, Path: c.path}
}

// Entries returns a copy of the entries in insertion order.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		e.Embedding = slices.Clone(e.Embedding)
		out[i] = e
	}
	return out
}

// Len is the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// LastSaveError is the error of the most recent failed write, cleared by the
// next successful one.
func (c *Cache) LastSaveError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaveErr
}

func (c *Cache) checkVector(vec []float32) error {
	if want := c.embedder.Dimensions(); len(vec) != want {
		return sigilerr.Errorf(sigilerr.CodeCacheInvalidInput, "query vector has dimension %d, want %d", len(vec), want)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
