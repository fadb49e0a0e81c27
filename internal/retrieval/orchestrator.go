// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package retrieval composes the embedding adapter, the vector index and the
// semantic cache. It never calls the generation service: callers decide
// whether to generate and then commit the answer back.
package retrieval

import (
	"context"
	"log/slog"

	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/index"
	"github.com/sigil-dev/recall/internal/record"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Default retrieval sizes.
const (
	DefaultTopK           = 5
	DefaultVisualMinScore = 0.4
	DefaultVisualTopK     = 3
)

// Embedder converts the query to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the subset of *index.Index the orchestrator uses.
type Searcher interface {
	Query(ctx context.Context, vec []float32, category string, topK int) ([]index.Match, error)
	QueryFiltered(ctx context.Context, vec []float32, pred index.Predicate, minScore float64, topK int) ([]index.Match, error)
	Upsert(ctx context.Context, rec *record.Record) error
	Delete(ctx context.Context, id string) (bool, error)
}

// AnswerCache is the subset of *cache.Cache the orchestrator uses.
type AnswerCache interface {
	FindSimilarVector(vec []float32, category string, threshold float64) (*cache.Hit, error)
	AddVector(vec []float32, query, answer, category string) (bool, error)
	InvalidateRelated(ctx context.Context, text, category string) (int, error)
	HitThreshold() float64
}

// Options configures an Orchestrator. Zero values select the defaults.
type Options struct {
	TopK           int
	HitThreshold   float64 // 0 uses the cache's own threshold
	VisualMinScore float64
	VisualTopK     int
	Logger         *slog.Logger
}

// Orchestrator is the RetrievalOrchestrator. It holds no state of its own.
type Orchestrator struct {
	embedder Embedder
	index    Searcher
	cache    AnswerCache
	records  record.Reader
	opts     Options
	logger   *slog.Logger
}

// Result is the outcome of one lookup. Hit is nil on a cache miss.
type Result struct {
	Query    string
	Category string
	Vector   []float32
	Matches  []index.Match
	Hit      *cache.Hit
}

// Cached reports whether the lookup produced a reusable answer.
func (r *Result) Cached() bool { return r != nil && r.Hit != nil }

// New creates an Orchestrator. records resolves matches back to records and
// may be nil when Sources is not needed.
func New(embedder Embedder, idx Searcher, c AnswerCache, records record.Reader, opts Options) (*Orchestrator, error) {
	if embedder == nil || idx == nil || c == nil {
		return nil, sigilerr.New(sigilerr.CodeIndexInvalidInput, "orchestrator requires an embedder, an index and a cache")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.VisualMinScore == 0 {
		opts.VisualMinScore = DefaultVisualMinScore
	}
	if opts.VisualTopK <= 0 {
		opts.VisualTopK = DefaultVisualTopK
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		embedder: embedder,
		index:    idx,
		cache:    c,
		records:  records,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Lookup embeds query once and runs both the index query and the cache
// lookup with that vector. Embedding and index failures are returned; a
// cache failure is logged and reported as a miss.
func (o *Orchestrator) Lookup(ctx context.Context, query, category string) (*Result, error) {
	category = record.NormalizeFilter(category)

	vec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	res := &Result{Query: query, Category: category, Vector: vec}

	threshold := o.opts.HitThreshold
	if threshold == 0 {
		threshold = o.cache.HitThreshold()
	}
	hit, err := o.cache.FindSimilarVector(vec, category, threshold)
	if err != nil {
		o.logger.Warn("answer cache lookup failed, treating as miss", "error", err)
	} else {
		res.Hit = hit
	}

	res.Matches, err = o.index.Query(ctx, vec, category, o.opts.TopK)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("lookup complete",
		"category", category,
		"cached", res.Cached(),
		"matches", len(res.Matches),
	)
	return res, nil
}

// Visuals returns records with a diagram or rendered preview related to the
// lookup's query vector.
func (o *Orchestrator) Visuals(ctx context.Context, res *Result) ([]index.Match, error) {
	return o.index.QueryFiltered(ctx, res.Vector, index.Visual, o.opts.VisualMinScore, o.opts.VisualTopK)
}

// Images returns records with an attached image related to the lookup's
// query vector.
func (o *Orchestrator) Images(ctx context.Context, res *Result) ([]index.Match, error) {
	return o.index.QueryFiltered(ctx, res.Vector, index.WithImage, o.opts.VisualMinScore, o.opts.VisualTopK)
}

// Commit stores a freshly generated answer for the lookup, reusing its
// query vector. It reports whether an existing entry was merged.
func (o *Orchestrator) Commit(res *Result, answer string) (bool, error) {
	if res == nil {
		return false, sigilerr.New(sigilerr.CodeCacheInvalidInput, "commit requires a lookup result")
	}
	return o.cache.AddVector(res.Vector, res.Query, answer, res.Category)
}

// RecordWritten upserts rec's vector and drops cached answers related to its
// content. It returns the number of invalidated cache entries.
func (o *Orchestrator) RecordWritten(ctx context.Context, rec *record.Record) (int, error) {
	if err := o.index.Upsert(ctx, rec); err != nil {
		return 0, err
	}
	n, err := o.cache.InvalidateRelated(ctx, rec.SearchableText(), string(rec.Category))
	if err != nil {
		return 0, sigilerr.With(err, sigilerr.FieldRecordID(rec.ID))
	}
	if n > 0 {
		o.logger.Info("invalidated cached answers for written record", "record_id", rec.ID, "removed", n)
	}
	return n, nil
}

// RecordDeleted removes id's vector. A missing id is not an error.
func (o *Orchestrator) RecordDeleted(ctx context.Context, id string) (bool, error) {
	return o.index.Delete(ctx, id)
}

// Source pairs a match with its backing record, when the store still has it.
type Source struct {
	Match  index.Match
	Record *record.Record
}

// Sources resolves matches against the record store. Matches whose record
// is gone keep a nil Record.
func (o *Orchestrator) Sources(ctx context.Context, matches []index.Match) ([]Source, error) {
	out := make([]Source, len(matches))
	for i, m := range matches {
		out[i].Match = m
		if o.records == nil {
			continue
		}
		r, err := o.records.GetByID(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out[i].Record = r
	}
	return out, nil
}
