// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package index maintains the searchable vector projection of the knowledge
// record store: one vector plus compact metadata per live record id.
package index

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sigil-dev/recall/internal/metrics"
	"github.com/sigil-dev/recall/internal/record"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Embedder converts record text to vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Options configures an Index.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Index is the VectorIndex. Mutations are serialized; queries go straight
// to the backend.
type Index struct {
	mu       sync.Mutex
	backend  Backend
	embedder Embedder
	records  record.Reader
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates an Index over backend. The Index owns backend and closes it.
func New(backend Backend, embedder Embedder, records record.Reader, opts Options) (*Index, error) {
	if backend == nil || embedder == nil || records == nil {
		return nil, sigilerr.New(sigilerr.CodeIndexInvalidInput, "index requires a backend, an embedder and a record reader")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		backend:  backend,
		embedder: embedder,
		records:  records,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// RebuildFromStore replaces the indexed set with one entry per live record,
// embedded in a single batch. The swap is atomic: on error the previous set
// stays queryable. Records whose vector could not be computed are skipped.
func (x *Index) RebuildFromStore(ctx context.Context) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	start := time.Now()
	recs, err := x.records.ListAll(ctx)
	if err != nil {
		return 0, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "listing records for rebuild")
	}

	texts := make([]string, len(recs))
	for i, r := range recs {
		texts[i] = r.SearchableText()
	}

	var vecs [][]float32
	if len(recs) > 0 {
		vecs, err = x.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, err
		}
	}

	entries := make([]Entry, 0, len(recs))
	for i, r := range recs {
		if vecs[i] == nil {
			x.logger.Warn("skipping record without vector", "record_id", r.ID)
			continue
		}
		entries = append(entries, entryFor(r, vecs[i]))
	}

	if err := x.backend.ReplaceAll(ctx, entries); err != nil {
		return 0, err
	}
	x.metrics.SetIndexRecords(len(entries))
	x.logger.Info("index rebuilt",
		"records", len(recs),
		"indexed", len(entries),
		"elapsed", time.Since(start),
	)
	return len(entries), nil
}

// EnsureBuilt rebuilds when the index is empty but the record store is not.
// It reports whether a rebuild ran.
func (x *Index) EnsureBuilt(ctx context.Context) (bool, error) {
	n, err := x.backend.Count(ctx)
	if err != nil {
		return false, err
	}
	x.metrics.SetIndexRecords(n)
	if n > 0 {
		return false, nil
	}
	recs, err := x.records.ListAll(ctx)
	if err != nil {
		return false, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "listing records")
	}
	if len(recs) == 0 {
		return false, nil
	}
	if _, err := x.RebuildFromStore(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Upsert embeds rec's searchable text and replaces any vector stored for
// its id.
func (x *Index) Upsert(ctx context.Context, rec *record.Record) error {
	if rec == nil || rec.ID == "" {
		return sigilerr.New(sigilerr.CodeIndexInvalidInput, "record id is required")
	}
	vec, err := x.embedder.Embed(ctx, rec.SearchableText())
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.backend.Upsert(ctx, entryFor(rec, vec)); err != nil {
		return err
	}
	x.refreshCount(ctx)
	x.logger.Debug("index entry upserted", "record_id", rec.ID)
	return nil
}

// Delete removes id's vector. A missing id is not an error.
func (x *Index) Delete(ctx context.Context, id string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	ok, err := x.backend.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		x.refreshCount(ctx)
	}
	return ok, nil
}

// Query returns up to topK entries by descending score. category "" or
// "all" means no filter; the filter applies before ranking.
func (x *Index) Query(ctx context.Context, vec []float32, category string, topK int) ([]Match, error) {
	if err := x.checkQuery(vec, topK); err != nil {
		return nil, err
	}
	x.metrics.IndexQuery("plain")
	return x.backend.Search(ctx, vec, Filter{Category: record.NormalizeFilter(category)}, topK)
}

// QueryText embeds text and runs Query.
func (x *Index) QueryText(ctx context.Context, text, category string, topK int) ([]Match, error) {
	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return x.Query(ctx, vec, category, topK)
}

// QueryFiltered ranks like Query among entries matching pred and drops
// results scoring below minScore.
func (x *Index) QueryFiltered(ctx context.Context, vec []float32, pred Predicate, minScore float64, topK int) ([]Match, error) {
	if err := x.checkQuery(vec, topK); err != nil {
		return nil, err
	}
	if err := pred.Validate(); err != nil {
		return nil, err
	}
	x.metrics.IndexQuery("filtered")
	return x.backend.Search(ctx, vec, Filter{Predicate: pred, MinScore: &minScore}, topK)
}

// QueryTextFiltered embeds text and runs QueryFiltered.
func (x *Index) QueryTextFiltered(ctx context.Context, text string, pred Predicate, minScore float64, topK int) ([]Match, error) {
	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return x.QueryFiltered(ctx, vec, pred, minScore, topK)
}

// Resolve maps matches back to records, skipping ids the store no longer has.
func (x *Index) Resolve(ctx context.Context, matches []Match) ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(matches))
	for _, m := range matches {
		r, err := x.records.GetByID(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if r == nil {
			x.logger.Debug("indexed record missing from store", "record_id", m.ID)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Count is the number of indexed vectors.
func (x *Index) Count(ctx context.Context) (int, error) {
	return x.backend.Count(ctx)
}

// Close releases the backend.
func (x *Index) Close() error {
	return x.backend.Close()
}

func (x *Index) checkQuery(vec []float32, topK int) error {
	if topK < 0 {
		return sigilerr.Errorf(sigilerr.CodeIndexInvalidInput, "top_k must not be negative, got %d", topK)
	}
	if want := x.embedder.Dimensions(); len(vec) != want {
		return sigilerr.Errorf(sigilerr.CodeIndexInvalidInput, "query vector has dimension %d, want %d", len(vec), want)
	}
	return nil
}

func (x *Index) refreshCount(ctx context.Context) {
	if n, err := x.backend.Count(ctx); err == nil {
		x.metrics.SetIndexRecords(n)
	}
}

func entryFor(r *record.Record, vec []float32) Entry {
	flags := r.Flags()
	return Entry{
		ID:     r.ID,
		Vector: vec,
		Metadata: Metadata{
			Title:              r.Title,
			Category:           r.IndexCategory(),
			ContentKind:        r.Kind,
			Tags:               slices.Clone(r.Tags),
			CreatedAt:          r.CreatedAt,
			UpdatedAt:          r.UpdatedAt,
			HasVisualDiagram:   flags.HasVisualDiagram,
			HasRenderedPreview: flags.HasRenderedPreview,
			HasImage:           flags.HasImage,
		},
		Document: r.SearchableText(),
	}
}
