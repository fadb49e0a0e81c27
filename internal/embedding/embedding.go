// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding turns text into fixed-dimension vectors on top of a raw
// provider.Embedder, adding retry, batch fallback, a dimension check, usage
// accounting and a short-lived memo of recent vectors.
package embedding

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sigil-dev/recall/internal/metrics"
	"github.com/sigil-dev/recall/internal/provider"
	"github.com/sigil-dev/recall/internal/usage"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// DefaultBatchSize is the largest number of texts sent in one request.
const DefaultBatchSize = 100

// UsageRecorder receives one event per successful remote call.
type UsageRecorder interface {
	Record(ev usage.Event)
}

// Options configures an Adapter.
type Options struct {
	Model      string
	Dimensions int
	Retry      provider.RetryPolicy
	BatchSize  int
	MemoTTL    time.Duration // 0 disables the memo
	Usage      UsageRecorder
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Adapter is the embedding collaborator consumed by the index and the cache.
type Adapter struct {
	backend   provider.Embedder
	model     string
	dims      int
	retry     provider.RetryPolicy
	batchSize int
	memo      *gocache.Cache
	usage     UsageRecorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an Adapter over backend.
func New(backend provider.Embedder, opts Options) (*Adapter, error) {
	if backend == nil {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "embedding backend must not be nil")
	}
	if opts.Model == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "embedding model must not be empty", sigilerr.FieldProvider(backend.Name()))
	}
	if opts.Dimensions <= 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeProviderRequestInvalid, "embedding dimensions must be positive, got %d", opts.Dimensions)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = provider.DefaultRetryPolicy()
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	a := &Adapter{
		backend:   backend,
		model:     opts.Model,
		dims:      opts.Dimensions,
		retry:     opts.Retry,
		batchSize: opts.BatchSize,
		usage:     opts.Usage,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if opts.MemoTTL > 0 {
		a.memo = gocache.New(opts.MemoTTL, 2*opts.MemoTTL)
	}
	return a, nil
}

// Dimensions is the configured vector length.
func (a *Adapter) Dimensions() int { return a.dims }

// Model is the configured embedding model.
func (a *Adapter) Model() string { return a.model }

// Embed converts one text. Failure after the retry policy is exhausted is a
// provider.* coded error.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := a.memoGet(text); ok {
		return v, nil
	}

	vecs, err := a.call(ctx, "embed", []string{text})
	a.metrics.Embed("single", err)
	if err != nil {
		return nil, err
	}

	a.memoSet(text, vecs[0])
	return vecs[0], nil
}

// EmbedBatch converts texts, returning exactly one entry per input in order.
// When a batch request fails the texts of that batch are embedded one by
// one; items that still fail are nil. An error is returned only when every
// item failed.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	failed := 0
	var lastErr error
	for start := 0; start < len(texts); start += a.batchSize {
		end := min(start+a.batchSize, len(texts))
		chunk := texts[start:end]

		vecs, err := a.call(ctx, "embed_batch", chunk)
		a.metrics.Embed("batch", err)
		if err == nil {
			copy(out[start:end], vecs)
			continue
		}

		a.metrics.EmbedFallback()
		a.logger.Warn("batch embedding failed, falling back to single requests",
			"batch_start", start,
			"batch_size", len(chunk),
			"error", err,
		)

		for i, text := range chunk {
			v, err := a.Embed(ctx, text)
			if err != nil {
				failed++
				lastErr = err
				a.logger.Error("embedding item failed", "item", start+i, "error", err)
				continue
			}
			out[start+i] = v
		}
	}

	if failed == len(texts) {
		return nil, sigilerr.Wrapf(lastErr, sigilerr.CodeProviderUpstreamFailure, "embedding: all %d items failed", len(texts))
	}
	if failed > 0 {
		a.logger.Warn("batch embedding finished with failures", "failed", failed, "total", len(texts))
	}
	return out, nil
}

// call makes one retried provider request and validates the response.
func (a *Adapter) call(ctx context.Context, op string, texts []string) ([][]float32, error) {
	start := time.Now()
	defer a.metrics.ObserveProvider(op, start)

	var resp provider.EmbedResponse
	err := a.retry.Do(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = a.backend.Embed(ctx, provider.EmbedRequest{
			Model:      a.model,
			Texts:      texts,
			Dimensions: a.dims,
		})
		return err
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure,
			"embedding %d texts with %s/%s", len(texts), a.backend.Name(), a.model)
	}

	if len(resp.Vectors) != len(texts) {
		return nil, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid,
			"embedding: got %d vectors for %d texts", len(resp.Vectors), len(texts))
	}
	for i, v := range resp.Vectors {
		if len(v) != a.dims {
			return nil, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid,
				"embedding: vector %d has dimension %d, want %d", i, len(v), a.dims)
		}
	}

	a.recordUsage(texts, resp.Usage.InputTokens)
	return resp.Vectors, nil
}

func (a *Adapter) recordUsage(texts []string, reported int) {
	if a.usage == nil {
		return
	}
	tokens := reported
	if tokens <= 0 {
		for _, t := range texts {
			tokens += EstimateTokens(t)
		}
	}
	a.usage.Record(usage.Event{Kind: usage.KindEmbedding, Model: a.model, InputTokens: tokens})
}

func (a *Adapter) memoGet(text string) ([]float32, bool) {
	if a.memo == nil {
		return nil, false
	}
	v, ok := a.memo.Get(text)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v.([]float32)...), true
}

func (a *Adapter) memoSet(text string, v []float32) {
	if a.memo == nil {
		return
	}
	a.memo.SetDefault(text, append([]float32(nil), v...))
}

// EstimateTokens approximates the token count of text: every non-ASCII rune
// counts as one token, every four ASCII runes as one.
func EstimateTokens(text string) int {
	var wide, narrow int
	for _, r := range text {
		if r > 127 {
			wide++
		} else {
			narrow++
		}
	}
	return wide + narrow/4
}
