// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package answer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/answer"
	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/index"
	"github.com/sigil-dev/recall/internal/record"
	"github.com/sigil-dev/recall/internal/retrieval"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

var vocabulary = []string{"center", "div", "flexbox", "python", "sort"}

type bagEmbedder struct{}

func (bagEmbedder) Dimensions() int { return len(vocabulary) }

func (bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, len(vocabulary))
	lower := strings.ToLower(text)
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(lower, w))
	}
	return v, nil
}

func (e bagEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type reader struct{ records []*record.Record }

func (r reader) ListAll(context.Context) ([]*record.Record, error) { return r.records, nil }

func (r reader) GetByID(_ context.Context, id string) (*record.Record, error) {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

type fakeGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func newService(t *testing.T, gen *fakeGenerator) (*answer.Service, *cache.Cache) {
	t.Helper()
	return newServiceWith(t, gen, answer.Options{})
}

func newServiceWith(t *testing.T, gen *fakeGenerator, opts answer.Options) (*answer.Service, *cache.Cache) {
	t.Helper()

	flex := &record.Record{
		ID:       "flex",
		Title:    "Center a div with flexbox",
		Category: record.CategoryHTMLCSS,
		Kind:     record.ContentKindCode,
		Code:     &record.CodeContent{CSS: ".parent { display: flex; }"},
	}
	flex.Artifacts.SVG = "<svg/>"
	sorting := &record.Record{
		ID:       "sort",
		Title:    "Sort a list in python",
		Category: record.CategoryPython,
		Kind:     record.ContentKindManual,
		Manual:   &record.ManualContent{Body: "sorted(items)"},
	}
	sorting.Artifacts.ImagePath = "images/sort.png"
	r := reader{records: []*record.Record{flex, sorting}}

	idx, err := index.New(index.NewMemoryBackend(), bagEmbedder{}, r, index.Options{})
	require.NoError(t, err)
	_, err = idx.RebuildFromStore(context.Background())
	require.NoError(t, err)

	c, err := cache.New("", bagEmbedder{}, cache.Options{})
	require.NoError(t, err)

	orch, err := retrieval.New(bagEmbedder{}, idx, c, r, retrieval.Options{})
	require.NoError(t, err)

	svc, err := answer.New(orch, gen, opts)
	require.NoError(t, err)
	return svc, c
}

func TestAskGeneratesThenReusesCachedAnswer(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{reply: "Use display: flex on the parent."}
	svc, c := newService(t, gen)

	first, err := svc.Ask(ctx, "How do I center a div?", "", false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, gen.reply, first.Text)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "[Reference 1] Center a div with flexbox")
	assert.Equal(t, 1, c.Len())

	second, err := svc.Ask(ctx, "How can I center a div?", "", false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, gen.reply, second.Text)
	assert.Equal(t, "How do I center a div?", second.OriginalQuery)
	assert.GreaterOrEqual(t, second.Similarity, cache.DefaultHitThreshold)
	assert.False(t, second.CachedAt.IsZero())
	assert.Len(t, gen.prompts, 1, "cached answer skips generation")
}

func TestAskWithVisuals(t *testing.T) {
	svc, _ := newService(t, &fakeGenerator{reply: "ok"})

	got, err := svc.Ask(context.Background(), "center a div with flexbox", "", true)
	require.NoError(t, err)
	require.Len(t, got.Visuals, 1)
	assert.Equal(t, "flex", got.Visuals[0].ID)
	assert.Empty(t, got.Images, "no image record is close to the question")

	got, err = svc.Ask(context.Background(), "python sort", "", true)
	require.NoError(t, err)
	require.Len(t, got.Images, 1)
	assert.Equal(t, "sort", got.Images[0].ID)
	assert.True(t, got.Images[0].Metadata.HasImage)
}

func TestAskWithoutVisualsSkipsArtifacts(t *testing.T) {
	svc, _ := newService(t, &fakeGenerator{reply: "ok"})

	got, err := svc.Ask(context.Background(), "python sort", "", false)
	require.NoError(t, err)
	assert.Empty(t, got.Visuals)
	assert.Empty(t, got.Images)
}

func TestAskLeavesLowScoringMatchesOutOfPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	svc, _ := newServiceWith(t, gen, answer.Options{SourceMinScore: answer.DefaultSourceMinScore})

	got, err := svc.Ask(context.Background(), "center a div with flexbox", "", false)
	require.NoError(t, err)

	require.Len(t, got.Matches, 2, "every match is still reported")
	assert.Equal(t, "flex", got.Matches[0].ID)
	assert.Less(t, got.Matches[1].Score, answer.DefaultSourceMinScore)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Center a div with flexbox")
	assert.NotContains(t, gen.prompts[0], "Sort a list in python")
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "flex", got.Sources[0].Match.ID)
}

func TestAskWithoutSourceThresholdUsesEveryMatch(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	svc, _ := newService(t, gen)

	_, err := svc.Ask(context.Background(), "center a div with flexbox", "", false)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Sort a list in python")
}

func TestAskGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: sigilerr.New(sigilerr.CodeProviderUpstreamFailure, "model down")}
	svc, c := newService(t, gen)

	_, err := svc.Ask(context.Background(), "center a div", "", false)
	require.Error(t, err)
	assert.True(t, sigilerr.IsProviderFailure(err))
	assert.Equal(t, 0, c.Len(), "failed generation is not cached")
}

func TestAskEmptyQuestion(t *testing.T) {
	svc, _ := newService(t, &fakeGenerator{})

	_, err := svc.Ask(context.Background(), "", "", false)
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := answer.New(nil, &fakeGenerator{}, answer.Options{})
	require.Error(t, err)
}
