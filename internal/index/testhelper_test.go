// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/index"
	"github.com/sigil-dev/recall/internal/record"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

const testDims = 3

// mapEmbedder returns the vector registered for a text, or a fixed fallback.
type mapEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]bool
	calls   int
}

func newMapEmbedder() *mapEmbedder {
	return &mapEmbedder{vectors: map[string][]float32{}, fail: map[string]bool{}}
}

func (m *mapEmbedder) set(text string, v ...float32) { m.vectors[text] = v }

func (m *mapEmbedder) Dimensions() int { return testDims }

func (m *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail[text] {
		return nil, sigilerr.New(sigilerr.CodeProviderUpstreamFailure, "embedding unavailable")
	}
	if v, ok := m.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return []float32{0, 0, 1}, nil
}

func (m *mapEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	failed := 0
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			failed++
			continue
		}
		out[i] = v
	}
	if failed > 0 && failed == len(texts) {
		return nil, sigilerr.New(sigilerr.CodeProviderUpstreamFailure, "all items failed")
	}
	return out, nil
}

// memReader is a record.Reader over a fixed slice.
type memReader struct {
	records []*record.Record
}

func (r *memReader) ListAll(context.Context) ([]*record.Record, error) {
	return r.records, nil
}

func (r *memReader) GetByID(_ context.Context, id string) (*record.Record, error) {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

type backendCase struct {
	name string
	open func(t *testing.T) index.Backend
}

func backends() []backendCase {
	return []backendCase{
		{name: "memory", open: func(*testing.T) index.Backend { return index.NewMemoryBackend() }},
		{name: "sqlite", open: func(t *testing.T) index.Backend {
			t.Helper()
			b, err := index.NewSQLiteBackend(testDBPath(t, "vectors"), testDims, nil)
			require.NoError(t, err)
			return b
		}},
	}
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

func newIndex(t *testing.T, b index.Backend, emb *mapEmbedder, reader *memReader) *index.Index {
	t.Helper()
	x, err := index.New(b, emb, reader, index.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func rec(id, title string, category record.Category) *record.Record {
	return &record.Record{
		ID:       id,
		Title:    title,
		Category: category,
		Kind:     record.ContentKindManual,
		Manual:   &record.ManualContent{Body: title},
	}
}

func ids(matches []index.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}
