// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import (
	"context"
	"slices"
	"sync"

	"github.com/sigil-dev/recall/pkg/vecmath"
)

// Compile-time interface check.
var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps entries in insertion order and ranks by linear scan.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries []Entry
	pos     map[string]int
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{pos: make(map[string]int)}
}

func (m *MemoryBackend) Upsert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e = cloneEntry(e)
	if i, ok := m.pos[e.ID]; ok {
		m.entries[i] = e
		return nil
	}
	m.pos[e.ID] = len(m.entries)
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.pos[id]
	if !ok {
		return false, nil
	}
	m.entries = slices.Delete(m.entries, i, i+1)
	m.reindex()
	return true, nil
}

func (m *MemoryBackend) ReplaceAll(_ context.Context, entries []Entry) error {
	next := make([]Entry, 0, len(entries))
	pos := make(map[string]int, len(entries))
	for _, e := range entries {
		if i, ok := pos[e.ID]; ok {
			next[i] = cloneEntry(e)
			continue
		}
		pos[e.ID] = len(next)
		next = append(next, cloneEntry(e))
	}

	m.mu.Lock()
	m.entries, m.pos = next, pos
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Search(_ context.Context, query []float32, f Filter, k int) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		if f.Category != "" && string(e.Metadata.Category) != f.Category {
			continue
		}
		if !f.Predicate.Match(e.Metadata.Flags()) {
			continue
		}
		score := vecmath.ScoreFromDistance(vecmath.Distance(query, e.Vector))
		if f.MinScore != nil && score < *f.MinScore {
			continue
		}
		matches = append(matches, Match{
			ID:       e.ID,
			Metadata: cloneMetadata(e.Metadata),
			Document: e.Document,
			Score:    score,
		})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MemoryBackend) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) reindex() {
	clear(m.pos)
	for i, e := range m.entries {
		m.pos[e.ID] = i
	}
}

func cloneEntry(e Entry) Entry {
	e.Vector = slices.Clone(e.Vector)
	e.Metadata = cloneMetadata(e.Metadata)
	return e
}

func cloneMetadata(md Metadata) Metadata {
	md.Tags = slices.Clone(md.Tags)
	return md
}
