// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sigil-dev/recall/internal/record"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Metadata is the compact projection of a record stored next to its vector.
type Metadata struct {
	Title              string             `json:"title"`
	Category           record.Category    `json:"category"`
	ContentKind        record.ContentKind `json:"content_type"`
	Tags               []string           `json:"tags,omitempty"`
	CreatedAt          time.Time          `json:"created_at,omitzero"`
	UpdatedAt          time.Time          `json:"updated_at,omitzero"`
	HasVisualDiagram   bool               `json:"has_visual_diagram"`
	HasRenderedPreview bool               `json:"has_rendered_preview"`
	HasImage           bool               `json:"has_image"`
}

// Flags returns the artifact flags carried by m.
func (m Metadata) Flags() record.Flags {
	return record.Flags{
		HasVisualDiagram:   m.HasVisualDiagram,
		HasRenderedPreview: m.HasRenderedPreview,
		HasImage:           m.HasImage,
	}
}

// Entry is one indexed vector.
type Entry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
	Document string
}

// Match is one query result. Score is 1 - cosine distance.
type Match struct {
	ID       string   `json:"id"`
	Metadata Metadata `json:"metadata"`
	Document string   `json:"document"`
	Score    float64  `json:"score"`
}

// Flag names one artifact flag usable in a Predicate.
type Flag string

const (
	FlagVisualDiagram   Flag = "has_visual_diagram"
	FlagRenderedPreview Flag = "has_rendered_preview"
	FlagImage           Flag = "has_image"
)

// Predicate is a structural filter over artifact flags: an entry matches
// when any listed flag is set. The zero Predicate matches everything.
type Predicate struct {
	AnyOf []Flag
}

var (
	// Visual matches records with a generated diagram or rendered preview.
	Visual = Predicate{AnyOf: []Flag{FlagVisualDiagram, FlagRenderedPreview}}
	// WithImage matches records with an attached image.
	WithImage = Predicate{AnyOf: []Flag{FlagImage}}
)

// Match reports whether flags satisfy p.
func (p Predicate) Match(flags record.Flags) bool {
	if len(p.AnyOf) == 0 {
		return true
	}
	for _, f := range p.AnyOf {
		switch f {
		case FlagVisualDiagram:
			if flags.HasVisualDiagram {
				return true
			}
		case FlagRenderedPreview:
			if flags.HasRenderedPreview {
				return true
			}
		case FlagImage:
			if flags.HasImage {
				return true
			}
		}
	}
	return false
}

// Validate rejects unknown flag names.
func (p Predicate) Validate() error {
	for _, f := range p.AnyOf {
		switch f {
		case FlagVisualDiagram, FlagRenderedPreview, FlagImage:
		default:
			return sigilerr.Errorf(sigilerr.CodeIndexInvalidInput, "unknown predicate flag %q", f)
		}
	}
	return nil
}

// Filter narrows the eligible entries before ranking.
type Filter struct {
	Category  string // "" means any
	Predicate Predicate
	MinScore  *float64
}

// Backend stores entries and ranks them. Ranking is by descending score
// with ties in insertion order; an upsert of an existing id keeps its
// position. Filters apply before the top-k cut.
type Backend interface {
	Upsert(ctx context.Context, e Entry) error
	Delete(ctx context.Context, id string) (bool, error)
	// ReplaceAll swaps the whole set atomically.
	ReplaceAll(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query []float32, f Filter, k int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Backend names accepted by OpenBackend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// OpenBackend creates the named backend. path is ignored by the memory backend.
func OpenBackend(name, path string, dimensions int, logger *slog.Logger) (Backend, error) {
	switch name {
	case "", BackendMemory:
		return NewMemoryBackend(), nil
	case BackendSQLite:
		if path == "" {
			return nil, sigilerr.New(sigilerr.CodeIndexInvalidInput, "sqlite index requires a path")
		}
		return NewSQLiteBackend(filepath.Clean(path), dimensions, logger)
	default:
		return nil, sigilerr.Errorf(sigilerr.CodeIndexBackendUnknown, "unsupported index backend: %q", name)
	}
}
