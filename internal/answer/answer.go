// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package answer runs the full question flow on top of the retrieval
// orchestrator: cache lookup, generation on a miss, and cache commit.
package answer

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigil-dev/recall/internal/index"
	"github.com/sigil-dev/recall/internal/retrieval"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Generator produces an answer for a fully built prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answer is the result of Ask.
type Answer struct {
	Text          string             `json:"answer"`
	Cached        bool               `json:"cached"`
	Similarity    float64            `json:"similarity,omitempty"`
	OriginalQuery string             `json:"original_query,omitempty"`
	CachedAt      time.Time          `json:"cached_at,omitzero"`
	Sources       []retrieval.Source `json:"-"`
	Matches       []index.Match      `json:"sources"`
	Visuals       []index.Match      `json:"visuals,omitempty"`
	Images        []index.Match      `json:"images,omitempty"`
}

// DefaultSourceMinScore is the score a match needs to be used as reference
// material for generation.
const DefaultSourceMinScore = 0.64

// Options configures a Service.
type Options struct {
	// SourceMinScore drops matches scoring below it from the generation
	// prompt. Zero passes every match.
	SourceMinScore float64
	Logger         *slog.Logger
}

// Service answers questions.
type Service struct {
	orch   *retrieval.Orchestrator
	gen    Generator
	opts   Options
	logger *slog.Logger
}

// New creates a Service.
func New(orch *retrieval.Orchestrator, gen Generator, opts Options) (*Service, error) {
	if orch == nil || gen == nil {
		return nil, sigilerr.New(sigilerr.CodeServerInternalFailure, "answer service requires an orchestrator and a generator")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orch: orch, gen: gen, opts: opts, logger: logger}, nil
}

// Ask answers question, reusing a cached answer when one is close enough.
// withVisuals additionally collects related diagrams, previews and images.
func (s *Service) Ask(ctx context.Context, question, category string, withVisuals bool) (*Answer, error) {
	if question == "" {
		return nil, sigilerr.New(sigilerr.CodeCacheInvalidInput, "question must not be empty")
	}

	res, err := s.orch.Lookup(ctx, question, category)
	if err != nil {
		return nil, err
	}

	sources, err := s.orch.Sources(ctx, s.referenceMatches(res.Matches))
	if err != nil {
		return nil, err
	}
	out := &Answer{Sources: sources, Matches: res.Matches}

	if withVisuals {
		out.Visuals, err = s.orch.Visuals(ctx, res)
		if err != nil {
			return nil, err
		}
		out.Images, err = s.orch.Images(ctx, res)
		if err != nil {
			return nil, err
		}
	}

	if res.Cached() {
		out.Text = res.Hit.Answer
		out.Cached = true
		out.Similarity = res.Hit.Similarity
		out.OriginalQuery = res.Hit.OriginalQuery
		out.CachedAt = res.Hit.CreatedAt
		return out, nil
	}

	text, err := s.gen.Generate(ctx, retrieval.BuildPrompt(question, sources))
	if err != nil {
		return nil, err
	}
	out.Text = text

	if _, err := s.orch.Commit(res, text); err != nil {
		s.logger.Warn("caching generated answer failed", "error", err)
	}
	return out, nil
}

// referenceMatches keeps the matches scoring at least SourceMinScore.
func (s *Service) referenceMatches(matches []index.Match) []index.Match {
	if s.opts.SourceMinScore <= 0 {
		return matches
	}
	out := make([]index.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= s.opts.SourceMinScore {
			out = append(out, m)
		}
	}
	if dropped := len(matches) - len(out); dropped > 0 {
		s.logger.Debug("low-scoring matches left out of the prompt",
			"dropped", dropped,
			"min_score", s.opts.SourceMinScore,
		)
	}
	return out
}
