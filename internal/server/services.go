// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/recall/internal/answer"
	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/index"
	"github.com/sigil-dev/recall/internal/provider"
	"github.com/sigil-dev/recall/internal/usage"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// CacheService is the semantic answer cache. *cache.Cache satisfies it.
type CacheService interface {
	FindSimilar(ctx context.Context, query, category string) (*cache.Hit, error)
	FindSimilarAt(ctx context.Context, query, category string, threshold float64) (*cache.Hit, error)
	Add(ctx context.Context, query, answer, category string) (bool, error)
	InvalidateRelated(ctx context.Context, text, category string) (int, error)
	InvalidateRelatedAt(ctx context.Context, text, category string, threshold float64) (int, error)
	Stats() cache.Stats
	Clear()
}

// IndexService is the vector index. *index.Index satisfies it.
type IndexService interface {
	QueryText(ctx context.Context, text, category string, topK int) ([]index.Match, error)
	QueryTextFiltered(ctx context.Context, text string, pred index.Predicate, minScore float64, topK int) ([]index.Match, error)
	Count(ctx context.Context) (int, error)
}

// AnswerService runs the full question flow. *answer.Service satisfies it.
type AnswerService interface {
	Ask(ctx context.Context, question, category string, withVisuals bool) (*answer.Answer, error)
}

// ProviderService reports backend health. *provider.Registry satisfies it.
type ProviderService interface {
	Statuses(ctx context.Context) map[string]provider.ProviderStatus
}

// UsageService reports provider token accounting. *usage.Tracker satisfies it.
type UsageService interface {
	CurrentMonth() usage.Month
	Total() usage.Totals
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
// Use NewServices constructor to ensure all required services are provided.
type Services struct {
	cache     CacheService
	index     IndexService
	answers   AnswerService   // optional; nil = ask endpoint returns 503
	providers ProviderService // optional; nil = health omits providers
	usage     UsageService    // optional; nil = usage endpoint returns 503
}

// NewServices creates a Services instance with validation.
// Returns an error if a required service is nil.
func NewServices(c CacheService, idx IndexService, answers AnswerService, providers ProviderService) (*Services, error) {
	if c == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "cache service is required")
	}
	if idx == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "index service is required")
	}
	return &Services{
		cache:     c,
		index:     idx,
		answers:   answers,
		providers: providers,
	}, nil
}

// WithUsage attaches the usage tracker served at /api/v1/usage.
func (s *Services) WithUsage(u UsageService) *Services {
	s.usage = u
	return s
}
