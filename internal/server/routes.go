// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/index"
	"github.com/sigil-dev/recall/internal/usage"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Cache endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "cache-find",
		Method:      http.MethodPost,
		Path:        "/api/v1/cache/find",
		Summary:     "Find a cached answer for a similar question",
		Tags:        []string{"cache"},
	}, s.handleCacheFind)

	huma.Register(s.api, huma.Operation{
		OperationID:   "cache-add",
		Method:        http.MethodPost,
		Path:          "/api/v1/cache",
		Summary:       "Store an answer",
		Tags:          []string{"cache"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCacheAdd)

	huma.Register(s.api, huma.Operation{
		OperationID: "cache-invalidate",
		Method:      http.MethodPost,
		Path:        "/api/v1/cache/invalidate",
		Summary:     "Drop cached answers related to changed knowledge",
		Tags:        []string{"cache"},
	}, s.handleCacheInvalidate)

	huma.Register(s.api, huma.Operation{
		OperationID: "cache-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/cache/stats",
		Summary:     "Cache statistics",
		Tags:        []string{"cache"},
	}, s.handleCacheStats)

	huma.Register(s.api, huma.Operation{
		OperationID:   "cache-clear",
		Method:        http.MethodDelete,
		Path:          "/api/v1/cache",
		Summary:       "Drop every cached answer",
		Tags:          []string{"cache"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleCacheClear)

	// Index endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "index-query",
		Method:      http.MethodPost,
		Path:        "/api/v1/index/query",
		Summary:     "Nearest knowledge records for a query",
		Tags:        []string{"index"},
	}, s.handleIndexQuery)

	huma.Register(s.api, huma.Operation{
		OperationID: "index-query-filtered",
		Method:      http.MethodPost,
		Path:        "/api/v1/index/query-filtered",
		Summary:     "Nearest records carrying any of the given artifact flags",
		Tags:        []string{"index"},
	}, s.handleIndexQueryFiltered)

	huma.Register(s.api, huma.Operation{
		OperationID: "index-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/index/stats",
		Summary:     "Index statistics",
		Tags:        []string{"index"},
	}, s.handleIndexStats)

	// Ask endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "ask",
		Method:      http.MethodPost,
		Path:        "/api/v1/ask",
		Summary:     "Answer a question, reusing a cached answer when possible",
		Tags:        []string{"ask"},
	}, s.handleAsk)

	// Usage endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "usage",
		Method:      http.MethodGet,
		Path:        "/api/v1/usage",
		Summary:     "Provider token usage and approximate cost",
		Tags:        []string{"usage"},
	}, s.handleUsage)
}

// --- Request/Response types for huma ---

type cacheFindInput struct {
	Body struct {
		Query     string   `json:"query" minLength:"1" doc:"Question text"`
		Category  string   `json:"category,omitempty" doc:"Category filter; empty or all means none"`
		Threshold *float64 `json:"threshold,omitempty" minimum:"-1" maximum:"1" doc:"Similarity threshold override"`
	}
}

// CacheFindBody is the cache lookup response.
type CacheFindBody struct {
	Found         bool      `json:"found"`
	Answer        string    `json:"answer,omitempty"`
	OriginalQuery string    `json:"original_query,omitempty"`
	Similarity    float64   `json:"similarity,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
}

type cacheFindOutput struct {
	Body CacheFindBody
}

type cacheAddInput struct {
	Body struct {
		Query    string `json:"query" minLength:"1"`
		Answer   string `json:"answer" minLength:"1"`
		Category string `json:"category,omitempty"`
	}
}

type cacheAddOutput struct {
	Body struct {
		Merged bool `json:"merged" doc:"True when an existing near-duplicate entry was overwritten"`
	}
}

type cacheInvalidateInput struct {
	Body struct {
		Text      string   `json:"text" minLength:"1" doc:"Changed knowledge content"`
		Category  string   `json:"category,omitempty"`
		Threshold *float64 `json:"threshold,omitempty" minimum:"-1" maximum:"1"`
	}
}

type cacheInvalidateOutput struct {
	Body struct {
		Removed int `json:"removed"`
	}
}

type cacheStatsOutput struct {
	Body struct {
		Count      int      `json:"count"`
		Categories []string `json:"categories"`
		Path       string   `json:"path,omitempty"`
	}
}

type indexQueryInput struct {
	Body struct {
		Query    string `json:"query" minLength:"1"`
		Category string `json:"category,omitempty"`
		TopK     int    `json:"top_k,omitempty" default:"5" minimum:"0" maximum:"100"`
	}
}

type indexQueryFilteredInput struct {
	Body struct {
		Query    string   `json:"query" minLength:"1"`
		Flags    []string `json:"flags,omitempty" doc:"Any of has_visual_diagram, has_rendered_preview, has_image; empty matches all"`
		MinScore float64  `json:"min_score,omitempty" default:"0.4" minimum:"-1" maximum:"1"`
		TopK     int      `json:"top_k,omitempty" default:"3" minimum:"0" maximum:"100"`
	}
}

type indexQueryOutput struct {
	Body struct {
		Results []index.Match `json:"results"`
	}
}

type indexStatsOutput struct {
	Body struct {
		Count int `json:"count"`
	}
}

type askInput struct {
	Body struct {
		Question string `json:"question" minLength:"1"`
		Category string `json:"category,omitempty"`
		Visuals  bool   `json:"visuals,omitempty" doc:"Also return related diagrams and previews"`
	}
}

// AskBody is the ask response.
type AskBody struct {
	Answer        string        `json:"answer"`
	Cached        bool          `json:"cached"`
	Similarity    float64       `json:"similarity,omitempty"`
	OriginalQuery string        `json:"original_query,omitempty"`
	Sources       []index.Match `json:"sources"`
	Visuals       []index.Match `json:"visuals,omitempty"`
	Images        []index.Match `json:"images,omitempty" doc:"Related records with an attached image"`
}

type askOutput struct {
	Body AskBody
}

// UsageBody is the usage response.
type UsageBody struct {
	CurrentMonth usage.Month  `json:"current_month"`
	Total        usage.Totals `json:"total"`
}

type usageOutput struct {
	Body UsageBody
}

// --- Handlers ---

func (s *Server) handleCacheFind(ctx context.Context, input *cacheFindInput) (*cacheFindOutput, error) {
	in := input.Body
	hit, err := s.findSimilar(ctx, in.Query, in.Category, in.Threshold)
	if err != nil {
		return nil, s.toHumaError("finding cached answer", err)
	}
	out := &cacheFindOutput{}
	if hit != nil {
		out.Body = CacheFindBody{
			Found:         true,
			Answer:        hit.Answer,
			OriginalQuery: hit.OriginalQuery,
			Similarity:    hit.Similarity,
			CreatedAt:     hit.CreatedAt,
		}
	}
	return out, nil
}

func (s *Server) handleCacheAdd(ctx context.Context, input *cacheAddInput) (*cacheAddOutput, error) {
	merged, err := s.services.cache.Add(ctx, input.Body.Query, input.Body.Answer, input.Body.Category)
	if err != nil {
		return nil, s.toHumaError("adding cached answer", err)
	}
	out := &cacheAddOutput{}
	out.Body.Merged = merged
	return out, nil
}

func (s *Server) handleCacheInvalidate(ctx context.Context, input *cacheInvalidateInput) (*cacheInvalidateOutput, error) {
	in := input.Body
	var (
		n   int
		err error
	)
	if in.Threshold != nil {
		n, err = s.services.cache.InvalidateRelatedAt(ctx, in.Text, in.Category, *in.Threshold)
	} else {
		n, err = s.services.cache.InvalidateRelated(ctx, in.Text, in.Category)
	}
	if err != nil {
		return nil, s.toHumaError("invalidating cached answers", err)
	}
	out := &cacheInvalidateOutput{}
	out.Body.Removed = n
	return out, nil
}

func (s *Server) handleCacheStats(_ context.Context, _ *struct{}) (*cacheStatsOutput, error) {
	st := s.services.cache.Stats()
	out := &cacheStatsOutput{}
	out.Body.Count = st.Count
	out.Body.Categories = st.Categories
	out.Body.Path = st.Path
	return out, nil
}

func (s *Server) handleCacheClear(_ context.Context, _ *struct{}) (*struct{}, error) {
	s.services.cache.Clear()
	return &struct{}{}, nil
}

func (s *Server) handleIndexQuery(ctx context.Context, input *indexQueryInput) (*indexQueryOutput, error) {
	in := input.Body
	matches, err := s.services.index.QueryText(ctx, in.Query, in.Category, in.TopK)
	if err != nil {
		return nil, s.toHumaError("querying index", err)
	}
	out := &indexQueryOutput{}
	out.Body.Results = nonNil(matches)
	return out, nil
}

func (s *Server) handleIndexQueryFiltered(ctx context.Context, input *indexQueryFilteredInput) (*indexQueryOutput, error) {
	in := input.Body
	pred := index.Predicate{AnyOf: make([]index.Flag, len(in.Flags))}
	for i, f := range in.Flags {
		pred.AnyOf[i] = index.Flag(f)
	}
	matches, err := s.services.index.QueryTextFiltered(ctx, in.Query, pred, in.MinScore, in.TopK)
	if err != nil {
		return nil, s.toHumaError("querying index", err)
	}
	out := &indexQueryOutput{}
	out.Body.Results = nonNil(matches)
	return out, nil
}

func (s *Server) handleIndexStats(ctx context.Context, _ *struct{}) (*indexStatsOutput, error) {
	n, err := s.services.index.Count(ctx)
	if err != nil {
		return nil, s.toHumaError("counting index entries", err)
	}
	out := &indexStatsOutput{}
	out.Body.Count = n
	return out, nil
}

func (s *Server) handleAsk(ctx context.Context, input *askInput) (*askOutput, error) {
	if s.services.answers == nil {
		return nil, huma.Error503ServiceUnavailable("answer generation not configured")
	}
	in := input.Body
	ans, err := s.services.answers.Ask(ctx, in.Question, in.Category, in.Visuals)
	if err != nil {
		return nil, s.toHumaError("answering question", err)
	}
	return &askOutput{Body: AskBody{
		Answer:        ans.Text,
		Cached:        ans.Cached,
		Similarity:    ans.Similarity,
		OriginalQuery: ans.OriginalQuery,
		Sources:       nonNil(ans.Matches),
		Visuals:       ans.Visuals,
		Images:        ans.Images,
	}}, nil
}

func (s *Server) handleUsage(_ context.Context, _ *struct{}) (*usageOutput, error) {
	if s.services.usage == nil {
		return nil, huma.Error503ServiceUnavailable("usage tracking not configured")
	}
	return &usageOutput{Body: UsageBody{
		CurrentMonth: s.services.usage.CurrentMonth(),
		Total:        s.services.usage.Total(),
	}}, nil
}

func (s *Server) findSimilar(ctx context.Context, query, category string, threshold *float64) (*cache.Hit, error) {
	if threshold != nil {
		return s.services.cache.FindSimilarAt(ctx, query, category, *threshold)
	}
	return s.services.cache.FindSimilar(ctx, query, category)
}

// toHumaError maps a coded error to an HTTP status. Provider failures are
// reported as 502 regardless of their reason.
func (s *Server) toHumaError(op string, err error) error {
	status := sigilerr.HTTPStatus(err)
	if sigilerr.IsProviderFailure(err) {
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err, "code", sigilerr.CodeOf(err))
		if status == http.StatusInternalServerError {
			return huma.Error500InternalServerError(op)
		}
	}
	return huma.NewError(status, op+": "+err.Error())
}

func nonNil(m []index.Match) []index.Match {
	if m == nil {
		return []index.Match{}
	}
	return m
}
