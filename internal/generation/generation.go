// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package generation is the text-generation collaborator used by the CLI and
// HTTP surfaces. The retrieval core never imports it.
package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/metrics"
	"github.com/sigil-dev/recall/internal/provider"
	"github.com/sigil-dev/recall/internal/usage"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Options configures a Service.
type Options struct {
	Model        string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
	Retry        provider.RetryPolicy
	Usage        embedding.UsageRecorder
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Service generates answers through a provider.Generator.
type Service struct {
	backend provider.Generator
	opts    Options
	logger  *slog.Logger
}

// New creates a Service over backend.
func New(backend provider.Generator, opts Options) (*Service, error) {
	if backend == nil {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "generation backend must not be nil")
	}
	if opts.Model == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "generation model must not be empty", sigilerr.FieldProvider(backend.Name()))
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = provider.DefaultRetryPolicy()
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, opts: opts, logger: logger}, nil
}

// Model is the configured generation model.
func (s *Service) Model() string { return s.opts.Model }

// Generate returns the model's answer to prompt.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	defer s.opts.Metrics.ObserveProvider("generate", start)

	req := provider.GenerateRequest{
		Model:        s.opts.Model,
		Prompt:       prompt,
		SystemPrompt: s.opts.SystemPrompt,
		Temperature:  s.opts.Temperature,
		MaxTokens:    s.opts.MaxTokens,
	}

	var resp provider.GenerateResponse
	err := s.opts.Retry.Do(ctx, "generate", func(ctx context.Context) error {
		var err error
		resp, err = s.backend.Generate(ctx, req)
		return err
	})
	if err != nil {
		return "", sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "generating with %s/%s", s.backend.Name(), s.opts.Model)
	}

	s.recordUsage(prompt, resp)
	s.logger.Debug("generation complete",
		"model", s.opts.Model,
		"prompt_chars", len(prompt),
		"answer_chars", len(resp.Text),
		"elapsed", time.Since(start),
	)
	return resp.Text, nil
}

func (s *Service) recordUsage(prompt string, resp provider.GenerateResponse) {
	if s.opts.Usage == nil {
		return
	}
	in, out := resp.Usage.InputTokens, resp.Usage.OutputTokens
	if in <= 0 {
		in = embedding.EstimateTokens(prompt)
	}
	if out <= 0 {
		out = embedding.EstimateTokens(resp.Text)
	}
	s.opts.Usage.Record(usage.Event{
		Kind:         usage.KindGeneration,
		Model:        s.opts.Model,
		InputTokens:  in,
		OutputTokens: out,
	})
}
