// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sigil-dev/recall/internal/answer"
	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/config"
	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/generation"
	"github.com/sigil-dev/recall/internal/index"
	"github.com/sigil-dev/recall/internal/metrics"
	"github.com/sigil-dev/recall/internal/provider"
	anthropicprov "github.com/sigil-dev/recall/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/recall/internal/provider/google"
	openaiprov "github.com/sigil-dev/recall/internal/provider/openai"
	openrouterprov "github.com/sigil-dev/recall/internal/provider/openrouter"
	"github.com/sigil-dev/recall/internal/record"
	"github.com/sigil-dev/recall/internal/retrieval"
	"github.com/sigil-dev/recall/internal/secrets"
	"github.com/sigil-dev/recall/internal/usage"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// backend is a provider that can both embed and generate.
type backend interface {
	provider.Embedder
	provider.Generator
}

// backendFactory creates a provider backend. It is a package-level variable
// so tests can substitute a deterministic fake.
var backendFactory = func(name, apiKey, baseURL string) (backend, error) {
	switch name {
	case config.ProviderGoogle:
		p, err := googleprov.New(googleprov.Config{APIKey: apiKey, BaseURL: baseURL})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderOpenAI:
		p, err := openaiprov.New(openaiprov.Config{APIKey: apiKey, BaseURL: baseURL})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, sigilerr.Errorf(sigilerr.CodeProviderNotFound, "unknown provider %q", name)
	}
}

// generatorFactory creates a generation-only provider. Providers that also
// embed are delegated to backendFactory.
var generatorFactory = func(name, apiKey, baseURL string) (provider.Generator, error) {
	switch name {
	case config.ProviderAnthropic:
		p, err := anthropicprov.New(anthropicprov.Config{APIKey: apiKey, BaseURL: baseURL})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderOpenRouter:
		p, err := openrouterprov.New(openrouterprov.Config{APIKey: apiKey, BaseURL: baseURL})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return backendFactory(name, apiKey, baseURL)
	}
}

// App holds all wired subsystems.
type App struct {
	Config       *config.Config
	DataDir      string
	Metrics      *metrics.Metrics
	Usage        *usage.Tracker
	Providers    *provider.Registry
	Embedder     *embedding.Adapter
	Records      *record.FileStore
	Index        *index.Index
	Cache        *cache.Cache
	Orchestrator *retrieval.Orchestrator
	Generator    *generation.Service // nil unless wired with generation
	Answers      *answer.Service     // nil unless wired with generation
}

// wireOptions selects optional subsystems.
type wireOptions struct {
	generation bool
}

// WireApp creates all subsystems and wires them together. Relative data
// paths resolve against the data directory.
func WireApp(cfg *config.Config, opts wireOptions) (*App, error) {
	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	logger := slog.Default()
	app := &App{
		Config:    cfg,
		DataDir:   dataDir,
		Metrics:   metrics.New(),
		Providers: provider.NewRegistry(),
	}
	path := func(p string) string { return config.DataPath(dataDir, p) }

	app.Usage = usage.Open(path(cfg.Usage.Path), nil)

	// 1. Embedding adapter over the raw provider.
	embBackend, err := newBackend("embedding", cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating embedding provider")
	}
	app.Providers.RegisterEmbedder(cfg.Embedding.Provider, embBackend)

	app.Embedder, err = embedding.New(embBackend, embedding.Options{
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Retry:      cfg.Embedding.Retry.Policy(),
		MemoTTL:    cfg.Embedding.MemoTTL,
		Usage:      app.Usage,
		Metrics:    app.Metrics,
		Logger:     logger,
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating embedding adapter")
	}

	// 2. Record store (ground truth for the index).
	app.Records, err = record.OpenFileStore(path(cfg.Records.Path))
	if err != nil {
		return nil, err
	}

	// 3. Vector index.
	be, err := index.OpenBackend(cfg.Index.Backend, path(cfg.Index.Path), cfg.Embedding.Dimensions, logger)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "opening index backend")
	}
	app.Index, err = index.New(be, app.Embedder, app.Records, index.Options{Logger: logger, Metrics: app.Metrics})
	if err != nil {
		_ = be.Close()
		return nil, err
	}

	// 4. Semantic cache.
	app.Cache, err = cache.New(path(cfg.Cache.Path), app.Embedder, cache.Options{
		HitThreshold:        cfg.Cache.HitThreshold,
		MergeThreshold:      cfg.Cache.MergeThreshold,
		InvalidateThreshold: cfg.Cache.InvalidateThreshold,
		InvalidateMaxChars:  cfg.Cache.InvalidateMaxChars,
		Logger:              logger,
		Metrics:             app.Metrics,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	// 5. Orchestrator.
	app.Orchestrator, err = retrieval.New(app.Embedder, app.Index, app.Cache, app.Records, retrieval.Options{
		TopK:           cfg.Index.TopK,
		VisualMinScore: cfg.Index.VisualMinScore,
		VisualTopK:     cfg.Index.VisualTopK,
		Logger:         logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	if !opts.generation {
		return app, nil
	}

	// 6. Generation, reusing the embedding backend when the provider matches.
	var genBackend provider.Generator = embBackend
	if cfg.Generation.Provider != cfg.Embedding.Provider || cfg.Generation.APIKey != cfg.Embedding.APIKey || cfg.Generation.BaseURL != cfg.Embedding.BaseURL {
		genBackend, err = newGenerator(cfg.Generation.Provider, cfg.Generation.APIKey, cfg.Generation.BaseURL)
		if err != nil {
			_ = app.Close()
			return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating generation provider")
		}
	}
	app.Providers.RegisterGenerator(cfg.Generation.Provider, genBackend)

	app.Generator, err = generation.New(genBackend, generation.Options{
		Model:   cfg.Generation.Model,
		Retry:   cfg.Generation.Retry.Policy(),
		Usage:   app.Usage,
		Metrics: app.Metrics,
		Logger:  logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating generation service")
	}

	app.Answers, err = answer.New(app.Orchestrator, app.Generator, answer.Options{
		SourceMinScore: cfg.Index.SourceMinScore,
		Logger:         logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	return app, nil
}

// newBackend resolves the API key and creates the provider. A missing key
// yields a backend that fails on use, so offline commands still work.
func newBackend(section, name, configuredKey, baseURL string) (backend, error) {
	apiKey := secrets.APIKey(name, configuredKey)
	if apiKey == "" && baseURL == "" {
		slog.Debug("no api key configured, provider calls will fail", "provider", name, "section", section)
		return &unconfiguredBackend{name: name, section: section}, nil
	}
	return backendFactory(name, apiKey, baseURL)
}

// newGenerator is newBackend for the generation section, which also
// accepts generation-only providers.
func newGenerator(name, configuredKey, baseURL string) (provider.Generator, error) {
	apiKey := secrets.APIKey(name, configuredKey)
	if apiKey == "" && baseURL == "" {
		slog.Debug("no api key configured, provider calls will fail", "provider", name, "section", "generation")
		return &unconfiguredBackend{name: name, section: "generation"}, nil
	}
	return generatorFactory(name, apiKey, baseURL)
}

// EnsureIndex rebuilds the index from the record store when it is empty.
func (a *App) EnsureIndex(ctx context.Context) error {
	_, err := a.Index.EnsureBuilt(ctx)
	return err
}

// Close releases the index backend and provider clients.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Providers != nil {
		if err := a.Providers.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return sigilerr.Join(errs...)
	}
	return nil
}

// unconfiguredBackend stands in for a provider with no API key.
type unconfiguredBackend struct {
	name    string
	section string
}

var _ backend = (*unconfiguredBackend)(nil)

func (b *unconfiguredBackend) Name() string { return b.name }

func (b *unconfiguredBackend) err() error {
	hint := b.section + ".api_key"
	if vars := secrets.EnvVars(b.name); len(vars) > 0 {
		hint += " or " + vars[0]
	}
	return sigilerr.Errorf(sigilerr.CodeProviderRequestInvalid, "%s: no api key configured, set %s", b.name, hint)
}

func (b *unconfiguredBackend) Embed(context.Context, provider.EmbedRequest) (provider.EmbedResponse, error) {
	return provider.EmbedResponse{}, b.err()
}

func (b *unconfiguredBackend) Generate(context.Context, provider.GenerateRequest) (provider.GenerateResponse, error) {
	return provider.GenerateResponse{}, b.err()
}

func (b *unconfiguredBackend) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Provider: b.name, Message: "no api key configured"}, nil
}

func (b *unconfiguredBackend) Close() error { return nil }
