// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/sigil-dev/recall/internal/provider"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Embedder and provider.Generator using the
// Gemini API.
type Provider struct {
	client *genai.Client
	config Config
	health *provider.HealthTracker
}

var (
	_ provider.Embedder       = (*Provider)(nil)
	_ provider.Generator      = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

// New creates a new Google provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "google: missing api_key in config", sigilerr.FieldProvider("google"))
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	health, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "google: creating health tracker")
	}

	return &Provider{
		client: client,
		config: cfg,
		health: health,
	}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return p.health.Status(p.Name()), nil
}

func (p *Provider) Close() error { return nil }

// Embed sends all texts in one EmbedContent call.
func (p *Provider) Embed(ctx context.Context, req provider.EmbedRequest) (provider.EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return provider.EmbedResponse{}, nil
	}

	contents := make([]*genai.Content, len(req.Texts))
	for i, t := range req.Texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := p.client.Models.EmbedContent(ctx, req.Model, contents, buildEmbedConfig(req))
	if err != nil {
		p.health.RecordFailure()
		return provider.EmbedResponse{}, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "google: embedding %d texts", len(req.Texts))
	}
	if len(resp.Embeddings) != len(req.Texts) {
		p.health.RecordFailure()
		return provider.EmbedResponse{}, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid,
			"google: got %d embeddings for %d texts", len(resp.Embeddings), len(req.Texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			p.health.RecordFailure()
			return provider.EmbedResponse{}, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid, "google: empty embedding at %d", i)
		}
		vectors[i] = e.Values
	}

	p.health.RecordSuccess()
	return provider.EmbedResponse{Vectors: vectors}, nil
}

// Generate runs a single non-streaming GenerateContent call.
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.GenerateResponse{}, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "google: empty prompt", sigilerr.FieldProvider("google"))
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), buildGenerateConfig(req))
	if err != nil {
		p.health.RecordFailure()
		return provider.GenerateResponse{}, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "google: generating with %s", req.Model)
	}

	out := provider.GenerateResponse{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Usage = provider.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	p.health.RecordSuccess()
	return out, nil
}

func buildEmbedConfig(req provider.EmbedRequest) *genai.EmbedContentConfig {
	cfg := &genai.EmbedContentConfig{}
	if req.Dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(req.Dimensions))
	}
	return cfg
}

func buildGenerateConfig(req provider.GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: req.SystemPrompt},
			},
		}
	}
	return cfg
}
