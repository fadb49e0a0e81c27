// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	"context"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sigil-dev/recall/internal/provider"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Embedder and provider.Generator using the
// OpenAI Embeddings and Chat Completions APIs. The SDK's own retries are
// disabled; callers compose a provider.RetryPolicy instead.
type Provider struct {
	client openaisdk.Client
	config Config
	health *provider.HealthTracker
}

var (
	_ provider.Embedder       = (*Provider)(nil)
	_ provider.Generator      = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

// New creates a new OpenAI provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "openai: missing api_key in config", sigilerr.FieldProvider("openai"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	health, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "openai: creating health tracker")
	}

	return &Provider{
		client: openaisdk.NewClient(opts...),
		config: cfg,
		health: health,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return p.health.Status(p.Name()), nil
}

func (p *Provider) Close() error { return nil }

func (p *Provider) Embed(ctx context.Context, req provider.EmbedRequest) (provider.EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return provider.EmbedResponse{}, nil
	}

	resp, err := p.client.Embeddings.New(ctx, buildEmbedParams(req))
	if err != nil {
		p.health.RecordFailure()
		return provider.EmbedResponse{}, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "openai: embedding %d texts", len(req.Texts))
	}

	vectors, err := convertEmbeddings(resp.Data, len(req.Texts))
	if err != nil {
		p.health.RecordFailure()
		return provider.EmbedResponse{}, err
	}

	p.health.RecordSuccess()
	return provider.EmbedResponse{
		Vectors: vectors,
		Usage:   provider.Usage{InputTokens: int(resp.Usage.PromptTokens)},
	}, nil
}

func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.GenerateResponse{}, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "openai: empty prompt", sigilerr.FieldProvider("openai"))
	}

	resp, err := p.client.Chat.Completions.New(ctx, buildChatParams(req))
	if err != nil {
		p.health.RecordFailure()
		return provider.GenerateResponse{}, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "openai: generating with %s", req.Model)
	}
	if len(resp.Choices) == 0 {
		p.health.RecordFailure()
		return provider.GenerateResponse{}, sigilerr.New(sigilerr.CodeProviderResponseInvalid, "openai: response has no choices")
	}

	p.health.RecordSuccess()
	return provider.GenerateResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: provider.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func buildEmbedParams(req provider.EmbedRequest) openaisdk.EmbeddingNewParams {
	params := openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(req.Model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: req.Texts,
		},
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	if req.Dimensions > 0 {
		params.Dimensions = param.NewOpt(int64(req.Dimensions))
	}
	return params
}

func buildChatParams(req provider.GenerateRequest) openaisdk.ChatCompletionNewParams {
	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Prompt))

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Temperature))
	}
	return params
}

// convertEmbeddings orders the response by index and narrows to float32.
func convertEmbeddings(data []openaisdk.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid, "openai: got %d embeddings for %d texts", len(data), want)
	}

	out := make([][]float32, want)
	for _, e := range data {
		if e.Index < 0 || int(e.Index) >= want || out[e.Index] != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid, "openai: bad embedding index %d", e.Index)
		}
		v := make([]float32, len(e.Embedding))
		for i, f := range e.Embedding {
			v[i] = float32(f)
		}
		out[e.Index] = v
	}
	return out, nil
}
