// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openrouter

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

const baseURL = "https://openrouter.ai/api/v1"

// Config holds OpenRouter provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Generator using OpenRouter's OpenAI-compatible
// chat completions API. Models are addressed as "vendor/model".
type Provider struct {
	client openaisdk.Client
	config Config
	health *provider.HealthTracker
}

var (
	_ provider.Generator      = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

// New creates a new OpenRouter provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "openrouter: missing api_key in config", sigilerr.FieldProvider("openrouter"))
	}

	base := baseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}

	health, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "openrouter: creating health tracker")
	}

	return &Provider{
		client: openaisdk.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(base),
			option.WithMaxRetries(0),
		),
		config: cfg,
		health: health,
	}, nil
}

func (p *Provider) Name() string { return "openrouter" }

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return p.health.Status(p.Name()), nil
}

func (p *Provider) Close() error { return nil }

func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.GenerateResponse{}, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "openrouter: empty prompt", sigilerr.FieldProvider("openrouter"))
	}

	resp, err := p.client.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		p.health.RecordFailure()
		return provider.GenerateResponse{}, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "openrouter: generating with %s", req.Model)
	}
	if len(resp.Choices) == 0 {
		p.health.RecordFailure()
		return provider.GenerateResponse{}, sigilerr.New(sigilerr.CodeProviderResponseInvalid, "openrouter: response has no choices")
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

func buildParams(req provider.GenerateRequest) openaisdk.ChatCompletionNewParams {
	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Prompt))

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	// OpenRouter still expects the legacy max_tokens field.
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Temperature))
	}
	return params
}
