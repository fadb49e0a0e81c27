// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	"context"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sigil-dev/recall/internal/provider"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// defaultMaxTokens is sent when the request leaves MaxTokens unset; the
// Messages API requires an explicit ceiling.
const defaultMaxTokens = 4096

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Generator using the Anthropic Messages API.
// Anthropic has no embeddings endpoint, so it only serves generation.
type Provider struct {
	client anthropicsdk.Client
	config Config
	health *provider.HealthTracker
}

var (
	_ provider.Generator      = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

// New creates a new Anthropic provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "anthropic: missing api_key in config", sigilerr.FieldProvider("anthropic"))
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
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "anthropic: creating health tracker")
	}

	return &Provider{
		client: anthropicsdk.NewClient(opts...),
		config: cfg,
		health: health,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return p.health.Status(p.Name()), nil
}

func (p *Provider) Close() error { return nil }

func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.GenerateResponse{}, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "anthropic: empty prompt", sigilerr.FieldProvider("anthropic"))
	}

	msg, err := p.client.Messages.New(ctx, buildParams(req))
	if err != nil {
		p.health.RecordFailure()
		return provider.GenerateResponse{}, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "anthropic: generating with %s", req.Model)
	}

	text := collectText(msg.Content)
	if text == "" {
		p.health.RecordFailure()
		return provider.GenerateResponse{}, sigilerr.New(sigilerr.CodeProviderResponseInvalid, "anthropic: response has no text content")
	}

	p.health.RecordSuccess()
	return provider.GenerateResponse{
		Text: text,
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// buildParams converts a provider.GenerateRequest into Anthropic SDK MessageNewParams.
func buildParams(req provider.GenerateRequest) anthropicsdk.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model: anthropicsdk.Model(req.Model),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropicsdk.Float(float64(*req.Temperature))
	}
	return params
}

// collectText joins the text blocks of a response, skipping any other block types.
func collectText(blocks []anthropicsdk.ContentBlockUnion) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
