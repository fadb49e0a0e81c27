// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
)

// Embedder is the raw embedding collaborator. Implementations make exactly
// one remote call per Embed and do not retry; retry and fallback belong to
// the embedding adapter composed around them.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, req EmbedRequest) (EmbedResponse, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// Generator is the raw text-generation collaborator.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// EmbedRequest asks for one vector per text, in order.
type EmbedRequest struct {
	Model      string
	Texts      []string
	Dimensions int
}

// EmbedResponse carries one vector per requested text.
type EmbedResponse struct {
	Vectors [][]float32
	Usage   Usage
}

// GenerateRequest is a single-turn prompt.
type GenerateRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
}

// GenerateResponse is the generated text and the tokens it consumed.
type GenerateResponse struct {
	Text  string
	Usage Usage
}

// Usage tracks token consumption. Providers that do not report usage leave
// it zero; callers fall back to an estimate.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Available bool
	Provider  string
	Message   string
	Health    *HealthMetrics
}

// HealthReporter is implemented by backends that track their own health.
type HealthReporter interface {
	RecordFailure()
	RecordSuccess()
}
