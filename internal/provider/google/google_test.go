// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/provider"
	"github.com/sigil-dev/recall/internal/provider/google"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

func mustNewProvider(t *testing.T) *google.Provider {
	t.Helper()
	p, err := google.New(google.Config{APIKey: "test-key"})
	require.NoError(t, err)
	return p
}

func TestGoogleProvider_Name(t *testing.T) {
	assert.Equal(t, "google", mustNewProvider(t).Name())
}

func TestGoogleProvider_MissingAPIKey(t *testing.T) {
	_, err := google.New(google.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeProviderRequestInvalid))
}

func TestGoogleProvider_StatusTracksHealth(t *testing.T) {
	p := mustNewProvider(t)
	ctx := context.Background()

	st, err := p.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Available)
	assert.Equal(t, "google", st.Provider)

	p.RecordFailure()
	st, err = p.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Available)
	require.NotNil(t, st.Health)
	assert.Equal(t, int64(1), st.Health.FailureCount)
}

func TestGoogleProvider_EmptyBatchMakesNoCall(t *testing.T) {
	p := mustNewProvider(t)
	resp, err := p.Embed(context.Background(), provider.EmbedRequest{Model: "gemini-embedding-001"})
	require.NoError(t, err)
	assert.Empty(t, resp.Vectors)
}

func TestGoogleProvider_GenerateRejectsEmptyPrompt(t *testing.T) {
	p := mustNewProvider(t)
	_, err := p.Generate(context.Background(), provider.GenerateRequest{Model: "gemini-2.5-flash", Prompt: "  "})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeProviderRequestInvalid))
}

func TestBuildEmbedConfig(t *testing.T) {
	cfg := google.BuildEmbedConfig(provider.EmbedRequest{Dimensions: 768})
	require.NotNil(t, cfg.OutputDimensionality)
	assert.Equal(t, int32(768), *cfg.OutputDimensionality)

	cfg = google.BuildEmbedConfig(provider.EmbedRequest{})
	assert.Nil(t, cfg.OutputDimensionality)
}

func TestBuildGenerateConfig(t *testing.T) {
	temp := float32(0.3)
	cfg := google.BuildGenerateConfig(provider.GenerateRequest{
		SystemPrompt: "be brief",
		Temperature:  &temp,
		MaxTokens:    512,
	})

	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.3, float64(*cfg.Temperature), 1e-6)
	assert.Equal(t, int32(512), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.SystemInstruction)
	require.Len(t, cfg.SystemInstruction.Parts, 1)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)

	empty := google.BuildGenerateConfig(provider.GenerateRequest{})
	assert.Nil(t, empty.Temperature)
	assert.Nil(t, empty.SystemInstruction)
}
