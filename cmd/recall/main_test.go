// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/provider"
	"github.com/sigil-dev/recall/internal/secrets"
)

const fakeAnswer = "Use display: flex with justify-content and align-items set to center."

// fakeVocab maps words to dimensions of a bag-of-words embedding. The last
// dimension is a constant bias so no vector is all zeros.
var fakeVocab = []string{"center", "div", "flexbox", "python", "sort", "list", "svg"}

const fakeDims = 8

// fakeBackend embeds deterministically and returns a canned answer.
type fakeBackend struct {
	embeds    int
	generates int
}

func (f *fakeBackend) Name() string { return "google" }

func (f *fakeBackend) Embed(_ context.Context, req provider.EmbedRequest) (provider.EmbedResponse, error) {
	f.embeds++
	out := make([][]float32, len(req.Texts))
	for i, text := range req.Texts {
		v := make([]float32, fakeDims)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			for j, vocab := range fakeVocab {
				if w == vocab {
					v[j]++
				}
			}
		}
		v[fakeDims-1] = 0.1
		out[i] = v
	}
	return provider.EmbedResponse{Vectors: out}, nil
}

func (f *fakeBackend) Generate(_ context.Context, _ provider.GenerateRequest) (provider.GenerateResponse, error) {
	f.generates++
	return provider.GenerateResponse{Text: fakeAnswer}, nil
}

func (f *fakeBackend) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: "google"}, nil
}

func (f *fakeBackend) Close() error { return nil }

type testCLI struct {
	dir     string
	cfgPath string
	fake    *fakeBackend
	secrets *mockSecretStore
}

// newTestCLI isolates HOME, writes a config pointing at a temp data dir and
// swaps the provider and keyring factories for fakes.
func newTestCLI(t *testing.T, apiKey string) *testCLI {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, name := range []string{"GOOGLE_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(name, "")
	}

	cfg := "data_dir: " + filepath.Join(dir, "data") + "\n" +
		"embedding:\n" +
		"  dimensions: 8\n" +
		"  api_key: \"" + apiKey + "\"\n" +
		"  retry:\n" +
		"    max_attempts: 1\n" +
		"generation:\n" +
		"  api_key: \"" + apiKey + "\"\n" +
		"  retry:\n" +
		"    max_attempts: 1\n"
	cfgPath := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	fake := &fakeBackend{}
	origBackend := backendFactory
	backendFactory = func(string, string, string) (backend, error) { return fake, nil }
	origGenerator := generatorFactory

	store := newMockSecretStore()
	origStore := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return store }

	t.Cleanup(func() {
		backendFactory = origBackend
		generatorFactory = origGenerator
		secretStoreFactory = origStore
		viper.Reset()
	})

	return &testCLI{dir: dir, cfgPath: cfgPath, fake: fake, secrets: store}
}

// run executes one command line against a fresh root command and global
// viper, the way separate invocations of the binary would.
func (c *testCLI) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()

	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{"--config", c.cfgPath}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *testCLI) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, args...)
	require.NoError(t, err, "recall %s", strings.Join(args, " "))
	return out
}
