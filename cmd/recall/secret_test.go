// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // key → value (service is always "recall")
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", sigilerr.Errorf(sigilerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		wantKeys []string
		wantMsg  string
	}{
		{
			name:    "empty store",
			wantMsg: "No secrets stored.\n",
		},
		{
			name:     "single key",
			keys:     []string{"google"},
			wantKeys: []string{"google"},
		},
		{
			name:     "multiple keys",
			keys:     []string{"google", "openai"},
			wantKeys: []string{"google", "openai"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := newTestCLI(t, "test-key")
			for _, k := range tt.keys {
				cli.secrets.data[k] = "value"
			}

			out := cli.mustRun(t, "secret", "list")

			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, out)
				return
			}
			lines := strings.Split(strings.TrimSpace(out), "\n")
			sort.Strings(lines)
			assert.Equal(t, tt.wantKeys, lines)
		})
	}
}

func TestSecretSet(t *testing.T) {
	t.Run("value argument", func(t *testing.T) {
		cli := newTestCLI(t, "test-key")

		out := cli.mustRun(t, "secret", "set", "google", "s3cret")

		assert.Equal(t, "s3cret", cli.secrets.data["google"])
		assert.Contains(t, out, "keyring://recall/google")
	})

	t.Run("empty value rejected", func(t *testing.T) {
		cli := newTestCLI(t, "test-key")

		_, err := cli.run(t, "secret", "set", "google", "")

		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeCLIInputInvalid))
		assert.Empty(t, cli.secrets.data)
	})
}

func TestSecretDelete(t *testing.T) {
	t.Run("existing key", func(t *testing.T) {
		cli := newTestCLI(t, "test-key")
		cli.secrets.data["google"] = "value"

		out := cli.mustRun(t, "secret", "delete", "google")

		assert.Equal(t, "Deleted secret: google\n", out)
		assert.NotContains(t, cli.secrets.data, "google")
	})

	t.Run("missing key", func(t *testing.T) {
		cli := newTestCLI(t, "test-key")

		_, err := cli.run(t, "secret", "delete", "nope")

		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretNotFound))
		assert.Contains(t, err.Error(), `"nope"`)
	})
}

func TestKeyringReferenceResolvedAtStartup(t *testing.T) {
	cli := newTestCLI(t, "keyring://recall/google")
	cli.secrets.data["google"] = "resolved-key"

	var gotKey string
	backendFactory = func(_ string, apiKey, _ string) (backend, error) {
		gotKey = apiKey
		return cli.fake, nil
	}

	cli.mustRun(t, "search", "center div")

	assert.Equal(t, "resolved-key", gotKey)
}

func TestUnresolvedKeyringReferenceFails(t *testing.T) {
	cli := newTestCLI(t, "keyring://recall/missing")

	_, err := cli.run(t, "search", "center div")

	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretResolveFailure))
}
