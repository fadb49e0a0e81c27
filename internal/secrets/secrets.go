// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps provider API keys out of the config file. Config
// values of the form keyring://service/key are resolved against a Store
// after loading.
package secrets

// DefaultService is the keyring service recall stores its keys under.
const DefaultService = "recall"

// Store provides secure secret storage operations.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// Returns a CodeSecretNotFound error if the key does not exist.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	// Returns a CodeSecretNotFound error if the key does not exist.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}

// URI returns the keyring reference for key under service.
func URI(service, key string) string {
	return keyringScheme + service + "/" + key
}

// providerEnv lists the environment variables consulted for a provider's
// API key when the config leaves it empty, in order.
var providerEnv = map[string][]string{
	"google":     {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
}

// EnvVars returns the fallback environment variables for provider.
func EnvVars(provider string) []string {
	return providerEnv[provider]
}
