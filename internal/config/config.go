// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/recall/internal/answer"
	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/index"
	"github.com/sigil-dev/recall/internal/provider"
	"github.com/sigil-dev/recall/internal/retrieval"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "RECALL"

// Supported provider backends.
const (
	ProviderGoogle     = "google"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"  // generation only
	ProviderOpenRouter = "openrouter" // generation only
)

// Config is the top-level recall configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Generation GenerationConfig `mapstructure:"generation"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Index      IndexConfig      `mapstructure:"index"`
	Records    RecordsConfig    `mapstructure:"records"`
	Usage      UsageConfig      `mapstructure:"usage"`
	Networking NetworkingConfig `mapstructure:"networking"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RetryConfig mirrors provider.RetryPolicy.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

// Policy converts the config to a provider.RetryPolicy.
func (r RetryConfig) Policy() provider.RetryPolicy {
	p := provider.DefaultRetryPolicy()
	p.MaxAttempts = r.MaxAttempts
	p.InitialDelay = r.InitialDelay
	p.MaxDelay = r.MaxDelay
	p.Multiplier = r.Multiplier
	return p
}

// EmbeddingConfig selects the embedding backend and model.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	MemoTTL    time.Duration `mapstructure:"memo_ttl"`
	Retry      RetryConfig   `mapstructure:"retry"`
}

// GenerationConfig selects the text generation backend and model.
type GenerationConfig struct {
	Provider string      `mapstructure:"provider"`
	Model    string      `mapstructure:"model"`
	APIKey   string      `mapstructure:"api_key"`
	BaseURL  string      `mapstructure:"base_url"`
	Retry    RetryConfig `mapstructure:"retry"`
}

// CacheConfig controls the semantic answer cache.
type CacheConfig struct {
	Path                string  `mapstructure:"path"`
	HitThreshold        float64 `mapstructure:"hit_threshold"`
	MergeThreshold      float64 `mapstructure:"merge_threshold"`
	InvalidateThreshold float64 `mapstructure:"invalidate_threshold"`
	InvalidateMaxChars  int     `mapstructure:"invalidate_max_chars"`
}

// IndexConfig controls the vector index backend and query sizes.
type IndexConfig struct {
	Backend        string  `mapstructure:"backend"`
	Path           string  `mapstructure:"path"`
	TopK           int     `mapstructure:"top_k"`
	VisualMinScore float64 `mapstructure:"visual_min_score"`
	VisualTopK     int     `mapstructure:"visual_top_k"`
	// SourceMinScore is the score a match needs to be passed to generation.
	SourceMinScore float64 `mapstructure:"source_min_score"`
}

// RecordsConfig locates the knowledge record file.
type RecordsConfig struct {
	Path string `mapstructure:"path"`
}

// UsageConfig locates the usage accounting file.
type UsageConfig struct {
	Path string `mapstructure:"path"`
}

// NetworkingConfig controls how the HTTP surface listens.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("embedding.provider", ProviderGoogle)
	v.SetDefault("embedding.model", "gemini-embedding-001")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.memo_ttl", 10*time.Minute)
	setRetryDefaults(v, "embedding.retry")

	v.SetDefault("generation.provider", ProviderGoogle)
	v.SetDefault("generation.model", "gemini-2.5-flash")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.base_url", "")
	setRetryDefaults(v, "generation.retry")

	v.SetDefault("cache.path", "answer_cache.json")
	v.SetDefault("cache.hit_threshold", cache.DefaultHitThreshold)
	v.SetDefault("cache.merge_threshold", cache.DefaultMergeThreshold)
	v.SetDefault("cache.invalidate_threshold", cache.DefaultInvalidateThreshold)
	v.SetDefault("cache.invalidate_max_chars", cache.DefaultInvalidateMaxChars)

	v.SetDefault("index.backend", index.BackendMemory)
	v.SetDefault("index.path", "vectors.db")
	v.SetDefault("index.top_k", retrieval.DefaultTopK)
	v.SetDefault("index.visual_min_score", retrieval.DefaultVisualMinScore)
	v.SetDefault("index.visual_top_k", retrieval.DefaultVisualTopK)
	v.SetDefault("index.source_min_score", answer.DefaultSourceMinScore)

	v.SetDefault("records.path", "practices.json")
	v.SetDefault("usage.path", "api_usage.json")

	v.SetDefault("networking.listen", "127.0.0.1:18790")
	v.SetDefault("networking.cors_origins", []string{})
}

func setRetryDefaults(v *viper.Viper, prefix string) {
	p := provider.DefaultRetryPolicy()
	v.SetDefault(prefix+".max_attempts", p.MaxAttempts)
	v.SetDefault(prefix+".initial_delay", p.InitialDelay)
	v.SetDefault(prefix+".max_delay", p.MaxDelay)
	v.SetDefault(prefix+".multiplier", p.Multiplier)
}

// SetupEnv binds RECALL_* environment variables, with "." mapped to "_".
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix RECALL_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// ResolveDataDir returns DataDir, or $HOME/.local/share/recall when unset.
func (c *Config) ResolveDataDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "recall"), nil
}

// DataPath resolves p against the data directory unless it is absolute.
// An empty p stays empty.
func DataPath(dataDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateGeneration()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validateNetworking()...)

	return errs
}

func invalid(format string, args ...any) error {
	return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}

func validProvider(name string) bool {
	return name == ProviderGoogle || name == ProviderOpenAI
}

func validGenerationProvider(name string) bool {
	return validProvider(name) || name == ProviderAnthropic || name == ProviderOpenRouter
}

func validateRetry(key string, r RetryConfig) []error {
	var errs []error
	if r.MaxAttempts < 1 {
		errs = append(errs, invalid("%s.max_attempts must be at least 1, got %d", key, r.MaxAttempts))
	}
	if r.InitialDelay < 0 || r.MaxDelay < 0 {
		errs = append(errs, invalid("%s delays must not be negative", key))
	}
	if r.Multiplier < 1 {
		errs = append(errs, invalid("%s.multiplier must be at least 1, got %g", key, r.Multiplier))
	}
	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	if !validProvider(c.Embedding.Provider) {
		errs = append(errs, invalid("embedding.provider must be one of [google, openai], got %q", c.Embedding.Provider))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, invalid("embedding.model must not be empty"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, invalid("embedding.dimensions must be greater than 0, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.MemoTTL < 0 {
		errs = append(errs, invalid("embedding.memo_ttl must not be negative, got %s", c.Embedding.MemoTTL))
	}
	errs = append(errs, validateRetry("embedding.retry", c.Embedding.Retry)...)

	return errs
}

func (c *Config) validateGeneration() []error {
	var errs []error

	if !validGenerationProvider(c.Generation.Provider) {
		errs = append(errs, invalid("generation.provider must be one of [google, openai, anthropic, openrouter], got %q", c.Generation.Provider))
	}
	if c.Generation.Model == "" {
		errs = append(errs, invalid("generation.model must not be empty"))
	}
	errs = append(errs, validateRetry("generation.retry", c.Generation.Retry)...)

	return errs
}

func validateThreshold(key string, v float64) error {
	if v <= 0 || v > 1 {
		return invalid("%s must be in (0, 1], got %g", key, v)
	}
	return nil
}

func (c *Config) validateCache() []error {
	var errs []error

	thresholds := []struct {
		key string
		v   float64
	}{
		{"cache.hit_threshold", c.Cache.HitThreshold},
		{"cache.merge_threshold", c.Cache.MergeThreshold},
		{"cache.invalidate_threshold", c.Cache.InvalidateThreshold},
	}
	for _, th := range thresholds {
		if err := validateThreshold(th.key, th.v); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Cache.InvalidateMaxChars <= 0 {
		errs = append(errs, invalid("cache.invalidate_max_chars must be greater than 0, got %d", c.Cache.InvalidateMaxChars))
	}

	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error

	validBackends := map[string]bool{index.BackendMemory: true, index.BackendSQLite: true}
	if !validBackends[c.Index.Backend] {
		errs = append(errs, invalid("index.backend must be one of [memory, sqlite], got %q", c.Index.Backend))
	}
	if c.Index.Backend == index.BackendSQLite && c.Index.Path == "" {
		errs = append(errs, invalid("index.path must not be empty for the sqlite backend"))
	}
	if c.Index.TopK <= 0 {
		errs = append(errs, invalid("index.top_k must be greater than 0, got %d", c.Index.TopK))
	}
	if c.Index.VisualTopK <= 0 {
		errs = append(errs, invalid("index.visual_top_k must be greater than 0, got %d", c.Index.VisualTopK))
	}
	if err := validateThreshold("index.visual_min_score", c.Index.VisualMinScore); err != nil {
		errs = append(errs, err)
	}
	if err := validateThreshold("index.source_min_score", c.Index.SourceMinScore); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w", c.Networking.Listen, err))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}
