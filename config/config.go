// Package config loads linkwalk settings from an optional YAML file.
// Command-line flags are layered on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lukemcguire/linkwalk/crawler"
)

const (
	defaultMaxParallelRequests = 4
	defaultRequestTimeout      = 10 * time.Second
	defaultRetryDelay          = 1 * time.Second
	defaultMaxBodyBytes        = 5 << 20
)

// ErrInvalidConfig is returned for settings that fail validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every tunable setting.
type Config struct {
	MaxParallelRequests int           `yaml:"max_parallel_requests"`
	Exclude             []string      `yaml:"exclude"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	UserAgent           string        `yaml:"user_agent"`
	Retries             int           `yaml:"retries"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
	MaxBodyBytes        int64         `yaml:"max_body_bytes"`
	Insecure            bool          `yaml:"insecure"`
	Progress            *bool         `yaml:"progress"` // nil: show when stderr is a terminal
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxParallelRequests: defaultMaxParallelRequests,
		RequestTimeout:      defaultRequestTimeout,
		RetryDelay:          defaultRetryDelay,
		MaxBodyBytes:        defaultMaxBodyBytes,
	}
}

// Load reads the YAML file at path over the defaults. Keys missing from the
// file keep their default; unknown keys are an error. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.MaxParallelRequests < 1 {
		return fmt.Errorf("%w: max_parallel_requests must be at least 1, got %d", ErrInvalidConfig, c.MaxParallelRequests)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive, got %s", ErrInvalidConfig, c.RequestTimeout)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative, got %d", ErrInvalidConfig, c.Retries)
	}
	if c.Retries > 0 && c.RetryDelay <= 0 {
		return fmt.Errorf("%w: retry_delay must be positive when retries are enabled", ErrInvalidConfig)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max_body_bytes must be positive, got %d", ErrInvalidConfig, c.MaxBodyBytes)
	}
	return nil
}

// CrawlerConfig converts the settings into a crawler configuration.
func (c Config) CrawlerConfig(startURL string) crawler.Config {
	cfg := crawler.Config{
		StartURL:       startURL,
		Concurrency:    c.MaxParallelRequests,
		RequestTimeout: c.RequestTimeout,
		UserAgent:      c.UserAgent,
		Exclude:        c.Exclude,
		MaxBodyBytes:   c.MaxBodyBytes,
		Insecure:       c.Insecure,
	}
	if c.Retries > 0 {
		policy := crawler.DefaultRetryPolicy()
		policy.MaxRetries = c.Retries
		policy.BaseDelay = c.RetryDelay
		policy.MaxDelay = max(policy.MaxDelay, c.RetryDelay)
		cfg.RetryPolicy = policy
	}
	return cfg
}
