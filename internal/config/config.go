// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package config loads Keygate configuration from defaults, an optional
// YAML file and command-line flags, in increasing precedence.
package config

import (
	"time"

	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/logging"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Captcha providers.
const (
	ProviderRecaptcha = "recaptcha"
	ProviderHCaptcha  = "hcaptcha"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Store    StoreConfig    `koanf:"store"`
	Auth     AuthConfig     `koanf:"auth"`
	Captcha  CaptchaConfig  `koanf:"captcha"`
	Sweep    SweepConfig    `koanf:"sweep"`
}

// ServerConfig configures the API listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	TLSCertFile     string        `koanf:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file"`
}

// TLSEnabled reports whether the API is served over HTTPS.
func (c ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// RedisConfig configures Redis.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// StoreConfig selects where session tokens live.
type StoreConfig struct {
	Backend string `koanf:"backend"`
}

// AuthConfig configures the token policy.
type AuthConfig struct {
	TokenTTL  time.Duration `koanf:"token_ttl"`
	MaxTokens int           `koanf:"max_tokens"`
}

// TokenPolicy returns the auth.TokenPolicy described by c.
func (c AuthConfig) TokenPolicy() auth.TokenPolicy {
	return auth.TokenPolicy{TTL: c.TokenTTL, MaxTokens: c.MaxTokens}
}

// CaptchaConfig configures the register and login captcha gate.
type CaptchaConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Provider string        `koanf:"provider"`
	Secret   string        `koanf:"secret"`
	Timeout  time.Duration `koanf:"timeout"`
}

// SweepConfig configures the expired token sweeper.
type SweepConfig struct {
	Interval  time.Duration `koanf:"interval"`
	BatchSize int           `koanf:"batch_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Store:   StoreConfig{Backend: BackendPostgres},
		Auth:    AuthConfig{TokenTTL: auth.DefaultTokenTTL, MaxTokens: auth.DefaultMaxTokens},
		Captcha: CaptchaConfig{Provider: ProviderRecaptcha, Timeout: 5 * time.Second},
		Sweep:   SweepConfig{Interval: time.Hour, BatchSize: 500},
	}
}

// NeedsDatabase reports whether the configured backends use PostgreSQL.
// Users always live there unless everything is in memory.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend != BackendMemory
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(key string, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.Server.Addr == "" {
		return invalid("server.addr", "server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", "server.shutdown_timeout must be positive")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return invalid("server.tls_key_file", "server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}

	switch c.Store.Backend {
	case BackendPostgres, BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return invalid("redis.url", "redis.url (or REDIS_URL) is required for the redis backend")
		}
	default:
		return invalid("store.backend", "store.backend must be postgres, redis or memory, got %q", c.Store.Backend)
	}
	if c.NeedsDatabase() && c.Database.URL == "" {
		return invalid("database.url", "database.url (or DATABASE_URL) is required")
	}

	if err := c.Auth.TokenPolicy().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "auth").Wrap(err)
	}

	if c.Captcha.Enabled {
		if c.Captcha.Provider != ProviderRecaptcha && c.Captcha.Provider != ProviderHCaptcha {
			return invalid("captcha.provider", "captcha.provider must be recaptcha or hcaptcha, got %q", c.Captcha.Provider)
		}
		if c.Captcha.Secret == "" {
			return invalid("captcha.secret", "captcha.secret is required when captcha is enabled")
		}
		if c.Captcha.Timeout <= 0 {
			return invalid("captcha.timeout", "captcha.timeout must be positive")
		}
	}

	if c.Sweep.Interval <= 0 {
		return invalid("sweep.interval", "sweep.interval must be positive")
	}
	if c.Sweep.BatchSize <= 0 {
		return invalid("sweep.batch_size", "sweep.batch_size must be positive")
	}
	return nil
}
