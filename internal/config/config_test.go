// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/pkg/errutil"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
store:
  backend: redis
redis:
  url: redis://localhost:6379/0
auth:
  token_ttl: 90m
  max_tokens: 3
captcha:
  enabled: true
  provider: hcaptcha
  secret: s3cret
sweep:
  batch_size: 50
`)

	cfg, err := Load(path, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 3, cfg.Auth.MaxTokens)
	assert.True(t, cfg.Captcha.Enabled)
	assert.Equal(t, ProviderHCaptcha, cfg.Captcha.Provider)
	assert.Equal(t, "s3cret", cfg.Captcha.Secret)
	assert.Equal(t, 5*time.Second, cfg.Captcha.Timeout, "untouched keys keep defaults")
	assert.Equal(t, 50, cfg.Sweep.BatchSize)
	assert.Equal(t, time.Hour, cfg.Sweep.Interval)
}

func TestLoad_ChangedFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
auth:
  max_tokens: 3
`)
	fs := newFlags(t, "--max-tokens=7", "--token-ttl=2h", "--log-format=text")

	cfg, err := Load(path, fs, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr, "unchanged flag must not clobber the file")
	assert.Equal(t, 7, cfg.Auth.MaxTokens)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_UnknownFlagsIgnored(t *testing.T) {
	fs := newFlags(t)
	fs.Bool("dry-run", false, "")
	require.NoError(t, fs.Set("dry-run", "true"))

	cfg, err := Load("", fs, nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoad_EnvFallbacks(t *testing.T) {
	vars := map[string]string{
		"DATABASE_URL":   "postgres://env/db",
		"REDIS_URL":      "redis://env:6379",
		"CAPTCHA_SECRET": "from-env",
	}

	cfg, err := Load("", nil, env(vars))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "redis://env:6379", cfg.Redis.URL)
	assert.Equal(t, "from-env", cfg.Captcha.Secret)

	fs := newFlags(t, "--database-url=postgres://flag/db")
	cfg, err = Load("", fs, env(vars))
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", cfg.Database.URL, "explicit configuration wins over env")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "auth:\n  token_ttl: forever\n")
	_, err := Load(path, nil, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_DECODE_FAILED")
}

func validConfig() Config {
	c := Default()
	c.Database.URL = "postgres://localhost/keygate"
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode string
		wantKey  string
	}{
		{"defaults with database", func(*Config) {}, "", ""},
		{"memory needs no database", func(c *Config) { c.Database.URL = ""; c.Store.Backend = BackendMemory }, "", ""},
		{"missing database", func(c *Config) { c.Database.URL = "" }, "CONFIG_INVALID", "database.url"},
		{"redis without url", func(c *Config) { c.Store.Backend = BackendRedis }, "CONFIG_INVALID", "redis.url"},
		{"redis with url", func(c *Config) { c.Store.Backend = BackendRedis; c.Redis.URL = "redis://x" }, "", ""},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mysql" }, "CONFIG_INVALID", "store.backend"},
		{"empty server addr", func(c *Config) { c.Server.Addr = "" }, "CONFIG_INVALID", "server.addr"},
		{"tls cert without key", func(c *Config) { c.Server.TLSCertFile = "a.crt" }, "CONFIG_INVALID", "server.tls_key_file"},
		{"tls key without cert", func(c *Config) { c.Server.TLSKeyFile = "a.key" }, "CONFIG_INVALID", "server.tls_key_file"},
		{"tls pair", func(c *Config) { c.Server.TLSCertFile = "a.crt"; c.Server.TLSKeyFile = "a.key" }, "", ""},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "CONFIG_INVALID", "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "LOG_INVALID_LEVEL", "log.level"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "TOKEN_POLICY_INVALID", "auth"},
		{"zero max tokens", func(c *Config) { c.Auth.MaxTokens = 0 }, "TOKEN_POLICY_INVALID", "auth"},
		{"captcha without secret", func(c *Config) { c.Captcha.Enabled = true }, "CONFIG_INVALID", "captcha.secret"},
		{"captcha bad provider", func(c *Config) {
			c.Captcha.Enabled = true
			c.Captcha.Secret = "s"
			c.Captcha.Provider = "turnstile"
		}, "CONFIG_INVALID", "captcha.provider"},
		{"captcha disabled ignores provider", func(c *Config) { c.Captcha.Provider = "turnstile" }, "", ""},
		{"zero sweep interval", func(c *Config) { c.Sweep.Interval = 0 }, "CONFIG_INVALID", "sweep.interval"},
		{"zero batch", func(c *Config) { c.Sweep.BatchSize = 0 }, "CONFIG_INVALID", "sweep.batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
			errutil.AssertErrorContext(t, err, "key", tt.wantKey)
		})
	}
}

func TestServerConfig_TLSEnabled(t *testing.T) {
	assert.False(t, ServerConfig{}.TLSEnabled())
	assert.False(t, ServerConfig{TLSCertFile: "a.crt"}.TLSEnabled())
	assert.True(t, ServerConfig{TLSCertFile: "a.crt", TLSKeyFile: "a.key"}.TLSEnabled())

	fs := newFlags(t, "--tls-cert-file=/etc/keygate/server.crt", "--tls-key-file=/etc/keygate/server.key")
	cfg, err := Load("", fs, nil)
	require.NoError(t, err)
	assert.True(t, cfg.Server.TLSEnabled())
	assert.Equal(t, "/etc/keygate/server.key", cfg.Server.TLSKeyFile)
}

func TestAuthConfig_TokenPolicy(t *testing.T) {
	p := AuthConfig{TokenTTL: time.Minute, MaxTokens: 2}.TokenPolicy()
	assert.Equal(t, time.Minute, p.TTL)
	assert.Equal(t, 2, p.MaxTokens)
}
