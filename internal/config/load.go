// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"server-addr":      "server.addr",
	"shutdown-timeout": "server.shutdown_timeout",
	"tls-cert-file":    "server.tls_cert_file",
	"tls-key-file":     "server.tls_key_file",
	"metrics-addr":     "metrics.addr",
	"log-format":       "log.format",
	"log-level":        "log.level",
	"database-url":     "database.url",
	"redis-url":        "redis.url",
	"store-backend":    "store.backend",
	"token-ttl":        "auth.token_ttl",
	"max-tokens":       "auth.max_tokens",
	"captcha-enabled":  "captcha.enabled",
	"captcha-provider": "captcha.provider",
	"captcha-timeout":  "captcha.timeout",
	"sweep-interval":   "sweep.interval",
	"sweep-batch-size": "sweep.batch_size",
}

// envFallbacks fill keys left empty by the file and flags.
var envFallbacks = map[string]string{
	"database.url":   "DATABASE_URL",
	"redis.url":      "REDIS_URL",
	"captcha.secret": "CAPTCHA_SECRET",
}

// RegisterFlags adds the configuration flags to fs. Their defaults mirror
// Default so --help stays truthful.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("server-addr", d.Server.Addr, "API listen address")
	fs.Duration("shutdown-timeout", d.Server.ShutdownTimeout, "graceful shutdown timeout")
	fs.String("tls-cert-file", "", "PEM certificate for HTTPS (requires --tls-key-file)")
	fs.String("tls-key-file", "", "PEM private key for HTTPS (requires --tls-cert-file)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.String("redis-url", "", "Redis URL (default: $REDIS_URL)")
	fs.String("store-backend", d.Store.Backend, "session token store (postgres, redis or memory)")
	fs.Duration("token-ttl", d.Auth.TokenTTL, "session token lifetime")
	fs.Int("max-tokens", d.Auth.MaxTokens, "live session tokens allowed per user")
	fs.Bool("captcha-enabled", d.Captcha.Enabled, "require a captcha on register and login")
	fs.String("captcha-provider", d.Captcha.Provider, "captcha provider (recaptcha or hcaptcha)")
	fs.Duration("captcha-timeout", d.Captcha.Timeout, "captcha verification timeout")
	fs.Duration("sweep-interval", d.Sweep.Interval, "expired token sweep interval")
	fs.Int("sweep-batch-size", d.Sweep.BatchSize, "users swept per batch")
}

// Load builds a Config from defaults, the YAML file at path (optional),
// changed flags in fs (optional) and the environment fallbacks read through
// getenv. The result is not validated.
func Load(path string, fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	if getenv != nil {
		for key, env := range envFallbacks {
			if k.String(key) != "" {
				continue
			}
			if v := getenv(env); v != "" {
				if err := k.Set(key, v); err != nil {
					return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").With("env", env).Wrap(err)
				}
			}
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

func defaultMap() map[string]any {
	d := Default()
	return map[string]any{
		"server.addr":             d.Server.Addr,
		"server.shutdown_timeout": d.Server.ShutdownTimeout,
		"server.tls_cert_file":    d.Server.TLSCertFile,
		"server.tls_key_file":     d.Server.TLSKeyFile,
		"metrics.addr":            d.Metrics.Addr,
		"log.format":              d.Log.Format,
		"log.level":               d.Log.Level,
		"database.url":            d.Database.URL,
		"redis.url":               d.Redis.URL,
		"store.backend":           d.Store.Backend,
		"auth.token_ttl":          d.Auth.TokenTTL,
		"auth.max_tokens":         d.Auth.MaxTokens,
		"captcha.enabled":         d.Captcha.Enabled,
		"captcha.provider":        d.Captcha.Provider,
		"captcha.secret":          d.Captcha.Secret,
		"captcha.timeout":         d.Captcha.Timeout,
		"sweep.interval":          d.Sweep.Interval,
		"sweep.batch_size":        d.Sweep.BatchSize,
	}
}
