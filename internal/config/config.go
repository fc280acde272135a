// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package config loads the accountd server configuration.
//
// Sources are layered, later ones overriding earlier ones:
//
//  1. built-in defaults
//  2. an optional YAML file
//  3. a .env file, which only fills variables not already in the environment
//  4. environment variables: ACCOUNTD_<KEY>, plus PORT, MONGO_URI, DATABASE_URL,
//     REDIS_URL and EXPRESS_APP_JWT_SECRET_KEY for existing deployments
//  5. command-line flags that were explicitly set
//
// The resulting Config is built once at startup and passed explicitly.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/userauth/accountd/internal/logging"
)

// EnvPrefix prefixes every accountd environment variable.
const EnvPrefix = "ACCOUNTD_"

// DefaultEnvFile is read when present; its absence is not an error.
const DefaultEnvFile = ".env"

// Config is the complete server configuration.
type Config struct {
	ListenAddr      string        `koanf:"listen_addr"`
	DatabaseURL     string        `koanf:"database_url"`
	DatabaseName    string        `koanf:"database_name"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	JWTSecret       string        `koanf:"jwt_secret"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	BcryptCost      int           `koanf:"bcrypt_cost"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	LogFormat       string        `koanf:"log_format"`
	LogLevel        string        `koanf:"log_level"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RedisURL        string        `koanf:"redis_url"`
	ProfileCacheTTL time.Duration `koanf:"profile_cache_ttl"`
	ExposeErrors    bool          `koanf:"expose_errors"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Default returns the configuration used when no source sets a key.
func Default() Config {
	return Config{
		ListenAddr:      ":9000",
		DatabaseName:    "accountd",
		AutoMigrate:     true,
		ConnectTimeout:  30 * time.Second,
		TokenTTL:        24 * time.Hour,
		BcryptCost:      bcrypt.DefaultCost,
		MetricsAddr:     "127.0.0.1:9100",
		LogFormat:       "json",
		LogLevel:        "info",
		CORSOrigins:     []string{"*"},
		ProfileCacheTTL: 5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// legacyEnv maps unprefixed variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"PORT":                       "listen_addr",
	"MONGO_URI":                  "database_url",
	"DATABASE_URL":               "database_url",
	"REDIS_URL":                  "redis_url",
	"EXPRESS_APP_JWT_SECRET_KEY": "jwt_secret",
}

// RegisterFlags defines a flag for every key on fs, defaulting to Default().
// Flag names use dashes in place of underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("listen-addr", d.ListenAddr, "HTTP API listen address")
	fs.String("database-url", d.DatabaseURL, "credential store URL (postgres://, mongodb://, memory://)")
	fs.String("database-name", d.DatabaseName, "mongo database name")
	fs.Bool("auto-migrate", d.AutoMigrate, "apply migrations and indexes on startup")
	fs.Duration("connect-timeout", d.ConnectTimeout, "how long to wait for the store at startup")
	fs.String("jwt-secret", d.JWTSecret, "HS256 signing secret")
	fs.Duration("token-ttl", d.TokenTTL, "session token lifetime")
	fs.Int("bcrypt-cost", d.BcryptCost, "bcrypt work factor")
	fs.String("metrics-addr", d.MetricsAddr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.StringSlice("cors-origins", d.CORSOrigins, "allowed CORS origins")
	fs.String("redis-url", d.RedisURL, "redis URL for the profile cache (empty disables)")
	fs.Duration("profile-cache-ttl", d.ProfileCacheTTL, "profile cache entry lifetime")
	fs.Bool("expose-errors", d.ExposeErrors, "include error detail in 500 responses")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "graceful shutdown drain timeout")
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an optional YAML file. Empty skips it.
	ConfigFile string
	// EnvFile is a dotenv file. Empty selects DefaultEnvFile; "-" disables.
	EnvFile string
	// Flags, when set, supplies flag overrides registered by RegisterFlags.
	Flags *pflag.FlagSet
}

// Load builds a Config from defaults and the sources in opts.
// It does not validate; call Validate before use.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", opts.ConfigFile).
				Wrap(err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if envFile != "-" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "dotenv").
				With("path", envFile).
				Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyValue), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", prefixedValue), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

func legacyValue(key, value string) (string, any) {
	target, ok := legacyEnv[key]
	if !ok || value == "" {
		return "", nil
	}
	if key == "PORT" && !strings.Contains(value, ":") {
		value = ":" + value
	}
	return target, value
}

func prefixedValue(key, value string) (string, any) {
	name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if name == "cors_origins" {
		return name, splitList(value)
	}
	return name, value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	switch {
	case c.JWTSecret == "":
		return invalid("jwt_secret", "jwt secret is required")
	case c.DatabaseURL == "":
		return invalid("database_url", "database url is required")
	case c.ListenAddr == "":
		return invalid("listen_addr", "listen address is required")
	case c.TokenTTL <= 0:
		return invalid("token_ttl", "token ttl must be positive, got %s", c.TokenTTL)
	case c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost:
		return invalid("bcrypt_cost", "bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	case !logging.ValidFormat(c.LogFormat):
		return invalid("log_format", "log format must be json or text, got %q", c.LogFormat)
	case c.ShutdownTimeout <= 0:
		return invalid("shutdown_timeout", "shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	case c.ConnectTimeout <= 0:
		return invalid("connect_timeout", "connect timeout must be positive, got %s", c.ConnectTimeout)
	case c.RedisURL != "" && c.ProfileCacheTTL <= 0:
		return invalid("profile_cache_ttl", "profile cache ttl must be positive, got %s", c.ProfileCacheTTL)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log_level").Wrap(err)
	}
	return nil
}
