// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package config loads and validates keygate configuration from an optional
// YAML file layered under command-line flags.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Confirmation policy names accepted in configuration.
const (
	PolicyNone                  = "none"
	PolicyRequireConfirmedEmail = "requireConfirmedEmail"
)

// Server holds listen addresses.
type Server struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// Database holds the Postgres connection settings.
type Database struct {
	URL string `koanf:"url"`
}

// JWT holds access token signing settings.
type JWT struct {
	Secret                string `koanf:"secret"`
	Issuer                string `koanf:"issuer"`
	Audience              string `koanf:"audience"`
	AccessTokenTTLSeconds int    `koanf:"access_token_ttl_seconds"`
}

// Sessions holds session and refresh token lifetime settings. Zero values
// fall back to defaults rather than disabling expiry.
type Sessions struct {
	LifetimeSeconds           int    `koanf:"lifetime_seconds"`
	RefreshIdleTimeoutSeconds int    `koanf:"refresh_idle_timeout_seconds"`
	ConfirmationPolicy        string `koanf:"confirmation_policy"`
}

// RateLimit holds password grant rate limiter settings. Any value at or
// below zero disables the limiter.
type RateLimit struct {
	MaxAttempts   int `koanf:"max_attempts"`
	WindowSeconds int `koanf:"window_seconds"`
	BlockSeconds  int `koanf:"block_seconds"`
}

// Routes toggles individual HTTP endpoints.
type Routes struct {
	Token  bool `koanf:"token"`
	Me     bool `koanf:"me"`
	Logout bool `koanf:"logout"`
}

// Log holds logging settings.
type Log struct {
	Format string `koanf:"format"`
}

// Config is the full keygate configuration.
type Config struct {
	Server    Server    `koanf:"server"`
	Database  Database  `koanf:"database"`
	JWT       JWT       `koanf:"jwt"`
	Sessions  Sessions  `koanf:"sessions"`
	RateLimit RateLimit `koanf:"rate_limit"`
	Routes    Routes    `koanf:"routes"`
	Log       Log       `koanf:"log"`
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:  ":8080",
			MetricsAddr: ":9090",
		},
		JWT: JWT{
			Issuer:                "keygate",
			Audience:              "authenticated",
			AccessTokenTTLSeconds: 3600,
		},
		Sessions: Sessions{
			LifetimeSeconds:           2592000,
			RefreshIdleTimeoutSeconds: 2592000,
			ConfirmationPolicy:        PolicyRequireConfirmedEmail,
		},
		RateLimit: RateLimit{
			MaxAttempts:   10,
			WindowSeconds: 60,
			BlockSeconds:  300,
		},
		Routes: Routes{
			Token:  true,
			Me:     true,
			Logout: true,
		},
		Log: Log{
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and an
// optional flag set, in that order of precedence (flags win).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.
				Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrapf(err, "loading config file")
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.
				Code("CONFIG_LOAD_FAILED").
				Wrapf(err, "loading flags")
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.
			Code("CONFIG_LOAD_FAILED").
			Wrapf(err, "unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.listen_addr must be set")
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url must be set")
	}
	if len(c.JWT.Secret) < 32 {
		return oops.
			Code("CONFIG_INVALID").
			With("length", len(c.JWT.Secret)).
			Errorf("jwt.secret must be at least 32 bytes")
	}
	if c.JWT.AccessTokenTTLSeconds <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("jwt.access_token_ttl_seconds must be positive")
	}
	switch c.Sessions.ConfirmationPolicy {
	case PolicyNone, PolicyRequireConfirmedEmail:
	default:
		return oops.
			Code("CONFIG_INVALID").
			With("policy", c.Sessions.ConfirmationPolicy).
			Errorf("sessions.confirmation_policy must be %q or %q", PolicyNone, PolicyRequireConfirmedEmail)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.
			Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("log.format must be json or text")
	}
	return nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenTTLSeconds) * time.Second
}

// SessionLifetime returns the configured session lifetime, falling back to
// the default when unset.
func (c Config) SessionLifetime() time.Duration {
	if c.Sessions.LifetimeSeconds <= 0 {
		return time.Duration(Default().Sessions.LifetimeSeconds) * time.Second
	}
	return time.Duration(c.Sessions.LifetimeSeconds) * time.Second
}

// RefreshIdleTimeout returns the configured refresh token idle timeout,
// falling back to the default when unset.
func (c Config) RefreshIdleTimeout() time.Duration {
	if c.Sessions.RefreshIdleTimeoutSeconds <= 0 {
		return time.Duration(Default().Sessions.RefreshIdleTimeoutSeconds) * time.Second
	}
	return time.Duration(c.Sessions.RefreshIdleTimeoutSeconds) * time.Second
}

// RegisterFlags attaches configuration override flags to fs. Flag names use
// the same dotted keys as the YAML file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("server.listen_addr", d.Server.ListenAddr, "HTTP listen address")
	fs.String("server.metrics_addr", d.Server.MetricsAddr, "metrics listen address")
	fs.String("database.url", "", "Postgres connection URL")
	fs.String("jwt.secret", "", "access token signing secret")
	fs.String("jwt.issuer", d.JWT.Issuer, "access token issuer claim")
	fs.String("jwt.audience", d.JWT.Audience, "access token audience claim")
	fs.Int("jwt.access_token_ttl_seconds", d.JWT.AccessTokenTTLSeconds, "access token lifetime in seconds")
	fs.String("log.format", d.Log.Format, "log format (json or text)")
}
