// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package config loads Trailhead configuration from defaults, a YAML file,
// TRAILHEAD_* environment variables and command-line flags, in that order.
package config

import (
	"time"

	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/logging"
	"github.com/trailhead/trailhead/internal/mail"
	"github.com/trailhead/trailhead/internal/store"
)

// Config is the complete service configuration.
type Config struct {
	Database store.PoolConfig `koanf:"database" json:"database,omitempty"`
	Auth     auth.Config      `koanf:"auth" json:"auth,omitempty"`
	Mail     mail.Config      `koanf:"mail" json:"mail,omitempty"`
	Log      logging.Config   `koanf:"log" json:"log,omitempty"`
	Janitor  JanitorConfig    `koanf:"janitor" json:"janitor,omitempty"`
}

// JanitorConfig configures the background purge daemon.
type JanitorConfig struct {
	Interval    time.Duration `koanf:"interval" json:"interval,omitempty" jsonschema:"type=string,description=Go duration such as 5m"`
	MetricsAddr string        `koanf:"metrics_addr" json:"metrics_addr,omitempty"`
}

// Default returns the built-in configuration. Auth.TokenSecret has no default.
func Default() Config {
	return Config{
		Database: store.DefaultPoolConfig(),
		Auth:     auth.DefaultConfig(),
		Mail:     mail.DefaultConfig(),
		Log:      logging.DefaultConfig(),
		Janitor: JanitorConfig{
			Interval:    5 * time.Minute,
			MetricsAddr: "127.0.0.1:9100",
		},
	}
}

// defaults flattens Default into koanf keys. Durations are rendered as
// strings so the YAML dump reads the way a user would write them.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"database.max_conns":         d.Database.MaxConns,
		"database.max_conn_lifetime": d.Database.MaxConnLifetime.String(),
		"database.connect_timeout":   d.Database.ConnectTimeout.String(),
		"auth.token_ttl":             d.Auth.TokenTTL.String(),
		"auth.reset_token_ttl":       d.Auth.ResetTokenTTL.String(),
		"auth.min_password_length":   d.Auth.MinPasswordLength,
		"auth.hash.time":             d.Auth.Hash.Time,
		"auth.hash.memory":           d.Auth.Hash.Memory,
		"auth.hash.threads":          d.Auth.Hash.Threads,
		"mail.port":                  d.Mail.Port,
		"mail.from":                  d.Mail.From,
		"log.format":                 d.Log.Format,
		"log.level":                  d.Log.Level,
		"janitor.interval":           d.Janitor.Interval.String(),
		"janitor.metrics_addr":       d.Janitor.MetricsAddr,
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Mail.Validate(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "log.level").Wrap(err)
	}
	if c.Janitor.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("field", "janitor.interval").
			Errorf("janitor interval must be positive")
	}
	return nil
}

// RequireDatabase checks that a database URL is configured.
func (c Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "database.url").
			Errorf("database url is required (set database.url, TRAILHEAD_DATABASE__URL or --database-url)")
	}
	return nil
}
