// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Config holds the settings consumed by the authentication core.
type Config struct {
	TokenSecret       string        `koanf:"token_secret" json:"token_secret,omitempty" jsonschema:"minLength=32"`
	TokenTTL          time.Duration `koanf:"token_ttl" json:"token_ttl,omitempty" jsonschema:"type=string,description=Go duration such as 2160h"`
	ResetTokenTTL     time.Duration `koanf:"reset_token_ttl" json:"reset_token_ttl,omitempty" jsonschema:"type=string,description=Go duration such as 10m"`
	MinPasswordLength int           `koanf:"min_password_length" json:"min_password_length,omitempty" jsonschema:"minimum=1"`
	Hash              HashParams    `koanf:"hash" json:"hash,omitempty"`
}

// DefaultConfig returns the defaults for everything except TokenSecret.
func DefaultConfig() Config {
	return Config{
		TokenTTL:          DefaultTokenTTL,
		ResetTokenTTL:     DefaultResetTokenTTL,
		MinPasswordLength: DefaultMinPasswordLength,
		Hash:              DefaultHashParams(),
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if len(c.TokenSecret) < MinTokenSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("field", "token_secret").
			Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}
	if c.TokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("field", "token_ttl").
			Errorf("token TTL must be positive")
	}
	if c.ResetTokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("field", "reset_token_ttl").
			Errorf("reset token TTL must be positive")
	}
	if c.MinPasswordLength < 1 {
		return oops.Code("CONFIG_INVALID").
			With("field", "min_password_length").
			Errorf("minimum password length must be positive")
	}
	if err := c.Hash.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "hash").Wrap(err)
	}
	return nil
}
