// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/pkg/errutil"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.Config)
		field  string
	}{
		{"valid", func(*auth.Config) {}, ""},
		{"missing secret", func(c *auth.Config) { c.TokenSecret = "" }, "token_secret"},
		{"short secret", func(c *auth.Config) { c.TokenSecret = "short" }, "token_secret"},
		{"zero token ttl", func(c *auth.Config) { c.TokenTTL = 0 }, "token_ttl"},
		{"negative reset ttl", func(c *auth.Config) { c.ResetTokenTTL = -1 }, "reset_token_ttl"},
		{"zero min password length", func(c *auth.Config) { c.MinPasswordLength = 0 }, "min_password_length"},
		{"bad hash params", func(c *auth.Config) { c.Hash.Threads = 0 }, "hash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := auth.DefaultConfig()
	assert.Equal(t, auth.DefaultTokenTTL, cfg.TokenTTL)
	assert.Equal(t, auth.DefaultResetTokenTTL, cfg.ResetTokenTTL)
	assert.Equal(t, auth.DefaultMinPasswordLength, cfg.MinPasswordLength)
	assert.Equal(t, auth.DefaultHashParams(), cfg.Hash)
	assert.Empty(t, cfg.TokenSecret, "secret has no default")
}
