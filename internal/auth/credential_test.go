// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/pkg/errutil"
)

func TestNewUserCredential(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("normalizes email and applies defaults", func(t *testing.T) {
		cred, err := auth.NewUserCredential("  Alice@Example.COM ", "$argon2id$x", now)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", cred.Email)
		assert.Equal(t, auth.RoleUser, cred.Role)
		assert.True(t, cred.Active)
		assert.Equal(t, int64(1), cred.Version)
		assert.Nil(t, cred.PasswordChangedAt)
		assert.Nil(t, cred.PendingReset)
		assert.Equal(t, now, cred.CreatedAt)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := auth.NewUserCredential("nope", "$argon2id$x", now)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidEmail)
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		_, err := auth.NewUserCredential("a@b.io", "", now)
		errutil.AssertErrorCode(t, err, "CREDENTIAL_INVALID_HASH")
	})
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"a@b.io", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"plainaddress", false},
		{"@example.com", false},
		{"user@", false},
		{"user@localhost", false},
		{"user@.example.com", false},
		{"user@example.com.", false},
		{"Alice <alice@example.com>", false},
		{strings.Repeat("a", 250) + "@b.io", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, auth.CodeInvalidEmail)
			assert.True(t, auth.IsValidation(err))
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		code     string
	}{
		{"valid", "correct-horse", "correct-horse", ""},
		{"exactly minimum", "12345678", "12345678", ""},
		{"empty", "", "", auth.CodeEmptyPassword},
		{"too short", "1234567", "1234567", auth.CodePasswordTooShort},
		{"length counts characters not bytes", "ééééééé", "ééééééé", auth.CodePasswordTooShort},
		{"mismatch", "correct-horse", "correct-horsf", auth.CodePasswordMismatch},
		{"too short wins over mismatch", "short", "other", auth.CodePasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password, tt.confirm, auth.DefaultMinPasswordLength)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestUserCredential_ChangedPasswordAfter(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("never changed", func(t *testing.T) {
		c := &auth.UserCredential{}
		assert.False(t, c.ChangedPasswordAfter(issued))
	})

	t.Run("changed before issue", func(t *testing.T) {
		changed := issued.Add(-time.Second)
		c := &auth.UserCredential{PasswordChangedAt: &changed}
		assert.False(t, c.ChangedPasswordAfter(issued))
	})

	t.Run("changed in the same second", func(t *testing.T) {
		changed := issued.Add(900 * time.Millisecond)
		c := &auth.UserCredential{PasswordChangedAt: &changed}
		assert.False(t, c.ChangedPasswordAfter(issued))
	})

	t.Run("changed after issue", func(t *testing.T) {
		changed := issued.Add(time.Second)
		c := &auth.UserCredential{PasswordChangedAt: &changed}
		assert.True(t, c.ChangedPasswordAfter(issued))
	})
}

func TestUserCredential_PublicOmitsSecrets(t *testing.T) {
	cred, err := auth.NewUserCredential("a@b.io", "$argon2id$secret-digest", time.Now())
	require.NoError(t, err)
	cred.PendingReset = &auth.PendingReset{TokenHash: "reset-digest", ExpiresAt: time.Now()}

	for _, v := range []any{cred, cred.Public()} {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "secret-digest")
		assert.NotContains(t, string(data), "reset-digest")
	}
}

func TestSignupInput_IgnoresRole(t *testing.T) {
	var in auth.SignupInput
	err := json.Unmarshal([]byte(`{"email":"a@b.io","password":"p","passwordConfirm":"p","role":"admin"}`), &in)
	require.NoError(t, err)
	assert.Equal(t, auth.SignupInput{Email: "a@b.io", Password: "p", PasswordConfirm: "p"}, in)
}

func TestRoles(t *testing.T) {
	for _, r := range auth.Roles() {
		parsed, err := auth.ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	_, err := auth.ParseRole("superuser")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidRole)
	assert.Equal(t, auth.RoleUser, auth.DefaultRole)
}
