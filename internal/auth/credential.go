// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Credential validation constraints.
const (
	DefaultMinPasswordLength = 8
	MaxEmailLength           = 254
)

// UserCredential is the stored identity record for one account.
type UserCredential struct {
	ID                ulid.ULID
	Email             string
	PasswordHash      string `json:"-"`
	Role              Role
	PasswordChangedAt *time.Time
	PendingReset      *PendingReset `json:"-"`
	Active            bool
	FailedLogins      int
	LockedUntil       *time.Time
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PublicUser is the outward-facing view of a credential.
type PublicUser struct {
	ID                ulid.ULID  `json:"id"`
	Email             string     `json:"email"`
	Role              Role       `json:"role"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// NewUserCredential creates a validated, active credential with the default role.
// The email is normalized before validation.
func NewUserCredential(email, passwordHash string, now time.Time) (*UserCredential, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("CREDENTIAL_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now = now.UTC()
	return &UserCredential{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         DefaultRole,
		Active:       true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Public returns the credential without any secret material.
func (c *UserCredential) Public() PublicUser {
	return PublicUser{
		ID:                c.ID,
		Email:             c.Email,
		Role:              c.Role,
		PasswordChangedAt: c.PasswordChangedAt,
		CreatedAt:         c.CreatedAt,
	}
}

// IsLockedAt returns true if the account is locked out at the given time.
func (c *UserCredential) IsLockedAt(t time.Time) bool {
	return IsLockedOut(c.LockedUntil, t)
}

// ChangedPasswordAfter reports whether the password was changed after issuedAt.
// Both sides are compared in whole seconds, matching token precision.
func (c *UserCredential) ChangedPasswordAfter(issuedAt time.Time) bool {
	if c.PasswordChangedAt == nil {
		return false
	}
	return c.PasswordChangedAt.Unix() > issuedAt.Unix()
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address with a dotted domain.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidEmail).Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeInvalidEmail).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return oops.Code(CodeInvalidEmail).Errorf("please provide a valid email")
	}

	domain := email[strings.LastIndex(email, "@")+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return oops.Code(CodeInvalidEmail).Errorf("please provide a valid email")
	}
	return nil
}

// ValidatePassword checks a new password and its confirmation.
func ValidatePassword(password, confirm string, minLength int) error {
	if password == "" {
		return oops.Code(CodeEmptyPassword).Errorf("password cannot be empty")
	}
	if utf8.RuneCountInString(password) < minLength {
		return oops.Code(CodePasswordTooShort).
			With("min", minLength).
			Errorf("password must be at least %d characters", minLength)
	}
	if password != confirm {
		return oops.Code(CodePasswordMismatch).Errorf("passwords are not the same")
	}
	return nil
}
