// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// CredentialUpdate describes the fields to change in a single atomic update.
// Nil fields are left untouched.
type CredentialUpdate struct {
	PasswordHash      *string
	PasswordChangedAt *time.Time
	Role              *Role
	Active            *bool

	// SetReset replaces the pending reset. ClearReset removes it.
	// Setting both is invalid; SetReset wins.
	SetReset   *PendingReset
	ClearReset bool

	// LoginFailures replaces the failure counter and lockout together.
	LoginFailures *LoginFailures
}

// LoginFailures is the throttling state written after a login attempt.
type LoginFailures struct {
	Count       int
	LockedUntil *time.Time
}

// Precondition guards an update. Zero-valued fields are not checked.
type Precondition struct {
	// Version must equal the stored record version.
	Version int64

	// ResetTokenHash must equal the digest of the stored pending reset.
	ResetTokenHash string
}

// Matches reports whether the credential satisfies the precondition.
func (p Precondition) Matches(c *UserCredential) bool {
	if p.Version != 0 && c.Version != p.Version {
		return false
	}
	if p.ResetTokenHash != "" {
		if c.PendingReset == nil || c.PendingReset.TokenHash != p.ResetTokenHash {
			return false
		}
	}
	return true
}

// Apply mutates c in place, bumping Version and UpdatedAt.
// Store implementations that hold records in memory use it directly.
func (u CredentialUpdate) Apply(c *UserCredential, now time.Time) {
	if u.PasswordHash != nil {
		c.PasswordHash = *u.PasswordHash
	}
	if u.PasswordChangedAt != nil {
		t := *u.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	if u.Role != nil {
		c.Role = *u.Role
	}
	if u.Active != nil {
		c.Active = *u.Active
	}
	switch {
	case u.SetReset != nil:
		r := *u.SetReset
		c.PendingReset = &r
	case u.ClearReset:
		c.PendingReset = nil
	}
	if u.LoginFailures != nil {
		c.FailedLogins = u.LoginFailures.Count
		c.LockedUntil = u.LoginFailures.LockedUntil
	}
	c.Version++
	c.UpdatedAt = now.UTC()
}

// CredentialStore is durable per-user record access.
//
// Implementations must make Update atomic with respect to its Precondition:
// of two concurrent updates guarded by the same precondition, at most one
// succeeds and the other returns ErrConcurrentModification.
type CredentialStore interface {
	// FindByID retrieves a credential by ID. Returns ErrNotFound if absent.
	FindByID(ctx context.Context, id ulid.ULID) (*UserCredential, error)

	// FindByEmail retrieves a credential by normalized email.
	// Returns ErrNotFound if absent.
	FindByEmail(ctx context.Context, email string) (*UserCredential, error)

	// FindByResetTokenHash retrieves the credential holding the given pending
	// reset digest, regardless of expiry. Returns ErrNotFound if absent.
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*UserCredential, error)

	// Insert stores a new credential. Returns ErrDuplicateEmail if the email is taken.
	Insert(ctx context.Context, cred *UserCredential) error

	// Update applies the update if the precondition holds.
	// Returns ErrNotFound or ErrConcurrentModification.
	Update(ctx context.Context, id ulid.ULID, update CredentialUpdate, pre Precondition) error

	// PurgeExpiredResets clears every pending reset that expired before now
	// and returns the number of credentials changed.
	PurgeExpiredResets(ctx context.Context, now time.Time) (int64, error)
}
