// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes      = 32               // 32 bytes = 64 hex chars
	DefaultResetTokenTTL = 10 * time.Minute // 10 minute expiry
)

// PendingReset is an issued, not yet redeemed password reset.
// Only the digest of the token is kept.
type PendingReset struct {
	TokenHash string
	ExpiresAt time.Time
}

// IsExpiredAt returns true if the reset would be expired at the given time.
func (r *PendingReset) IsExpiredAt(t time.Time) bool {
	return !r.ExpiresAt.After(t)
}

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the user; the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").
			With("requested_bytes", ResetTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken computes the SHA256 hash of a reset token.
// The digest is used for lookup equality only.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
