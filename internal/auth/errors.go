// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"errors"

	"github.com/trailhead/trailhead/pkg/errutil"
)

// Sentinel errors shared with CredentialStore implementations.
// They are plain errors so that errors.Is matches them exactly.
var (
	// ErrNotFound is returned when a requested credential does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by CredentialStore.Insert when the email is taken.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrConcurrentModification is returned by CredentialStore.Update when the
	// precondition no longer matches the stored record.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrDeliveryFailed is wrapped by RESET_DELIVERY_FAILED errors.
	ErrDeliveryFailed = errors.New("email delivery failed")
)

// Validation error codes. Always recoverable; safe to show to the caller.
const (
	CodeInvalidEmail     = "AUTH_INVALID_EMAIL"
	CodePasswordTooShort = "AUTH_PASSWORD_TOO_SHORT"
	CodePasswordMismatch = "AUTH_PASSWORD_MISMATCH"
	CodeEmailTaken       = "AUTH_EMAIL_TAKEN"
	CodeEmptyPassword    = "AUTH_EMPTY_PASSWORD"
	CodeInvalidRole      = "AUTH_INVALID_ROLE"
)

// Authentication and authorization error codes.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeStaleToken         = "AUTH_STALE_TOKEN"
	CodeUserGone           = "AUTH_USER_GONE"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeConflict           = "AUTH_CONFLICT"
)

// Token error codes.
const (
	CodeTokenMalformed = "TOKEN_MALFORMED"
	CodeTokenExpired   = "TOKEN_EXPIRED"
)

// Password reset error codes.
const (
	CodeResetInvalidOrExpired = "RESET_INVALID_OR_EXPIRED"
	CodeResetUserNotFound     = "RESET_USER_NOT_FOUND"
	CodeResetDeliveryFailed   = "RESET_DELIVERY_FAILED"
)

var validationCodes = map[string]bool{
	CodeInvalidEmail:     true,
	CodePasswordTooShort: true,
	CodePasswordMismatch: true,
	CodeEmailTaken:       true,
	CodeEmptyPassword:    true,
	CodeInvalidRole:      true,
}

var reauthenticateCodes = map[string]bool{
	CodeStaleToken:     true,
	CodeUserGone:       true,
	CodeTokenMalformed: true,
	CodeTokenExpired:   true,
}

// ErrorCode returns the oops code carried by err, or "" if there is none.
func ErrorCode(err error) string {
	return errutil.Code(err)
}

// IsValidation reports whether err is a ValidationError (malformed input).
func IsValidation(err error) bool {
	return validationCodes[ErrorCode(err)]
}

// IsReauthenticate reports whether the caller should obtain a fresh token.
func IsReauthenticate(err error) bool {
	return reauthenticateCodes[ErrorCode(err)]
}

// IsRetryable reports whether the same request may succeed if retried later.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case CodeResetDeliveryFailed, CodeConflict:
		return true
	}
	return false
}
