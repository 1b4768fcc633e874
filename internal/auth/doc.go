// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package auth provides the authentication core for Trailhead.
//
// # Domain Types
//
// UserCredential is the stored identity record. New records should be
// created with NewUserCredential, which normalizes and validates the email
// and assigns DefaultRole. Persistence goes through the CredentialStore
// interface; updates are expressed as a CredentialUpdate guarded by a
// Precondition so that stores can apply them atomically.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - signup, login, password change, account administration
//   - ResetTokenManager - issue, email, redeem and purge password resets
//   - Guard - bearer token authentication and role authorization
//
// They are created with New* constructors that validate dependencies.
// PasswordHasher and TokenCodec perform no I/O and are safe for concurrent use.
//
// # Errors
//
// Every outcome error carries an oops code (see the Code* constants).
// ErrorCode extracts it; IsValidation, IsReauthenticate and IsRetryable
// group codes by how a caller should react.
package auth
