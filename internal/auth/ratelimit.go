// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"time"
)

// Login throttling configuration.
const (
	// LockoutDuration is the time an account is locked after too many failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of consecutive failures that triggers a lockout.
	LockoutThreshold = 7

	// CaptchaThreshold is the number of failures after which web clients should
	// require a CAPTCHA.
	CaptchaThreshold = 4
)

// RateLimitResult contains the result of a throttling check.
type RateLimitResult struct {
	// Delay is the time the client should wait before another attempt.
	Delay time.Duration

	// RequiresCaptcha indicates the web client should require CAPTCHA.
	RequiresCaptcha bool

	// IsLockedOut indicates the account is temporarily locked.
	IsLockedOut bool

	// LockoutRemaining is the time until the lockout expires.
	LockoutRemaining time.Duration
}

// CheckFailures evaluates the throttling state for a failure count at now.
// lockedUntil is the current lockout timestamp (nil if not locked).
func CheckFailures(failures int, lockedUntil *time.Time, now time.Time) RateLimitResult {
	result := RateLimitResult{}

	if IsLockedOut(lockedUntil, now) {
		result.IsLockedOut = true
		result.LockoutRemaining = lockedUntil.Sub(now)
		return result
	}

	// Progressive delay: 2^(failures-1) seconds, max 32s before lockout
	if failures > 0 && failures < LockoutThreshold {
		result.Delay = time.Duration(1<<(failures-1)) * time.Second
		if result.Delay > 32*time.Second {
			result.Delay = 32 * time.Second
		}
	}

	if failures >= CaptchaThreshold && failures < LockoutThreshold {
		result.RequiresCaptcha = true
	}

	if failures >= LockoutThreshold {
		result.IsLockedOut = true
		result.LockoutRemaining = LockoutDuration
	}

	return result
}

// IsLockedOut returns true if the lockout time is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// NextLoginFailures returns the throttling state to store after a failed
// attempt. Reaching LockoutThreshold locks the account and restarts the count.
func NextLoginFailures(current int, now time.Time) LoginFailures {
	failures := current + 1
	result := CheckFailures(failures, nil, now)
	if !result.IsLockedOut {
		return LoginFailures{Count: failures}
	}
	until := now.UTC().Add(result.LockoutRemaining)
	return LoginFailures{Count: 0, LockedUntil: &until}
}
