// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhead/trailhead/internal/auth"
)

var rateLimitNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRateLimiter_CheckFailures(t *testing.T) {
	t.Run("no failures returns no delay", func(t *testing.T) {
		result := auth.CheckFailures(0, nil, rateLimitNow)
		assert.Zero(t, result.Delay)
		assert.False(t, result.RequiresCaptcha)
		assert.False(t, result.IsLockedOut)
	})

	t.Run("1-3 failures returns progressive delay", func(t *testing.T) {
		assert.Equal(t, time.Second, auth.CheckFailures(1, nil, rateLimitNow).Delay)
		assert.Equal(t, 2*time.Second, auth.CheckFailures(2, nil, rateLimitNow).Delay)
		assert.Equal(t, 4*time.Second, auth.CheckFailures(3, nil, rateLimitNow).Delay)
		assert.False(t, auth.CheckFailures(3, nil, rateLimitNow).RequiresCaptcha)
	})

	t.Run("4-6 failures requires captcha", func(t *testing.T) {
		result4 := auth.CheckFailures(4, nil, rateLimitNow)
		assert.True(t, result4.RequiresCaptcha)
		assert.Equal(t, 8*time.Second, result4.Delay)

		result6 := auth.CheckFailures(6, nil, rateLimitNow)
		assert.True(t, result6.RequiresCaptcha)
		assert.Equal(t, 32*time.Second, result6.Delay)
	})

	t.Run("7+ failures causes lockout", func(t *testing.T) {
		result := auth.CheckFailures(7, nil, rateLimitNow)
		assert.True(t, result.IsLockedOut)
		assert.Equal(t, auth.LockoutDuration, result.LockoutRemaining)
	})

	t.Run("existing lockout is measured from now", func(t *testing.T) {
		until := rateLimitNow.Add(10 * time.Minute)
		result := auth.CheckFailures(0, &until, rateLimitNow)
		assert.True(t, result.IsLockedOut)
		assert.Equal(t, 10*time.Minute, result.LockoutRemaining)
	})
}

func TestRateLimiter_IsLockedOut(t *testing.T) {
	t.Run("nil locked_until means not locked", func(t *testing.T) {
		assert.False(t, auth.IsLockedOut(nil, rateLimitNow))
	})

	t.Run("past locked_until means not locked", func(t *testing.T) {
		past := rateLimitNow.Add(-time.Hour)
		assert.False(t, auth.IsLockedOut(&past, rateLimitNow))
	})

	t.Run("locked_until equal to now means not locked", func(t *testing.T) {
		assert.False(t, auth.IsLockedOut(&rateLimitNow, rateLimitNow))
	})

	t.Run("future locked_until means locked", func(t *testing.T) {
		future := rateLimitNow.Add(time.Hour)
		assert.True(t, auth.IsLockedOut(&future, rateLimitNow))
	})
}

func TestRateLimiter_NextLoginFailures(t *testing.T) {
	t.Run("below threshold increments the count", func(t *testing.T) {
		next := auth.NextLoginFailures(2, rateLimitNow)
		assert.Equal(t, 3, next.Count)
		assert.Nil(t, next.LockedUntil)
	})

	t.Run("reaching threshold locks and restarts the count", func(t *testing.T) {
		next := auth.NextLoginFailures(auth.LockoutThreshold-1, rateLimitNow)
		assert.Equal(t, 0, next.Count)
		require.NotNil(t, next.LockedUntil)
		assert.Equal(t, rateLimitNow.Add(auth.LockoutDuration), *next.LockedUntil)
	})
}
