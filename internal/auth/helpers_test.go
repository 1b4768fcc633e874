// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/auth/authtest"
)

// testSecret is 32 bytes, the minimum accepted.
var testSecret = []byte("0123456789abcdef0123456789abcdef")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasher(auth.HashParams{Time: 1, Memory: 1024, Threads: 1})
	require.NoError(t, err)
	return h
}

func testConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.TokenSecret = string(testSecret)
	cfg.Hash = auth.HashParams{Time: 1, Memory: 1024, Threads: 1}
	return cfg
}

// fixture wires the full core against in-memory dependencies.
type fixture struct {
	clock  *fakeClock
	store  *authtest.MemoryStore
	mailer *authtest.RecordingMailer
	hasher *auth.Argon2idHasher
	codec  *auth.TokenCodec
	resets *auth.ResetTokenManager
	svc    *auth.Service
	guard  *auth.Guard
	logs   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:  newFakeClock(),
		store:  authtest.NewMemoryStore(),
		mailer: &authtest.RecordingMailer{},
		hasher: newTestHasher(t),
		logs:   &bytes.Buffer{},
	}
	cfg := testConfig()
	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts := []auth.Option{auth.WithClock(f.clock.Now), auth.WithLogger(logger)}

	var err error
	f.codec, err = auth.NewTokenCodec(testSecret, cfg.TokenTTL, auth.WithTokenClock(f.clock.Now))
	require.NoError(t, err)
	f.resets, err = auth.NewResetTokenManager(f.store, f.hasher, f.mailer, cfg, opts...)
	require.NoError(t, err)
	f.svc, err = auth.NewAuthService(f.store, f.hasher, f.codec, f.resets, cfg, opts...)
	require.NoError(t, err)
	f.guard, err = auth.NewGuard(f.codec, f.store, opts...)
	require.NoError(t, err)
	return f
}

// signup creates an account through the public API and returns it with its token.
func (f *fixture) signup(t *testing.T, email, password string) (*auth.UserCredential, string) {
	t.Helper()
	cred, token, err := f.svc.Signup(context.Background(), auth.SignupInput{
		Email:           email,
		Password:        password,
		PasswordConfirm: password,
	})
	require.NoError(t, err)
	return cred, token
}
