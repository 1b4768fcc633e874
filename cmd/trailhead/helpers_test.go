// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/auth/authtest"
	"github.com/trailhead/trailhead/internal/config"
	"github.com/trailhead/trailhead/internal/mail"
	"github.com/trailhead/trailhead/internal/observability"
	"github.com/trailhead/trailhead/internal/store"
)

const testSecret = "cmd-test-secret-0123456789abcdef0123"

// fakeMigrator records calls and reports a fixed status.
type fakeMigrator struct {
	status   store.Status
	upErr    error
	upCalled bool
	downCall bool
	steps    *int
	forced   *int
	closed   bool
}

func (m *fakeMigrator) Up() error {
	m.upCalled = true
	if m.upErr != nil {
		return m.upErr
	}
	m.status.Current = m.status.Latest
	m.status.Pending = nil
	return nil
}

func (m *fakeMigrator) Down() error {
	m.downCall = true
	m.status.Current = 0
	return nil
}

func (m *fakeMigrator) Steps(n int) error {
	m.steps = &n
	m.status.Current = uint(int(m.status.Current) + n) //nolint:gosec // tests stay within range
	m.status.Pending = nil
	for v := m.status.Current + 1; v <= m.status.Latest; v++ {
		m.status.Pending = append(m.status.Pending, v)
	}
	return nil
}

func (m *fakeMigrator) Version() (uint, bool, error) {
	return m.status.Current, m.status.Dirty, nil
}

func (m *fakeMigrator) Force(version int) error {
	m.forced = &version
	m.status.Current = uint(version) //nolint:gosec // parseForceVersion rejects negatives
	m.status.Dirty = false
	return nil
}

func (m *fakeMigrator) Status() (store.Status, error) {
	return m.status, nil
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

// fakeObsServer is an ObservabilityServer that never listens.
type fakeObsServer struct {
	mu       sync.Mutex
	startErr error
	errCh    chan error
	started  bool
	stopped  bool
	addr     string
	ready    observability.ReadinessChecker
	metrics  *observability.Metrics
}

func newFakeObsServer() *fakeObsServer {
	return &fakeObsServer{
		errCh:   make(chan error, 1),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
}

func (s *fakeObsServer) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = true
	return s.errCh, nil
}

func (s *fakeObsServer) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeObsServer) Addr() string { return s.addr }

func (s *fakeObsServer) Metrics() *observability.Metrics { return s.metrics }

func (s *fakeObsServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// harness bundles the fakes behind a Deps value.
type harness struct {
	store    *authtest.MemoryStore
	mailer   *authtest.RecordingMailer
	migrator *fakeMigrator
	obs      *fakeObsServer
	openErr  error
	closed   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TRAILHEAD_AUTH__TOKEN_SECRET", testSecret)
	// keep argon2id cheap
	t.Setenv("TRAILHEAD_AUTH__HASH__MEMORY", "8192")
	t.Setenv("TRAILHEAD_AUTH__HASH__THREADS", "1")

	return &harness{
		store:    authtest.NewMemoryStore(),
		mailer:   &authtest.RecordingMailer{},
		migrator: &fakeMigrator{status: store.Status{Current: 1, Latest: 3, Pending: []uint{2, 3}}},
		obs:      newFakeObsServer(),
	}
}

func (h *harness) deps() Deps {
	return Deps{
		OpenBackend: func(context.Context, config.Config) (*Backend, error) {
			if h.openErr != nil {
				return nil, h.openErr
			}
			return &Backend{
				Store: h.store,
				Ready: func() bool { return true },
				Close: func() { h.closed++ },
			}, nil
		},
		NewMigrator: func(string, *slog.Logger) (Migrator, error) {
			return h.migrator, nil
		},
		NewMailer: func(mail.Config, *slog.Logger) (auth.EmailSender, error) {
			return h.mailer, nil
		},
		NewObservabilityServer: func(addr string, ready observability.ReadinessChecker, _ *slog.Logger) ObservabilityServer {
			h.obs.addr = addr
			h.obs.ready = ready
			return h.obs
		},
	}
}

// run executes the CLI with args and returns stdout.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return h.runContext(context.Background(), t, args...)
}

func (h *harness) runContext(ctx context.Context, t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd(h.deps())
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), err
}

// createUser provisions an account through the CLI and returns its ID.
func (h *harness) createUser(t *testing.T, email, role string) string {
	t.Helper()
	out, err := h.run(t, "user", "create", "--email", email, "--password", "correct-horse", "--role", role)
	require.NoError(t, err)
	fields := bytes.Fields([]byte(out))
	require.GreaterOrEqual(t, len(fields), 2, "unexpected output %q", out)
	return string(fields[1])
}

var errBoom = errors.New("boom")
