// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, ready ReadinessChecker, opts ...ServerOption) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready, opts...)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	extra := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trailhead_test_extra_total",
		Help: "registered through WithRegistration",
	})
	server := startServer(t, func() bool { return true },
		WithRegistration(func(reg prometheus.Registerer) { reg.MustRegister(extra) }))

	server.Metrics().RecordPurge(3, nil, time.Unix(1_700_000_000, 0))
	extra.Inc()

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `trailhead_janitor_runs_total{status="success"} 1`)
	assert.Contains(t, body, "trailhead_janitor_resets_purged_total 3")
	assert.Contains(t, body, "trailhead_test_extra_total 1")
}

func TestMetrics_RecordPurgeFailure(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordPurge(0, errors.New("db down"), time.Now())

	assert.InDelta(t, 1, testutil.ToFloat64(m.JanitorRuns.WithLabelValues("failure")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ResetsPurged), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.LastPurgeTime), 0)
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, nil)
	status, body := get(t, server, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	var ready atomic.Bool
	server := startServer(t, ready.Load)

	status, body := get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not ready", strings.TrimSpace(body))

	ready.Store(true)
	status, _ = get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_DoubleStart(t *testing.T) {
	server := startServer(t, nil)
	_, err := server.Start()
	assert.Error(t, err)
}

func TestServer_StopIsIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)

	require.NoError(t, server.Stop(context.Background()))
	require.NoError(t, server.Stop(context.Background()))

	_, open := <-errCh
	assert.False(t, open, "error channel should close on graceful stop")
}

func TestServer_StartInvalidAddr(t *testing.T) {
	server := NewServer("256.0.0.1:99999", nil)
	_, err := server.Start()
	require.Error(t, err)

	// a failed start leaves the server startable
	assert.Empty(t, server.Addr())
}
