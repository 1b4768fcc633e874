// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package observability serves Prometheus metrics and health probes.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service's dependencies are reachable.
type ReadinessChecker func() bool

// Metrics holds the janitor's own metrics.
type Metrics struct {
	JanitorRuns   *prometheus.CounterVec
	ResetsPurged  prometheus.Counter
	LastPurgeTime prometheus.Gauge
}

// NewMetrics creates and registers the janitor metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JanitorRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailhead_janitor_runs_total",
				Help: "Total number of janitor purge runs by status",
			},
			[]string{"status"},
		),
		ResetsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trailhead_janitor_resets_purged_total",
			Help: "Total number of expired password resets cleared",
		}),
		LastPurgeTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trailhead_janitor_last_success_timestamp_seconds",
			Help: "Unix time of the last successful purge run",
		}),
	}

	reg.MustRegister(m.JanitorRuns, m.ResetsPurged, m.LastPurgeTime)
	return m
}

// RecordPurge records the outcome of one purge run.
func (m *Metrics) RecordPurge(purged int64, err error, now time.Time) {
	if err != nil {
		m.JanitorRuns.WithLabelValues("failure").Inc()
		return
	}
	m.JanitorRuns.WithLabelValues("success").Inc()
	m.ResetsPurged.Add(float64(purged))
	m.LastPurgeTime.Set(float64(now.Unix()))
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRegistration adds a function that registers extra collectors, such as
// auth.RegisterMetrics, on the server's registry.
func WithRegistration(register func(prometheus.Registerer)) ServerOption {
	return func(s *Server) {
		register(s.registry)
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer creates a new observability server on a private registry.
// addr is "host:port"; ":0" picks a free port.
func NewServer(addr string, readinessChecker ReadinessChecker, opts ...ServerOption) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the janitor metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving. The returned channel receives a serve error, if
// any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown observability server").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, "ok")
}

// handleReadiness reports 503 while the checker says the database is unreachable.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.isReady == nil || s.isReady() {
		writeProbe(w, http.StatusOK, "ok")
		return
	}
	writeProbe(w, http.StatusServiceUnavailable, "not ready")
}

func writeProbe(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	w.Write([]byte(body + "\n"))
}
