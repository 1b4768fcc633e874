// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for auth metrics.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusLocked  = "locked"
	StatusError   = "error"
)

// LoginAttempts is the counter for login attempts by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trailhead_auth_logins_total",
		Help: "Total number of login attempts by status",
	},
	[]string{"status"},
)

// TokenChecks is the counter for bearer token authentications by result code.
var TokenChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trailhead_auth_token_checks_total",
		Help: "Total number of bearer token authentications by result",
	},
	[]string{"result"},
)

// PasswordResets is the counter for password reset steps.
var PasswordResets = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trailhead_auth_password_resets_total",
		Help: "Total number of password reset operations by stage and status",
	},
	[]string{"stage", "status"},
)

// RegisterMetrics registers auth metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(TokenChecks)
	reg.MustRegister(PasswordResets)
}

func recordLogin(status string) {
	LoginAttempts.WithLabelValues(status).Inc()
}

// recordTokenCheck labels by error code, or "ok".
func recordTokenCheck(err error) {
	result := "ok"
	if err != nil {
		result = ErrorCode(err)
		if result == "" {
			result = StatusError
		}
	}
	TokenChecks.WithLabelValues(result).Inc()
}

func recordReset(stage, status string) {
	PasswordResets.WithLabelValues(stage, status).Inc()
}
