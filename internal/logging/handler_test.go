// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("trailhead", "1.0.0", DefaultConfig(), &buf)

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "trailhead", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "level")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("janitor", "1.0.0", Config{Format: "text"}, &buf)

	logger.Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "service=janitor")
}

func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("trailhead", "1.0.0", Config{Format: "json", Level: "warn"}, &buf)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestSetup_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("trailhead", "1.0.0", Config{Level: "chatty"}, &buf)

	logger.Debug("dropped")
	assert.Empty(t, buf.String())
	logger.Info("kept")
	assert.NotEmpty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetup_RedactsSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("trailhead", "1.0.0", DefaultConfig(), &buf)

	logger.Info("signup",
		"email", "a@x.com",
		"password", "hunter22",
		slog.Group("request", slog.String("Token", "eyJhbGci")),
	)

	out := buf.String()
	assert.NotContains(t, out, "hunter22")
	assert.NotContains(t, out, "eyJhbGci")

	entry := decode(t, &buf)
	assert.Equal(t, "a@x.com", entry["email"])
	assert.Equal(t, Redacted, entry["password"])
	assert.Equal(t, Redacted, entry["request"].(map[string]any)["Token"])
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("trailhead", "1.0.0", DefaultConfig(), &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("trailhead", "1.0.0", DefaultConfig(), &buf)

	logger.Info("no trace message")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_WithAttrsKeepsIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("trailhead", "1.0.0", DefaultConfig(), &buf).With("component", "janitor")

	logger.Info("tick")

	entry := decode(t, &buf)
	assert.Equal(t, "janitor", entry["component"])
	assert.Equal(t, "trailhead", entry["service"])
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := SetDefault("test-service", "2.0.0", DefaultConfig())
	assert.Same(t, logger, slog.Default())
}
