// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

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
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "accountd", Version: "1.0.0", Format: "json", Writer: &buf})

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "accountd", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "level")
	assert.NotContains(t, entry, "request_id")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "accountd", Version: "1.0.0", Format: "text", Writer: &buf})

	logger.Info("test message")

	out := buf.String()
	assert.Contains(t, out, "msg=\"test message\"")
	assert.Contains(t, out, "service=accountd")
}

func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Level: slog.LevelWarn, Writer: &buf})

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestSetup_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "accountd", Writer: &buf})

	ctx := WithRequestID(context.Background(), "req-123")
	logger.InfoContext(ctx, "handled")

	entry := decode(t, &buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "req-123", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}

func TestSetup_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "accountd", Writer: &buf})

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.InfoContext(ctx, "traced")

	entry := decode(t, &buf)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", entry["trace_id"])
	assert.Equal(t, "0102030405060708", entry["span_id"])
}

func TestSetup_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "accountd", Writer: &buf}).
		With("component", "http").
		WithGroup("req")

	logger.Info("grouped", "path", "/users/me")

	entry := decode(t, &buf)
	assert.Equal(t, "http", entry["component"])
	req, ok := entry["req"].(map[string]any)
	require.True(t, ok, "expected req group in %v", entry)
	assert.Equal(t, "/users/me", req["path"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat("json"))
	assert.True(t, ValidFormat("text"))
	assert.False(t, ValidFormat("xml"))
	assert.False(t, ValidFormat(""))
}
