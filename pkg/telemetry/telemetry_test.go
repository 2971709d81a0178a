// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()
	assert.Equal(t, "aleutian-diplomacy", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterPrometheus, cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	assert.Equal(t, ExporterStdout, DefaultConfig().TraceExporter)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_Noop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "zipkin"
	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg = DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = "graphite"
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_StdoutTracer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterStdout
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestInit_PrometheusOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterPrometheus
	cfg.Registerer = reg

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	counter, err := otel.Meter("test").Int64Counter("diplomacy_test_units")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if strings.Contains(f.GetName(), "diplomacy_test_units") {
			found = true
		}
	}
	assert.True(t, found, "otel counter not exported to the custom registry")
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	assert.Same(t, logger, LoggerWithTrace(context.Background(), logger))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	LoggerWithTrace(ctx, logger).Info("hello")
	assert.Contains(t, buf.String(), `"trace_id":"`+span.SpanContext().TraceID().String()+`"`)
	assert.Contains(t, buf.String(), `"span_id":"`)
}
