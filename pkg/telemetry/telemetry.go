// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the OpenTelemetry SDK for the diplomacy runner.
//
// # Description
//
// Packages instrument themselves with otel.Tracer and otel.Meter. Init
// installs the providers those calls resolve to. Until Init runs, or when
// both exporters are "none", the global no-op providers stay in place.
//
// Metrics go to a Prometheus registry supplied by the caller, the same one
// the pipeline error counters are registered on, so one /metrics endpoint
// serves both.
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	cfg := telemetry.DefaultConfig()
//	cfg.Registerer = reg
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Exporter names.
const (
	ExporterNone       = "none"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

var (
	// ErrNilContext is returned by Init for a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls telemetry behavior.
type Config struct {
	// ServiceName identifies this service in traces and metrics.
	ServiceName string `yaml:"service_name" json:"service_name"`

	// ServiceVersion is the version string for this service.
	ServiceVersion string `yaml:"service_version" json:"service_version"`

	// Environment identifies the deployment environment.
	Environment string `yaml:"environment" json:"environment"`

	// TraceExporter is "otlp", "stdout" or "none".
	TraceExporter string `yaml:"trace_exporter" json:"trace_exporter" validate:"oneof=otlp stdout none"`

	// MetricExporter is "prometheus", "stdout" or "none".
	MetricExporter string `yaml:"metric_exporter" json:"metric_exporter" validate:"oneof=prometheus stdout none"`

	// OTLPEndpoint is the OTLP gRPC receiver for traces.
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool `yaml:"otlp_insecure" json:"otlp_insecure"`

	// Registerer receives the Prometheus exporter. Nil uses the default
	// Prometheus registry.
	Registerer prometheus.Registerer `yaml:"-" json:"-"`
}

// DefaultConfig returns defaults for a local run: no tracing, metrics on
// Prometheus.
//
// Environment variables override defaults where applicable:
//   - ALEUTIAN_ENV: environment name
//   - OTEL_TRACES_EXPORTER: trace exporter type
//   - OTEL_METRICS_EXPORTER: metric exporter type
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint
func DefaultConfig() Config {
	return Config{
		ServiceName:    "aleutian-diplomacy",
		ServiceVersion: "1.0.0",
		Environment:    getEnvOr("ALEUTIAN_ENV", "development"),
		TraceExporter:  getEnvOr("OTEL_TRACES_EXPORTER", ExporterNone),
		MetricExporter: getEnvOr("OTEL_METRICS_EXPORTER", ExporterPrometheus),
		OTLPEndpoint:   getEnvOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// Init installs the global TracerProvider and MeterProvider.
//
// # Inputs
//
//	ctx - used for exporter connections.
//	cfg - telemetry configuration.
//
// # Outputs
//
//	shutdown - flushes and stops the providers. Must be called on exit.
//	error    - non-nil if an exporter could not be created.
//
// # Thread Safety
//
// Call once at startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	if cfg.TraceExporter != ExporterNone && cfg.TraceExporter != "" {
		tp, err := initTracer(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.MetricExporter != ExporterNone && cfg.MetricExporter != "" {
		mp, err := initMeter(cfg, res)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	return shutdown, nil
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var (
		exporter trace.SpanExporter
		err      error
	)
	switch cfg.TraceExporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	), nil
}

func initMeter(cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case ExporterPrometheus:
		var opts []promexporter.Option
		if cfg.Registerer != nil {
			opts = append(opts, promexporter.WithRegisterer(cfg.Registerer))
		}
		exporter, err := promexporter.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil

	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

// LoggerWithTrace returns logger with trace_id and span_id attributes when
// ctx carries a valid span, and logger unchanged otherwise.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil || logger == nil {
		return logger
	}
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
