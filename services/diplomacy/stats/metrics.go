// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const (
	metricsNamespace = "aleutian"
	metricsSubsystem = "diplomacy"
)

// Metrics holds the Prometheus view of the registry.
//
// # Fields
//
//   - Errors: pipeline failures by model and counter name.
//     Labels: model, counter (order_decoding_errors, conversation_errors)
//   - TransportFailures: provider errors caught by the model gateway.
//     Labels: model
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	Errors            *prometheus.CounterVec
	TransportFailures *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline counters on reg.
//
// # Limitations
//
//   - Panics if the same reg already holds these metrics. Use a fresh
//     prometheus.NewRegistry() per run or per test.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "pipeline_errors_total",
				Help:      "Order decoding and conversation failures by model",
			},
			[]string{"model", "counter"},
		),
		TransportFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "transport_failures_total",
				Help:      "Model calls that failed before producing text",
			},
			[]string{"model"},
		),
	}
}
