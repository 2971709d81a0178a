// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats keeps per-model failure counters for a run.
//
// # Description
//
// Every failure in the order and message pipeline is attributed to the model
// that produced the text. Counters are created on first touch with zero
// values, incremented from dispatch workers and read at any time.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Increments are atomic; a Snapshot
// taken during increments sees each counter at some value it actually held.
package stats

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Counter names a per-model failure counter.
type Counter string

const (
	// OrderDecodingErrors counts order replies that yielded no usable payload
	// and gateway calls that failed.
	OrderDecodingErrors Counter = "order_decoding_errors"

	// ConversationErrors counts negotiation units that yielded no message.
	ConversationErrors Counter = "conversation_errors"
)

// Counters lists every known counter.
var Counters = []Counter{OrderDecodingErrors, ConversationErrors}

// Valid reports whether c is one of Counters.
func (c Counter) Valid() bool {
	return c == OrderDecodingErrors || c == ConversationErrors
}

// ErrUnknownCounter is returned by Increment for an unrecognized counter.
var ErrUnknownCounter = errors.New("unknown counter")

// ErrorCounts is a point-in-time copy of one model's counters.
type ErrorCounts struct {
	OrderDecodingErrors int64 `json:"order_decoding_errors" yaml:"order_decoding_errors"`
	ConversationErrors  int64 `json:"conversation_errors" yaml:"conversation_errors"`
}

// Total returns the sum of all counters.
func (c ErrorCounts) Total() int64 {
	return c.OrderDecodingErrors + c.ConversationErrors
}

type modelCounters struct {
	decoding     atomic.Int64
	conversation atomic.Int64
}

func (m *modelCounters) counter(c Counter) (*atomic.Int64, bool) {
	switch c {
	case OrderDecodingErrors:
		return &m.decoding, true
	case ConversationErrors:
		return &m.conversation, true
	default:
		return nil, false
	}
}

// Registry holds the counters for every model seen in a run.
type Registry struct {
	models  sync.Map // model id -> *modelCounters
	metrics *Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics mirrors every increment into Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Increment adds one to a model's counter, creating the model's record
// on first use.
func (r *Registry) Increment(model string, c Counter) error {
	return r.Add(model, c, 1)
}

// Add adds delta to a model's counter. delta must not be negative.
func (r *Registry) Add(model string, c Counter, delta int64) error {
	if delta < 0 {
		return fmt.Errorf("add %d to %s: negative delta", delta, c)
	}
	if !c.Valid() {
		return fmt.Errorf("increment %q for model %s: %w", c, model, ErrUnknownCounter)
	}
	counter, _ := r.entry(model).counter(c)
	counter.Add(delta)
	if r.metrics != nil {
		r.metrics.Errors.WithLabelValues(model, string(c)).Add(float64(delta))
	}
	return nil
}

// Touch registers a model with zero counters without incrementing anything,
// so it appears in snapshots even if it never fails.
func (r *Registry) Touch(model string) {
	r.entry(model)
}

// RecordTransportFailure notes a failed model call. The empty reply it
// produced is counted by whoever parses it, so only the model record and the
// Prometheus transport counter are touched here. The signature matches the
// gateway's failure hook.
func (r *Registry) RecordTransportFailure(model string, _ error) {
	r.entry(model)
	if r.metrics != nil {
		r.metrics.TransportFailures.WithLabelValues(model).Inc()
	}
}

// Get returns the counters for one model and whether it has been seen.
func (r *Registry) Get(model string) (ErrorCounts, bool) {
	v, ok := r.models.Load(model)
	if !ok {
		return ErrorCounts{}, false
	}
	return read(v.(*modelCounters)), true
}

// Snapshot copies every model's counters.
func (r *Registry) Snapshot() map[string]ErrorCounts {
	out := make(map[string]ErrorCounts)
	r.models.Range(func(k, v any) bool {
		out[k.(string)] = read(v.(*modelCounters))
		return true
	})
	return out
}

// Models returns the ids of every model seen, sorted.
func (r *Registry) Models() []string {
	var ids []string
	r.models.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

func (r *Registry) entry(model string) *modelCounters {
	if v, ok := r.models.Load(model); ok {
		return v.(*modelCounters)
	}
	v, _ := r.models.LoadOrStore(model, &modelCounters{})
	return v.(*modelCounters)
}

func read(m *modelCounters) ErrorCounts {
	return ErrorCounts{
		OrderDecodingErrors: m.decoding.Load(),
		ConversationErrors:  m.conversation.Load(),
	}
}
