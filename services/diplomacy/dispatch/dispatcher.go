// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch runs rounds of concurrent per-power work.
//
// # Description
//
// A Dispatcher executes a sequence of rounds. Each round submits one Unit per
// eligible participant to a bounded worker pool and hands every Outcome to a
// collect callback, on the calling goroutine, in completion order. A round
// returns only after every unit has finished, so round i+1 never overlaps
// round i.
//
// Shared state (history, engine) is mutated only from collect. Units run on
// pool goroutines and must only touch state that is safe for concurrent use.
//
// # Thread Safety
//
// A Dispatcher may be shared, but collect callbacks for one Run are never
// called concurrently with each other.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	tracer = otel.Tracer("aleutian.diplomacy.dispatch")
	meter  = otel.Meter("aleutian.diplomacy.dispatch")
)

// FullFanOut sizes the pool to the number of units in each round.
const FullFanOut = -1

// Sentinel errors.
var (
	// ErrPoolSizeUnset is returned when Config.Workers is zero. The pool size
	// must always be chosen explicitly.
	ErrPoolSizeUnset = errors.New("dispatch: worker pool size not set")

	// ErrInvalidPoolSize is returned for negative sizes other than FullFanOut.
	ErrInvalidPoolSize = errors.New("dispatch: invalid worker pool size")

	// ErrUnitPanicked wraps a panic recovered from a unit.
	ErrUnitPanicked = errors.New("dispatch: unit panicked")

	// ErrNilContext is returned when Run is given a nil context.
	ErrNilContext = errors.New("dispatch: nil context")
)

// Config sizes a Dispatcher.
type Config struct {
	// Name labels spans, metrics and logs ("negotiation", "orders").
	Name string

	// Workers is the pool size. A positive value caps concurrency, so a value
	// below the participant count serializes part of the round. FullFanOut
	// runs every unit at once. Zero is rejected.
	Workers int
}

// Unit is one participant's work for one round.
type Unit[R any] struct {
	// Key identifies the participant, e.g. the power name.
	Key string

	// Run performs the work. It is called on a pool goroutine.
	Run func(ctx context.Context) (R, error)
}

// Outcome is the result of one Unit.
type Outcome[R any] struct {
	Round    int
	Key      string
	Value    R
	Err      error
	Seq      int // completion index within the round
	Duration time.Duration
}

// RoundSummary describes one finished round.
type RoundSummary struct {
	Round     int
	Submitted int
	Failed    int
	Workers   int
	Duration  time.Duration
}

// Dispatcher runs rounds of Units.
type Dispatcher[R any] struct {
	cfg    Config
	logger *slog.Logger

	metricsOnce  sync.Once
	unitLatency  metric.Float64Histogram
	unitFailures metric.Int64Counter
	roundsTotal  metric.Int64Counter
	activeUnits  metric.Int64UpDownCounter
}

// NewDispatcher validates cfg and creates a Dispatcher.
//
// # Inputs
//
//	cfg    - pool configuration. Workers must be positive or FullFanOut.
//	logger - if nil, slog.Default() is used.
//
// # Outputs
//
//	*Dispatcher[R] - ready to run.
//	error          - ErrPoolSizeUnset or ErrInvalidPoolSize.
func NewDispatcher[R any](cfg Config, logger *slog.Logger) (*Dispatcher[R], error) {
	switch {
	case cfg.Workers == 0:
		return nil, ErrPoolSizeUnset
	case cfg.Workers < 0 && cfg.Workers != FullFanOut:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoolSize, cfg.Workers)
	}
	if cfg.Name == "" {
		cfg.Name = "round"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher[R]{
		cfg:    cfg,
		logger: logger.With(slog.String("dispatcher", cfg.Name)),
	}, nil
}

// Workers returns the pool size used for a round of n units.
func (d *Dispatcher[R]) Workers(n int) int {
	if d.cfg.Workers == FullFanOut || d.cfg.Workers > n {
		return n
	}
	return d.cfg.Workers
}

// initMetrics lazily initializes metrics. Failures degrade observability only.
func (d *Dispatcher[R]) initMetrics() {
	d.metricsOnce.Do(func() {
		var initErrors []string
		var err error

		d.unitLatency, err = meter.Float64Histogram("diplomacy_dispatch_unit_duration_seconds",
			metric.WithDescription("Time spent in one participant unit"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "unit_latency: "+err.Error())
		}

		d.unitFailures, err = meter.Int64Counter("diplomacy_dispatch_unit_failure_total",
			metric.WithDescription("Units that returned an error or panicked"),
		)
		if err != nil {
			initErrors = append(initErrors, "unit_failures: "+err.Error())
		}

		d.roundsTotal, err = meter.Int64Counter("diplomacy_dispatch_rounds_total",
			metric.WithDescription("Completed dispatch rounds"),
		)
		if err != nil {
			initErrors = append(initErrors, "rounds_total: "+err.Error())
		}

		d.activeUnits, err = meter.Int64UpDownCounter("diplomacy_dispatch_active_units",
			metric.WithDescription("Units currently executing"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_units: "+err.Error())
		}

		if len(initErrors) > 0 {
			d.logger.Error("failed to initialize some dispatch metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run executes rounds sequentially.
//
// # Description
//
// plan is called once per round, after the previous round has been fully
// collected, so eligibility can depend on earlier results. A round with no
// units is skipped. Run stops early only when ctx is done before a round
// starts; units already running are never abandoned.
//
// # Inputs
//
//	ctx     - passed to every unit.
//	rounds  - number of rounds, rounds <= 0 does nothing.
//	plan    - builds the units for a round.
//	collect - receives each Outcome on the calling goroutine.
//
// # Outputs
//
//	[]RoundSummary - one per round executed.
//	error          - ctx.Err() if the run stopped early.
func (d *Dispatcher[R]) Run(
	ctx context.Context,
	rounds int,
	plan func(round int) []Unit[R],
	collect func(Outcome[R]),
) ([]RoundSummary, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	d.initMetrics()

	runID := uuid.NewString()[:12]
	ctx, span := tracer.Start(ctx, "dispatch.Run",
		trace.WithAttributes(
			attribute.String("dispatch.name", d.cfg.Name),
			attribute.String("dispatch.run_id", runID),
			attribute.Int("dispatch.rounds", rounds),
			attribute.Int("dispatch.workers", d.cfg.Workers),
		),
	)
	defer span.End()

	summaries := make([]RoundSummary, 0, max(rounds, 0))
	for round := 0; round < rounds; round++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "run cancelled")
			return summaries, err
		}
		summary := d.RunRound(ctx, round, plan(round), collect)
		summaries = append(summaries, summary)
		d.logger.Info("round complete",
			slog.String("run_id", runID),
			slog.Int("round", round+1),
			slog.Int("of", rounds),
			slog.Int("units", summary.Submitted),
			slog.Int("failed", summary.Failed),
			slog.Duration("duration", summary.Duration),
		)
	}
	span.SetStatus(codes.Ok, "")
	return summaries, nil
}

// RunRound executes one round and returns after every unit has finished.
func (d *Dispatcher[R]) RunRound(
	ctx context.Context,
	round int,
	units []Unit[R],
	collect func(Outcome[R]),
) RoundSummary {
	d.initMetrics()
	start := time.Now()
	summary := RoundSummary{Round: round, Submitted: len(units)}
	if len(units) == 0 {
		return summary
	}
	summary.Workers = d.Workers(len(units))

	ctx, span := tracer.Start(ctx, "dispatch.Round",
		trace.WithAttributes(
			attribute.String("dispatch.name", d.cfg.Name),
			attribute.Int("dispatch.round", round),
			attribute.Int("dispatch.units", len(units)),
			attribute.Int("dispatch.pool", summary.Workers),
		),
	)
	defer span.End()

	results := make(chan Outcome[R], len(units))
	var g errgroup.Group
	g.SetLimit(summary.Workers)

	// g.Go blocks once the pool is full, so submission runs apart from
	// collection.
	go func() {
		for _, u := range units {
			g.Go(func() error {
				results <- d.execute(ctx, round, u)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	seq := 0
	for out := range results {
		out.Seq = seq
		seq++
		if out.Err != nil {
			summary.Failed++
		}
		if collect != nil {
			collect(out)
		}
	}

	summary.Duration = time.Since(start)
	if d.roundsTotal != nil {
		d.roundsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("dispatcher", d.cfg.Name)))
	}
	span.SetAttributes(attribute.Int("dispatch.failed", summary.Failed))
	return summary
}

// execute runs one unit, converting a panic into ErrUnitPanicked.
func (d *Dispatcher[R]) execute(ctx context.Context, round int, u Unit[R]) (out Outcome[R]) {
	ctx, span := tracer.Start(ctx, "dispatch.Unit",
		trace.WithAttributes(
			attribute.String("dispatch.name", d.cfg.Name),
			attribute.String("dispatch.key", u.Key),
			attribute.Int("dispatch.round", round),
		),
	)
	defer span.End()

	if d.activeUnits != nil {
		d.activeUnits.Add(ctx, 1)
		defer d.activeUnits.Add(ctx, -1)
	}

	start := time.Now()
	out = Outcome[R]{Round: round, Key: u.Key}
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: %s: %v", ErrUnitPanicked, u.Key, r)
		}
		out.Duration = time.Since(start)

		attrs := metric.WithAttributes(
			attribute.String("dispatcher", d.cfg.Name),
			attribute.String("key", u.Key),
		)
		if d.unitLatency != nil {
			d.unitLatency.Record(ctx, out.Duration.Seconds(), attrs)
		}
		if out.Err != nil {
			if d.unitFailures != nil {
				d.unitFailures.Add(ctx, 1, attrs)
			}
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
			d.logger.Warn("unit failed",
				slog.String("power", u.Key),
				slog.Int("round", round+1),
				slog.String("error", out.Err.Error()),
			)
			return
		}
		span.SetStatus(codes.Ok, "")
	}()

	if u.Run == nil {
		out.Err = fmt.Errorf("dispatch: unit %s has no Run func", u.Key)
		return out
	}
	out.Value, out.Err = u.Run(ctx)
	return out
}
