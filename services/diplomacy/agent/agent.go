// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent binds one power to the model playing it.
//
// # Description
//
// An Agent owns the model gateway for its power and runs the parsing
// pipeline over every reply: order extraction, validation and fallback for
// orders, message extraction for negotiation, and the state parser for its
// goals and relationships. It never returns an error; the worst outcome is
// a fallback order set, no messages or unchanged state, and every order or
// message decoding failure is counted against the agent's model.
//
// # Thread Safety
//
// An Agent is safe for concurrent use, though the dispatcher only ever runs
// one unit per agent at a time.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/messages"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/orders"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/stats"
)

// Generator is the model gateway as seen by an agent. Generate returns ""
// on any failure.
type Generator interface {
	Generate(ctx context.Context, system, user string) string
	ModelID() string
}

// Agent plays one power.
type Agent struct {
	power    game.Power
	system   string
	gen      Generator
	orders   *orders.Extractor
	messages *messages.Extractor
	stats    *stats.Registry
	logger   *slog.Logger

	known []game.Power

	mu    sync.Mutex
	state State
}

// Option configures an Agent.
type Option func(*Agent)

// WithOrderExtractor replaces the default order strategy chain.
func WithOrderExtractor(e *orders.Extractor) Option {
	return func(a *Agent) { a.orders = e }
}

// WithMessageExtractor replaces the default message strategy chain.
func WithMessageExtractor(e *messages.Extractor) Option {
	return func(a *Agent) { a.messages = e }
}

// WithKnownPowers sets the powers the agent may hold relationships with.
// The default is game.StandardPowers.
func WithKnownPowers(powers []game.Power) Option {
	return func(a *Agent) { a.known = append([]game.Power(nil), powers...) }
}

// New creates an Agent.
//
// # Inputs
//
//	power    - the power played.
//	system   - system directive sent with every prompt.
//	gen      - model gateway; its ModelID keys the error counters.
//	registry - error counters; nil creates a private registry.
//	logger   - nil falls back to slog.Default().
func New(power game.Power, system string, gen Generator, registry *stats.Registry, logger *slog.Logger, opts ...Option) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = stats.NewRegistry()
	}
	logger = logger.With(slog.String("power", string(power)), slog.String("model", gen.ModelID()))
	a := &Agent{
		power:  power,
		system: system,
		gen:    gen,
		stats:  registry,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.orders == nil {
		a.orders = orders.NewExtractor(logger)
	}
	if a.messages == nil {
		a.messages = messages.NewExtractor(logger)
	}
	if a.known == nil {
		a.known = game.StandardPowers
	}
	a.state = newState(power, a.known)
	registry.Touch(gen.ModelID())
	return a
}

// Power returns the power this agent plays.
func (a *Agent) Power() game.Power { return a.power }

// ModelID returns the model id used for error accounting.
func (a *Agent) ModelID() string { return a.gen.ModelID() }

// Orders asks the model for orders and returns a legal set for universe.
//
// # Description
//
// If no strategy recovers an orders payload, or the payload is not a
// non-empty list, the failure is counted as an order decoding error and the
// fallback set is returned. Otherwise the payload is validated, which may itself
// fall back when nothing in it is legal.
//
// # Outputs
//
//	[]string - one order per non-empty slot of universe; empty only when
//	universe has no legal actions at all.
func (a *Agent) Orders(ctx context.Context, prompt string, universe game.Universe) []string {
	raw := a.gen.Generate(ctx, a.system, prompt)

	payload, ok := a.orders.Extract(raw)
	if !ok || !isNonEmptyList(payload.Orders) {
		a.logger.Warn("failed to extract orders, using fallback", slog.Int("response_chars", len(raw)))
		a.count(stats.OrderDecodingErrors)
		return orders.Fallback(universe)
	}

	res := orders.Reconcile(payload.Orders, universe)
	a.logger.Debug("orders reconciled",
		slog.String("strategy", payload.Strategy),
		slog.Bool("recovered", payload.Recovered),
		slog.Int("accepted", res.Accepted),
		slog.Int("rejected", len(res.Rejected)),
		slog.Int("filled", res.Filled),
		slog.Bool("fell_back", res.FellBack))
	if len(res.Rejected) > 0 {
		a.logger.Info("dropped illegal orders", slog.Any("orders", res.Rejected))
	}
	return res.Orders
}

// ConversationReply asks the model for messages. active lists the powers a
// private message may be addressed to.
func (a *Agent) ConversationReply(ctx context.Context, prompt string, active []game.Power) []game.MessageRecord {
	raw := a.gen.Generate(ctx, a.system, prompt)
	return a.messages.Extract(raw, a.power, active)
}

// Plan asks the model for a planning directive. "" means no plan. A plan
// is also written to the journal.
func (a *Agent) Plan(ctx context.Context, prompt string) string {
	plan := strings.TrimSpace(a.gen.Generate(ctx, a.system, prompt))
	if plan != "" {
		a.mu.Lock()
		a.state.Journal = append(a.state.Journal, "Plan: "+plan)
		a.mu.Unlock()
	}
	return plan
}

// RecordConversationError counts a negotiation unit that yielded nothing.
func (a *Agent) RecordConversationError() {
	a.count(stats.ConversationErrors)
}

func (a *Agent) count(c stats.Counter) {
	if err := a.stats.Increment(a.gen.ModelID(), c); err != nil {
		a.logger.Error("failed to record error", slog.String("error", err.Error()))
	}
}

func isNonEmptyList(v any) bool {
	switch l := v.(type) {
	case []any:
		return len(l) > 0
	case []string:
		return len(l) > 0
	default:
		return false
	}
}
