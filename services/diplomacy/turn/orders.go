// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package turn

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/dispatch"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

// OrderCollector gathers one validated order set per eligible power.
type OrderCollector struct {
	deps       Deps
	dispatcher *dispatch.Dispatcher[[]string]
	logger     *slog.Logger
}

// NewOrderCollector creates an OrderCollector with a pool of workers.
func NewOrderCollector(deps Deps, workers int) (*OrderCollector, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	d, err := dispatch.NewDispatcher[[]string](dispatch.Config{Name: "orders", Workers: workers}, deps.logger())
	if err != nil {
		return nil, err
	}
	return &OrderCollector{
		deps:       deps,
		dispatcher: d,
		logger:     deps.logger().With(slog.String("stage", "orders")),
	}, nil
}

// Run collects and submits orders for the current phase. Empty sets are
// not submitted. The returned map holds what the engine accepted.
func (c *OrderCollector) Run(ctx context.Context) (map[game.Power][]string, []dispatch.RoundSummary, error) {
	phase := c.deps.Engine.CurrentPhase()
	submitted := make(map[game.Power][]string)

	plan := func(int) []dispatch.Unit[[]string] {
		var units []dispatch.Unit[[]string]
		for _, p := range c.deps.eligible() {
			prompt := c.deps.Prompter.OrdersPrompt(phase, p.power, p.universe)
			a, u := p.agent, p.universe
			units = append(units, dispatch.Unit[[]string]{
				Key: string(p.power),
				Run: func(ctx context.Context) ([]string, error) {
					return a.Orders(ctx, prompt, u), nil
				},
			})
		}
		return units
	}

	collect := func(out dispatch.Outcome[[]string]) {
		power := game.Power(out.Key)
		if out.Err != nil {
			c.logger.Error("order unit failed", slog.String("power", out.Key), slog.String("error", out.Err.Error()))
			return
		}
		if len(out.Value) == 0 {
			c.logger.Warn("no orders to submit", slog.String("power", out.Key))
			return
		}
		if err := c.deps.Engine.SetOrders(power, out.Value); err != nil {
			c.logger.Error("engine rejected orders", slog.String("power", out.Key), slog.String("error", err.Error()))
			return
		}
		c.deps.History.AddOrders(phase, power, out.Value, nil)
		submitted[power] = out.Value
		c.logger.Debug("orders submitted", slog.String("power", out.Key), slog.Any("orders", out.Value))
	}

	summaries, err := c.dispatcher.Run(ctx, 1, plan, collect)
	return submitted, summaries, err
}
