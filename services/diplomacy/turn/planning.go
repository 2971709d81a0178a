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

// Planner asks every eligible power for a strategic directive.
type Planner struct {
	deps       Deps
	dispatcher *dispatch.Dispatcher[string]
	logger     *slog.Logger
}

// NewPlanner creates a Planner with a pool of workers.
func NewPlanner(deps Deps, workers int) (*Planner, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	d, err := dispatch.NewDispatcher[string](dispatch.Config{Name: "planning", Workers: workers}, deps.logger())
	if err != nil {
		return nil, err
	}
	return &Planner{
		deps:       deps,
		dispatcher: d,
		logger:     deps.logger().With(slog.String("stage", "planning")),
	}, nil
}

// Run collects plans. Empty plans are dropped; the rest are stored in the
// history under the current phase.
func (p *Planner) Run(ctx context.Context) (map[game.Power]string, []dispatch.RoundSummary, error) {
	phase := p.deps.Engine.CurrentPhase()
	plans := make(map[game.Power]string)

	plan := func(int) []dispatch.Unit[string] {
		var units []dispatch.Unit[string]
		for _, part := range p.deps.eligible() {
			prompt := p.deps.Prompter.PlanningPrompt(phase, part.power, part.universe)
			a := part.agent
			units = append(units, dispatch.Unit[string]{
				Key: string(part.power),
				Run: func(ctx context.Context) (string, error) {
					return a.Plan(ctx, prompt), nil
				},
			})
		}
		return units
	}

	collect := func(out dispatch.Outcome[string]) {
		if out.Err != nil || out.Value == "" {
			p.logger.Warn("no plan from power", slog.String("power", out.Key))
			return
		}
		power := game.Power(out.Key)
		p.deps.History.SetPlan(phase, power, out.Value)
		plans[power] = out.Value
	}

	summaries, err := p.dispatcher.Run(ctx, 1, plan, collect)
	return plans, summaries, err
}
