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

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/agent"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/dispatch"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

// StatePrompter builds the prompts for agent state rounds. A Prompter
// that also implements it enables Config.StateUpdates.
type StatePrompter interface {
	InitialStatePrompt(phase string, power game.Power, state agent.State) string
	StateUpdatePrompt(phase string, power game.Power, state agent.State) string
}

// StateKeeper runs the rounds that set and revise each agent's goals and
// relationships. Unlike the other stages it covers every active power
// with an agent, including powers with nothing to order this phase.
type StateKeeper struct {
	deps       Deps
	prompter   StatePrompter
	dispatcher *dispatch.Dispatcher[bool]
	logger     *slog.Logger
}

// NewStateKeeper creates a StateKeeper. The Prompter in deps must
// implement StatePrompter.
func NewStateKeeper(deps Deps, workers int) (*StateKeeper, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	sp, ok := deps.Prompter.(StatePrompter)
	if !ok {
		return nil, ErrMissingStatePrompter
	}
	d, err := dispatch.NewDispatcher[bool](dispatch.Config{Name: "state", Workers: workers}, deps.logger())
	if err != nil {
		return nil, err
	}
	return &StateKeeper{
		deps:       deps,
		prompter:   sp,
		dispatcher: d,
		logger:     deps.logger().With(slog.String("stage", "state")),
	}, nil
}

// Initialize asks every active power for its opening goals and
// relationships.
func (s *StateKeeper) Initialize(ctx context.Context) (map[game.Power]agent.State, []dispatch.RoundSummary, error) {
	return s.run(ctx, s.prompter.InitialStatePrompt, (*agent.Agent).InitializeState)
}

// Update asks every active power to revise its state after the phase.
func (s *StateKeeper) Update(ctx context.Context) (map[game.Power]agent.State, []dispatch.RoundSummary, error) {
	return s.run(ctx, s.prompter.StateUpdatePrompt, (*agent.Agent).UpdateState)
}

type statePromptFunc func(phase string, power game.Power, state agent.State) string

type stateApplyFunc func(a *agent.Agent, ctx context.Context, prompt, phase string) bool

func (s *StateKeeper) run(ctx context.Context, prompt statePromptFunc, apply stateApplyFunc) (map[game.Power]agent.State, []dispatch.RoundSummary, error) {
	phase := s.deps.Engine.CurrentPhase()
	states := make(map[game.Power]agent.State)

	plan := func(int) []dispatch.Unit[bool] {
		var units []dispatch.Unit[bool]
		for _, p := range s.deps.Engine.ActivePowers() {
			a, ok := s.deps.Agents[p]
			if !ok {
				continue
			}
			text := prompt(phase, p, a.State())
			units = append(units, dispatch.Unit[bool]{
				Key: string(p),
				Run: func(ctx context.Context) (bool, error) {
					return apply(a, ctx, text, phase), nil
				},
			})
		}
		return units
	}

	collect := func(out dispatch.Outcome[bool]) {
		power := game.Power(out.Key)
		if out.Err != nil || !out.Value {
			s.logger.Warn("state unchanged", slog.String("power", out.Key))
		}
		states[power] = s.deps.Agents[power].State()
	}

	summaries, err := s.dispatcher.Run(ctx, 1, plan, collect)
	return states, summaries, err
}
