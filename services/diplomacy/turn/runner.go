// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package turn drives game phases: planning, negotiation rounds, order
// collection and agent state updates, each as dispatcher rounds over the
// eligible powers.
//
// # Description
//
// A power is eligible when it is active, has an agent and has at least one
// legal action this phase. Prompts for a round are built before the round
// starts, so every unit in a round sees the same history. Results are
// applied to the engine and the history on the collecting goroutine, in
// completion order.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/agent"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/dispatch"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/history"
)

// Prompter builds the user prompts. Prompt content is supplied by the
// caller.
type Prompter interface {
	PlanningPrompt(phase string, power game.Power, universe game.Universe) string
	ConversationPrompt(phase string, power game.Power, universe game.Universe, round int) string
	OrdersPrompt(phase string, power game.Power, universe game.Universe) string
}

var (
	// ErrMissingDependency is returned when Deps lacks a required field.
	ErrMissingDependency = errors.New("turn: missing dependency")

	// ErrMissingStatePrompter is returned when state updates are enabled
	// but the Prompter does not implement StatePrompter.
	ErrMissingStatePrompter = fmt.Errorf("%w: state prompter", ErrMissingDependency)

	// ErrNotProcessable is returned by RunGame when the engine does not
	// implement game.Processor.
	ErrNotProcessable = errors.New("turn: engine cannot process phases")
)

// Deps are the collaborators shared by every phase driver.
type Deps struct {
	Engine   game.Engine
	Agents   map[game.Power]*agent.Agent
	History  *history.History
	Prompter Prompter
	Logger   *slog.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Engine == nil:
		return fmt.Errorf("%w: engine", ErrMissingDependency)
	case d.History == nil:
		return fmt.Errorf("%w: history", ErrMissingDependency)
	case d.Prompter == nil:
		return fmt.Errorf("%w: prompter", ErrMissingDependency)
	}
	return nil
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// participant is an eligible power with its agent and universe.
type participant struct {
	power    game.Power
	agent    *agent.Agent
	universe game.Universe
}

// eligible returns the powers that take part this phase, in engine order.
func (d Deps) eligible() []participant {
	var out []participant
	for _, p := range d.Engine.ActivePowers() {
		a, ok := d.Agents[p]
		if !ok {
			continue
		}
		u := d.Engine.LegalActions(p)
		if u.IsEmpty() {
			continue
		}
		out = append(out, participant{power: p, agent: a, universe: u})
	}
	return out
}

// Config selects which stages run and how wide each pool is.
type Config struct {
	// Planning enables the planning stage on movement phases.
	Planning bool

	// NegotiationRounds is the number of message rounds per movement phase.
	NegotiationRounds int

	// StateUpdates enables the agent state rounds: initialization at the
	// start of RunGame and an update after every phase's orders.
	StateUpdates bool

	// MaxYear stops RunGame before the first phase of a later year. Zero
	// means no limit.
	MaxYear int

	// Pool sizes. Each must be positive or dispatch.FullFanOut.
	PlanningWorkers    int
	NegotiationWorkers int
	OrderWorkers       int
	StateWorkers       int
}

// PhaseReport is everything one phase produced.
type PhaseReport struct {
	Phase    string
	Plans    map[game.Power]string
	Messages []game.MessageRecord
	Orders   map[game.Power][]string
	States   map[game.Power]agent.State
	Rounds   []dispatch.RoundSummary
	Duration time.Duration
}

// Runner runs whole phases.
type Runner struct {
	cfg        Config
	deps       Deps
	planner    *Planner
	negotiator *Negotiator
	orders     *OrderCollector
	states     *StateKeeper
	logger     *slog.Logger
}

// NewRunner creates a Runner and its stage drivers.
func NewRunner(cfg Config, deps Deps) (*Runner, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, deps: deps, logger: deps.logger()}

	var err error
	if cfg.Planning {
		if r.planner, err = NewPlanner(deps, cfg.PlanningWorkers); err != nil {
			return nil, fmt.Errorf("planning: %w", err)
		}
	}
	if r.negotiator, err = NewNegotiator(deps, cfg.NegotiationRounds, cfg.NegotiationWorkers); err != nil {
		return nil, fmt.Errorf("negotiation: %w", err)
	}
	if r.orders, err = NewOrderCollector(deps, cfg.OrderWorkers); err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	if cfg.StateUpdates {
		if r.states, err = NewStateKeeper(deps, cfg.StateWorkers); err != nil {
			return nil, fmt.Errorf("state: %w", err)
		}
	}
	return r, nil
}

// RunPhase runs the current phase of the engine.
//
// # Description
//
// Movement phases run planning (when enabled) and negotiation before
// orders. Retreat and adjustment phases only collect orders. With state
// updates enabled every phase ends with a state update round.
//
// # Outputs
//
//	PhaseReport - what was produced, even when error is non-nil.
//	error       - ctx.Err() if the phase was cut short between rounds.
func (r *Runner) RunPhase(ctx context.Context) (PhaseReport, error) {
	start := time.Now()
	phase := r.deps.Engine.CurrentPhase()
	r.deps.History.AddPhase(phase)
	report := PhaseReport{Phase: phase}
	logger := r.logger.With(slog.String("phase", phase))
	logger.Info("phase started")

	if game.IsMovementPhase(phase) {
		if r.planner != nil {
			plans, summary, err := r.planner.Run(ctx)
			report.Plans = plans
			report.Rounds = append(report.Rounds, summary...)
			if err != nil {
				return report, err
			}
		}
		msgs, summary, err := r.negotiator.Run(ctx)
		report.Messages = msgs
		report.Rounds = append(report.Rounds, summary...)
		if err != nil {
			return report, err
		}
	}

	orders, summary, err := r.orders.Run(ctx)
	report.Orders = orders
	report.Rounds = append(report.Rounds, summary...)
	if err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	if r.states != nil {
		states, summary, err := r.states.Update(ctx)
		report.States = states
		report.Rounds = append(report.Rounds, summary...)
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
	}

	report.Duration = time.Since(start)
	logger.Info("phase complete",
		slog.Int("messages", len(report.Messages)),
		slog.Int("order_sets", len(report.Orders)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// InitializeStates runs the opening state round. It is a no-op returning
// nil when state updates are disabled.
func (r *Runner) InitializeStates(ctx context.Context) (map[game.Power]agent.State, []dispatch.RoundSummary, error) {
	if r.states == nil {
		return nil, nil, nil
	}
	return r.states.Initialize(ctx)
}

// RunGame plays phases until the game ends or passes MaxYear.
//
// # Description
//
// With state updates enabled the agents' states are initialized first.
// Each iteration then runs the current phase and asks the engine to
// process it. The loop stops when the engine reports the game done, or
// before running a phase whose year is past MaxYear.
//
// # Outputs
//
//	[]PhaseReport - one report per phase run, including a partial last one
//	                when error is non-nil.
//	error         - ErrNotProcessable, a processing error or ctx.Err().
func (r *Runner) RunGame(ctx context.Context) ([]PhaseReport, error) {
	proc, ok := r.deps.Engine.(game.Processor)
	if !ok {
		return nil, ErrNotProcessable
	}
	if _, _, err := r.InitializeStates(ctx); err != nil {
		return nil, fmt.Errorf("initialize states: %w", err)
	}

	var reports []PhaseReport
	for !proc.IsDone() {
		phase := r.deps.Engine.CurrentPhase()
		if year, ok := game.PhaseYear(phase); ok && r.cfg.MaxYear > 0 && year > r.cfg.MaxYear {
			r.logger.Info("max year reached", slog.String("phase", phase), slog.Int("max_year", r.cfg.MaxYear))
			break
		}
		report, err := r.RunPhase(ctx)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
		if err := proc.Process(); err != nil {
			return reports, fmt.Errorf("process %s: %w", phase, err)
		}
	}
	r.logger.Info("game complete", slog.Int("phases", len(reports)))
	return reports, nil
}
