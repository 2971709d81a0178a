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

// Negotiator runs the message rounds of a movement phase.
type Negotiator struct {
	deps       Deps
	rounds     int
	dispatcher *dispatch.Dispatcher[[]game.MessageRecord]
	logger     *slog.Logger
}

// NewNegotiator creates a Negotiator running rounds rounds on a pool of
// workers. workers must be chosen explicitly; see dispatch.Config.
func NewNegotiator(deps Deps, rounds, workers int) (*Negotiator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	d, err := dispatch.NewDispatcher[[]game.MessageRecord](
		dispatch.Config{Name: "negotiation", Workers: workers}, deps.logger())
	if err != nil {
		return nil, err
	}
	return &Negotiator{
		deps:       deps,
		rounds:     rounds,
		dispatcher: d,
		logger:     deps.logger().With(slog.String("stage", "negotiation")),
	}, nil
}

// Run executes every negotiation round of the current phase.
//
// # Description
//
// Each round, every eligible power produces zero or more messages. A unit
// that yields none, or that fails, counts one conversation error against
// the power's model. Delivered messages are rechecked against the game's
// powers (an unknown recipient becomes GLOBAL), injected into the engine
// and appended to the history, in completion order.
//
// # Outputs
//
//	[]game.MessageRecord     - messages delivered, in delivery order.
//	[]dispatch.RoundSummary  - one per round run.
//	error                    - ctx.Err() if stopped between rounds.
func (n *Negotiator) Run(ctx context.Context) ([]game.MessageRecord, []dispatch.RoundSummary, error) {
	phase := n.deps.Engine.CurrentPhase()
	known := make(map[string]bool)
	for _, p := range n.deps.Engine.Powers() {
		known[string(p)] = true
	}

	var delivered []game.MessageRecord
	plan := func(round int) []dispatch.Unit[[]game.MessageRecord] {
		active := n.deps.Engine.ActivePowers()
		var units []dispatch.Unit[[]game.MessageRecord]
		for _, p := range n.deps.eligible() {
			prompt := n.deps.Prompter.ConversationPrompt(phase, p.power, p.universe, round)
			a := p.agent
			units = append(units, dispatch.Unit[[]game.MessageRecord]{
				Key: string(p.power),
				Run: func(ctx context.Context) ([]game.MessageRecord, error) {
					return a.ConversationReply(ctx, prompt, active), nil
				},
			})
		}
		return units
	}

	collect := func(out dispatch.Outcome[[]game.MessageRecord]) {
		power := game.Power(out.Key)
		a := n.deps.Agents[power]
		if out.Err != nil || len(out.Value) == 0 {
			n.logger.Warn("no messages from power",
				slog.String("power", out.Key),
				slog.Int("round", out.Round+1))
			a.RecordConversationError()
			return
		}
		for _, msg := range out.Value {
			if !msg.IsGlobal() && !known[msg.Recipient] {
				n.logger.Warn("unknown recipient, sending as global",
					slog.String("power", out.Key),
					slog.String("recipient", msg.Recipient))
				msg.Recipient = game.GlobalRecipient
			}
			if err := n.deps.Engine.AddMessage(phase, msg); err != nil {
				n.logger.Error("engine rejected message",
					slog.String("power", out.Key),
					slog.String("error", err.Error()))
				continue
			}
			n.deps.History.AddMessage(phase, msg)
			delivered = append(delivered, msg)
		}
	}

	summaries, err := n.dispatcher.Run(ctx, n.rounds, plan, collect)
	return delivered, summaries, err
}
