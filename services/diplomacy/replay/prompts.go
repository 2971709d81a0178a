// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package replay

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/agent"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/history"
)

const (
	planningInstruction = "Write a short strategic directive for this phase."

	negotiationInstruction = `Send any messages as blocks of the form
{{"message_type": "global" or "private", "recipient": "POWER", "content": "text"}}`

	ordersInstruction = `Choose one order per location. End your reply with
PARSABLE OUTPUT: {"orders": ["..."]}`

	initialStateInstruction = `Set your opening goals and your stance toward each other power.
Reply with a JSON object:
{"initial_goals": ["..."], "initial_relationships": {"POWER": "Ally|Neutral|Enemy"}}`

	stateUpdateInstruction = `Review the phase and revise your goals and relationships.
Reply with a JSON object:
{"updated_goals": ["..."], "updated_relationships": {"POWER": "Ally|Neutral|Enemy"}}`
)

// Prompts is a turn.Prompter and turn.StatePrompter that renders the stage header, the power's
// view of the history and its legal actions.
type Prompts struct {
	History *history.History

	// Phases limits how many recent phases are rendered. Zero renders all.
	Phases int
}

// PlanningPrompt implements turn.Prompter.
func (p Prompts) PlanningPrompt(phase string, power game.Power, universe game.Universe) string {
	return p.build(stageHeader(StagePlanning, 0), phase, power, universe, planningInstruction)
}

// ConversationPrompt implements turn.Prompter.
func (p Prompts) ConversationPrompt(phase string, power game.Power, universe game.Universe, round int) string {
	return p.build(stageHeader(StageNegotiation, round), phase, power, universe, negotiationInstruction)
}

// OrdersPrompt implements turn.Prompter.
func (p Prompts) OrdersPrompt(phase string, power game.Power, universe game.Universe) string {
	return p.build(stageHeader(StageOrders, 0), phase, power, universe, ordersInstruction)
}

// InitialStatePrompt implements turn.StatePrompter.
func (p Prompts) InitialStatePrompt(phase string, power game.Power, state agent.State) string {
	return p.buildState(stageHeader(StageInitialState, 0), phase, power, state, initialStateInstruction)
}

// StateUpdatePrompt implements turn.StatePrompter.
func (p Prompts) StateUpdatePrompt(phase string, power game.Power, state agent.State) string {
	return p.buildState(stageHeader(StageState, 0), phase, power, state, stateUpdateInstruction)
}

func (p Prompts) buildState(header, phase string, power game.Power, state agent.State, instruction string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	fmt.Fprintf(&b, "You are playing %s. Current phase: %s.\n\n", power, phase)
	if p.History != nil {
		b.WriteString(p.History.Render(power, p.Phases))
	}
	b.WriteString("\nCURRENT GOALS:\n")
	if len(state.Goals) == 0 {
		b.WriteString(" (none)\n")
	}
	for _, g := range state.Goals {
		fmt.Fprintf(&b, " - %s\n", g)
	}
	b.WriteString("\nRELATIONSHIPS:\n")
	for _, other := range slices.Sorted(maps.Keys(state.Relationships)) {
		fmt.Fprintf(&b, " %s: %s\n", other, state.Relationships[other])
	}
	b.WriteString("\n")
	b.WriteString(instruction)
	b.WriteString("\n")
	return b.String()
}

func (p Prompts) build(header, phase string, power game.Power, universe game.Universe, instruction string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	fmt.Fprintf(&b, "You are playing %s. Current phase: %s.\n\n", power, phase)
	if p.History != nil {
		b.WriteString(p.History.Render(power, p.Phases))
	}
	b.WriteString("\nPOSSIBLE ORDERS:\n")
	universe.Each(func(location string, actions []string) {
		fmt.Fprintf(&b, " %s: %s\n", location, strings.Join(actions, ", "))
	})
	b.WriteString("\n")
	b.WriteString(instruction)
	b.WriteString("\n")
	return b.String()
}
