// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

// RelationshipNeutral is every relationship before the model sets one.
const RelationshipNeutral = "Neutral"

// Keys of the JSON object a state reply carries.
const (
	InitialGoalsKey         = "initial_goals"
	InitialRelationshipsKey = "initial_relationships"
	UpdatedGoalsKey         = "updated_goals"
	UpdatedRelationshipsKey = "updated_relationships"
)

// State is an agent's private view of the game.
type State struct {
	Goals         []string              `json:"goals"`
	Relationships map[game.Power]string `json:"relationships"`
	Journal       []string              `json:"journal"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{
		Goals:         slices.Clone(s.Goals),
		Relationships: maps.Clone(s.Relationships),
		Journal:       slices.Clone(s.Journal),
	}
}

func newState(self game.Power, known []game.Power) State {
	rel := make(map[game.Power]string, len(known))
	for _, p := range known {
		if p != self {
			rel[p] = RelationshipNeutral
		}
	}
	return State{
		Goals:         []string{},
		Relationships: rel,
		Journal:       []string{"Agent initialized."},
	}
}

// =============================================================================
// Parsing
// =============================================================================

// StateUpdate is what a state reply asked for. A nil field was absent or
// malformed and leaves the current value alone.
type StateUpdate struct {
	Goals         []string
	Relationships map[game.Power]string

	// Strategy names the capture that produced the object.
	Strategy string
}

// stateStrategy captures a JSON object candidate from a reply.
type stateStrategy struct {
	name    string
	capture func(text string) (string, bool)
}

var stateFencePattern = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")

// stateStrategies are tried in order; the first capture that decodes to a
// JSON object wins.
var stateStrategies = []stateStrategy{
	{name: "json_fence", capture: func(text string) (string, bool) {
		m := stateFencePattern.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return m[1], true
	}},
	{name: "outer_braces", capture: func(text string) (string, bool) {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end < start {
			return "", false
		}
		return text[start : end+1], true
	}},
}

// ParseStateUpdate reads goals and relationships from a model reply.
//
// # Description
//
// A ```json fence is tried first, then the text from the first "{" to the
// last "}". goalsKey must hold a list of strings and relKey an object of
// strings. Relationship keys are upper cased and kept only when they name
// a power in known other than self.
//
// # Outputs
//
//	StateUpdate - the usable fields.
//	bool        - false when no JSON object could be decoded at all.
func ParseStateUpdate(text, goalsKey, relKey string, self game.Power, known []game.Power) (StateUpdate, bool) {
	for _, s := range stateStrategies {
		fragment, ok := s.capture(text)
		if !ok {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(fragment), &obj); err != nil || obj == nil {
			continue
		}
		up := StateUpdate{Strategy: s.name}
		if raw, ok := obj[goalsKey]; ok {
			var goals []string
			if err := json.Unmarshal(raw, &goals); err == nil && goals != nil {
				up.Goals = goals
			}
		}
		if raw, ok := obj[relKey]; ok {
			var rel map[string]string
			if err := json.Unmarshal(raw, &rel); err == nil && rel != nil {
				up.Relationships = filterRelationships(rel, self, known)
			}
		}
		return up, true
	}
	return StateUpdate{}, false
}

func filterRelationships(rel map[string]string, self game.Power, known []game.Power) map[game.Power]string {
	out := make(map[game.Power]string, len(rel))
	for k, v := range rel {
		p := game.Power(strings.ToUpper(strings.TrimSpace(k)))
		if p == self || !slices.Contains(known, p) {
			continue
		}
		out[p] = strings.TrimSpace(v)
	}
	return out
}

// =============================================================================
// Agent state operations
// =============================================================================

// State returns a copy of the agent's current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// InitializeState asks the model for opening goals and relationships.
//
// # Description
//
// The reply is expected to carry "initial_goals" and
// "initial_relationships". Goals replace the current list. Relationships
// replace the defaults when at least one names a known power. Anything
// unusable is logged and ignored.
//
// # Outputs
//
//	bool - true when any field was applied.
func (a *Agent) InitializeState(ctx context.Context, prompt, phase string) bool {
	raw := a.gen.Generate(ctx, a.system, prompt)
	up, ok := ParseStateUpdate(raw, InitialGoalsKey, InitialRelationshipsKey, a.power, a.known)
	if !ok {
		a.logger.Warn("failed to parse initial state", slog.Int("response_chars", len(raw)))
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	applied := false
	if up.Goals != nil {
		a.state.Goals = up.Goals
		a.journal(phase, fmt.Sprintf("Initial goals set: %s", strings.Join(up.Goals, "; ")))
		applied = true
	} else {
		a.logger.Warn("reply has no usable goals", slog.String("key", InitialGoalsKey))
	}
	if len(up.Relationships) > 0 {
		a.state.Relationships = up.Relationships
		a.journal(phase, "Initial relationships set: "+formatRelationships(up.Relationships))
		applied = true
	} else {
		a.logger.Warn("reply has no usable relationships", slog.String("key", InitialRelationshipsKey))
	}
	return applied
}

// UpdateState asks the model to revise goals and relationships after a
// phase.
//
// # Description
//
// The reply is expected to carry "updated_goals" and
// "updated_relationships". Goals replace the current list; relationships
// are merged into the current map.
//
// # Outputs
//
//	bool - true when any field was applied.
func (a *Agent) UpdateState(ctx context.Context, prompt, phase string) bool {
	raw := a.gen.Generate(ctx, a.system, prompt)
	up, ok := ParseStateUpdate(raw, UpdatedGoalsKey, UpdatedRelationshipsKey, a.power, a.known)
	if !ok {
		a.logger.Warn("failed to parse state update", slog.String("phase", phase), slog.Int("response_chars", len(raw)))
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	applied := false
	if up.Goals != nil {
		a.state.Goals = up.Goals
		a.journal(phase, fmt.Sprintf("Goals updated: %s", strings.Join(up.Goals, "; ")))
		applied = true
	}
	if len(up.Relationships) > 0 {
		maps.Copy(a.state.Relationships, up.Relationships)
		a.journal(phase, "Relationships updated: "+formatRelationships(up.Relationships))
		applied = true
	}
	if !applied {
		a.logger.Warn("state update had nothing usable", slog.String("phase", phase), slog.String("strategy", up.Strategy))
	}
	return applied
}

// journal must be called with mu held.
func (a *Agent) journal(phase, entry string) {
	a.state.Journal = append(a.state.Journal, fmt.Sprintf("[%s] %s", phase, entry))
}

// formatRelationships renders "ENGLAND=Ally, GERMANY=Enemy" in power order.
func formatRelationships(rel map[game.Power]string) string {
	keys := slices.Sorted(maps.Keys(rel))
	parts := make([]string, len(keys))
	for i, p := range keys {
		parts[i] = fmt.Sprintf("%s=%s", p, rel[p])
	}
	return strings.Join(parts, ", ")
}
