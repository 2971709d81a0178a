// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history records what happened in each phase: messages in the
// order they were collected, planning directives, and submitted orders.
//
// # Thread Safety
//
// History is safe for concurrent use. Writes come from the dispatcher's
// collecting goroutine while prompt builders on pool goroutines read.
package history

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

// Entry is one message tagged with the phase it was sent in.
type Entry struct {
	Phase   string             `json:"phase" yaml:"phase"`
	Message game.MessageRecord `json:"message" yaml:"message"`
}

// Phase is a copy of everything recorded for one phase.
type Phase struct {
	Name     string                  `json:"name" yaml:"name"`
	Messages []game.MessageRecord    `json:"messages" yaml:"messages"`
	Plans    map[game.Power]string   `json:"plans,omitempty" yaml:"plans,omitempty"`
	Orders   map[game.Power][]string `json:"orders,omitempty" yaml:"orders,omitempty"`

	// Results holds adjudication results aligned with Orders. An empty
	// inner slice means the order succeeded.
	Results map[game.Power][][]string `json:"results,omitempty" yaml:"results,omitempty"`
}

// History is the log of every phase in a game.
type History struct {
	mu     sync.RWMutex
	phases []*Phase
}

// New returns an empty History.
func New() *History {
	return &History{}
}

// phase returns the named phase, creating it at the end. Caller holds mu.
func (h *History) phase(name string) *Phase {
	for _, p := range h.phases {
		if p.Name == name {
			return p
		}
	}
	p := &Phase{
		Name:    name,
		Plans:   make(map[game.Power]string),
		Orders:  make(map[game.Power][]string),
		Results: make(map[game.Power][][]string),
	}
	h.phases = append(h.phases, p)
	return p
}

// AddPhase registers a phase if it is not known yet.
func (h *History) AddPhase(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phase(name)
}

// AddMessage appends a message to a phase.
func (h *History) AddMessage(phase string, msg game.MessageRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.phase(phase)
	p.Messages = append(p.Messages, msg)
}

// SetPlan stores a power's planning directive, replacing any earlier one.
func (h *History) SetPlan(phase string, power game.Power, plan string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phase(phase).Plans[power] = plan
}

// AddOrders appends orders and their results for a power. results is padded
// with empty entries so it lines up with orders.
func (h *History) AddOrders(phase string, power game.Power, orders []string, results [][]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.phase(phase)
	padded := make([][]string, len(orders))
	copy(padded, results)
	p.Orders[power] = append(p.Orders[power], orders...)
	p.Results[power] = append(p.Results[power], padded...)
}

// Plan returns a power's directive for a phase.
func (h *History) Plan(phase string, power game.Power) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.phases {
		if p.Name == phase {
			plan, ok := p.Plans[power]
			return plan, ok
		}
	}
	return "", false
}

// PhaseNames returns phase names in the order they were first recorded.
func (h *History) PhaseNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, len(h.phases))
	for i, p := range h.phases {
		names[i] = p.Name
	}
	return names
}

// Phase returns a deep copy of the named phase.
func (h *History) Phase(name string) (Phase, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.phases {
		if p.Name == name {
			return p.clone(), true
		}
	}
	return Phase{}, false
}

// Phases returns deep copies of every phase, oldest first.
func (h *History) Phases() []Phase {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Phase, len(h.phases))
	for i, p := range h.phases {
		out[i] = p.clone()
	}
	return out
}

// VisibleTo returns the messages a power can see, oldest first: broadcasts,
// messages it sent and messages addressed to it.
func (h *History) VisibleTo(power game.Power) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Entry
	for _, p := range h.phases {
		for _, m := range p.Messages {
			if visible(m, power) {
				out = append(out, Entry{Phase: p.Name, Message: m})
			}
		}
	}
	return out
}

func visible(m game.MessageRecord, power game.Power) bool {
	return m.IsGlobal() || m.Sender == power || m.Recipient == string(power)
}

// Render formats the last numPhases phases from power's point of view for
// use in a prompt. numPhases <= 0 renders every phase.
func (h *History) Render(power game.Power, numPhases int) string {
	phases := h.Phases()
	var b strings.Builder
	b.WriteString("COMMUNICATION HISTORY:\n")
	if len(phases) == 0 {
		b.WriteString("\n(No game phases recorded yet)\n")
		return b.String()
	}
	if numPhases > 0 && len(phases) > numPhases {
		phases = phases[len(phases)-numPhases:]
	}

	for i, p := range phases {
		latest := i == len(phases)-1
		global, private := p.split(power)
		if len(global) == 0 && len(private) == 0 && !latest {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", p.Name)
		if len(global) > 0 {
			b.WriteString("\nGLOBAL:\n")
			for _, m := range global {
				fmt.Fprintf(&b, " %s: %s\n", m.Sender, m.Content)
			}
		}
		if len(private) > 0 {
			b.WriteString("\nPRIVATE:\n")
			for _, m := range private {
				fmt.Fprintf(&b, " %s -> %s: %s\n", m.Sender, m.Recipient, m.Content)
			}
		}
		p.renderOrders(&b)
		b.WriteString(strings.Repeat("-", 50) + "\n")
	}
	return b.String()
}

func (p Phase) split(power game.Power) (global, private []game.MessageRecord) {
	for _, m := range p.Messages {
		switch {
		case m.IsGlobal():
			global = append(global, m)
		case m.Sender == power || m.Recipient == string(power):
			private = append(private, m)
		}
	}
	return global, private
}

func (p Phase) renderOrders(b *strings.Builder) {
	if len(p.Orders) == 0 {
		return
	}
	b.WriteString("\nORDERS:\n")
	for _, power := range slices.Sorted(maps.Keys(p.Orders)) {
		orders := p.Orders[power]
		fmt.Fprintf(b, "%s:\n", power)
		results := p.Results[power]
		for i, order := range orders {
			outcome := "successful"
			if i < len(results) && len(results[i]) > 0 {
				outcome = strings.Join(results[i], ", ")
			}
			fmt.Fprintf(b, "  %s (%s)\n", order, outcome)
		}
	}
}

func (p *Phase) clone() Phase {
	out := Phase{
		Name:     p.Name,
		Messages: append([]game.MessageRecord(nil), p.Messages...),
		Plans:    make(map[game.Power]string, len(p.Plans)),
		Orders:   make(map[game.Power][]string, len(p.Orders)),
		Results:  make(map[game.Power][][]string, len(p.Results)),
	}
	for k, v := range p.Plans {
		out.Plans[k] = v
	}
	for k, v := range p.Orders {
		out.Orders[k] = append([]string(nil), v...)
	}
	for k, v := range p.Results {
		rs := make([][]string, len(v))
		for i, r := range v {
			rs[i] = append([]string(nil), r...)
		}
		out.Results[k] = rs
	}
	return out
}
