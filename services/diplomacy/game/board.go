// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package game

import (
	"fmt"
	"sync"
)

// PostedMessage is a message as recorded by a Board.
type PostedMessage struct {
	Phase string        `json:"phase" yaml:"phase"`
	Msg   MessageRecord `json:"message" yaml:"message"`
}

// PhaseSetup is a phase queued on a Board for Process to move to.
type PhaseSetup struct {
	Phase      string             `json:"phase" yaml:"phase"`
	Legal      map[Power]Universe `json:"-" yaml:"-"`
	Eliminated []Power            `json:"eliminated,omitempty" yaml:"eliminated,omitempty"`
}

// Board is an in-memory Engine and Processor.
//
// # Description
//
// Board holds a fixed set of powers with their legal actions and records the
// orders and messages injected by the pipeline. It does no rules
// processing: Process archives the orders and switches to the next queued
// phase, and the game is done once the queue runs out.
//
// # Thread Safety
//
// Board is safe for concurrent use.
type Board struct {
	mu         sync.Mutex
	phase      string
	powers     []Power
	eliminated map[Power]bool
	legal      map[Power]Universe
	orders     map[Power][]string
	messages   []PostedMessage
	queue      []PhaseSetup
	history    map[string]map[Power][]string
	done       bool
}

// NewBoard creates a board for phase with the given powers in order.
func NewBoard(phase string, powers ...Power) *Board {
	return &Board{
		phase:      phase,
		powers:     append([]Power(nil), powers...),
		eliminated: make(map[Power]bool),
		legal:      make(map[Power]Universe),
		orders:     make(map[Power][]string),
		history:    make(map[string]map[Power][]string),
	}
}

// Queue appends phases for Process to move through, in order.
func (b *Board) Queue(setups ...PhaseSetup) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, setups...)
}

// Process implements Processor.
//
// # Description
//
// The current orders are archived under the current phase. The next queued
// phase then replaces the phase name and legal actions, and its
// eliminations are applied. With nothing queued the board is marked done
// and stays on its phase.
//
// # Outputs
//
//	error - ErrGameDone when called after the game ended.
func (b *Board) Process() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return fmt.Errorf("process %s: %w", b.phase, ErrGameDone)
	}
	b.history[b.phase] = b.orders
	b.orders = make(map[Power][]string)
	if len(b.queue) == 0 {
		b.done = true
		return nil
	}
	next := b.queue[0]
	b.queue = b.queue[1:]
	b.phase = next.Phase
	b.legal = make(map[Power]Universe, len(next.Legal))
	for p, u := range next.Legal {
		b.legal[p] = u
	}
	for _, p := range next.Eliminated {
		b.eliminated[p] = true
	}
	return nil
}

// IsDone implements Processor.
func (b *Board) IsDone() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// ProcessedOrders returns the orders archived by Process for a phase.
func (b *Board) ProcessedOrders(phase string) map[Power][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Power][]string, len(b.history[phase]))
	for p, o := range b.history[phase] {
		out[p] = append([]string(nil), o...)
	}
	return out
}

// SetLegalActions replaces the universe for a power.
func (b *Board) SetLegalActions(power Power, u Universe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.legal[power] = u
}

// Eliminate marks a power as eliminated.
func (b *Board) Eliminate(power Power) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eliminated[power] = true
}

// CurrentPhase implements Engine.
func (b *Board) CurrentPhase() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Powers implements Engine.
func (b *Board) Powers() []Power {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Power(nil), b.powers...)
}

// ActivePowers implements Engine.
func (b *Board) ActivePowers() []Power {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Power, 0, len(b.powers))
	for _, p := range b.powers {
		if !b.eliminated[p] {
			out = append(out, p)
		}
	}
	return out
}

// LegalActions implements Engine.
func (b *Board) LegalActions(power Power) Universe {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.legal[power]
}

// SetOrders implements Engine.
func (b *Board) SetOrders(power Power, orders []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.known(power) {
		return fmt.Errorf("set orders for %s: %w", power, ErrUnknownPower)
	}
	if b.eliminated[power] {
		return fmt.Errorf("set orders for %s: %w", power, ErrPowerEliminated)
	}
	b.orders[power] = append([]string(nil), orders...)
	return nil
}

// AddMessage implements Engine.
func (b *Board) AddMessage(phase string, msg MessageRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.known(msg.Sender) {
		return fmt.Errorf("add message from %s: %w", msg.Sender, ErrUnknownPower)
	}
	if msg.Recipient != GlobalRecipient && !b.known(Power(msg.Recipient)) {
		return fmt.Errorf("add message to %s: %w", msg.Recipient, ErrUnknownPower)
	}
	b.messages = append(b.messages, PostedMessage{Phase: phase, Msg: msg})
	return nil
}

// Orders returns a copy of the submitted orders keyed by power.
func (b *Board) Orders() map[Power][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Power][]string, len(b.orders))
	for p, o := range b.orders {
		out[p] = append([]string(nil), o...)
	}
	return out
}

// Messages returns the posted messages in injection order.
func (b *Board) Messages() []PostedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PostedMessage(nil), b.messages...)
}

// known must be called with mu held.
func (b *Board) known(power Power) bool {
	for _, p := range b.powers {
		if p == power {
			return true
		}
	}
	return false
}
