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
	"errors"
	"strconv"
	"strings"
)

// GlobalRecipient is the reserved recipient meaning "visible to all powers".
const GlobalRecipient = "GLOBAL"

// Power identifies one faction in the game, e.g. "FRANCE".
type Power string

// StandardPowers lists the seven powers of the standard map in canonical order.
var StandardPowers = []Power{
	"AUSTRIA",
	"ENGLAND",
	"FRANCE",
	"GERMANY",
	"ITALY",
	"RUSSIA",
	"TURKEY",
}

// Sentinel errors returned by Engine implementations.
var (
	// ErrUnknownPower is returned when a power is not part of the game.
	ErrUnknownPower = errors.New("unknown power")

	// ErrPowerEliminated is returned when orders target an eliminated power.
	ErrPowerEliminated = errors.New("power eliminated")

	// ErrGameDone is returned when a finished game is processed again.
	ErrGameDone = errors.New("game done")
)

// MessageRecord is one addressed message produced by an agent.
//
// Recipient is either GlobalRecipient or an active Power name. The JSON form
// is also the canonical form used for deduplication, so field order matters.
type MessageRecord struct {
	Sender    Power  `json:"sender" yaml:"sender"`
	Recipient string `json:"recipient" yaml:"recipient"`
	Content   string `json:"content" yaml:"content"`
}

// IsGlobal reports whether the message is a broadcast.
func (m MessageRecord) IsGlobal() bool {
	return m.Recipient == GlobalRecipient
}

// IsMovementPhase reports whether a short phase name ("S1901M") denotes a
// movement phase, the only phase type in which negotiation happens.
func IsMovementPhase(phase string) bool {
	return strings.HasSuffix(phase, "M")
}

// PhaseYear returns the year of a short phase name ("F1903R" gives 1903).
// ok is false when the name does not carry one.
func PhaseYear(phase string) (year int, ok bool) {
	if len(phase) < 5 {
		return 0, false
	}
	year, err := strconv.Atoi(phase[1:5])
	if err != nil {
		return 0, false
	}
	return year, true
}

// Engine is the slice of the game engine the pipeline depends on.
//
// # Description
//
// Implementations are supplied by the caller. All mutating calls are made
// from the dispatcher's collecting goroutine, one at a time, in completion
// order.
type Engine interface {
	// CurrentPhase returns the short phase name, e.g. "S1901M".
	CurrentPhase() string

	// ActivePowers returns the powers that are not eliminated.
	ActivePowers() []Power

	// Powers returns every power in the game, eliminated or not.
	Powers() []Power

	// LegalActions returns the universe for one power for the current phase.
	// The returned value must not be mutated by the caller.
	LegalActions(power Power) Universe

	// SetOrders submits a validated action set for a power.
	SetOrders(power Power, orders []string) error

	// AddMessage injects a message into the engine's log for the phase.
	AddMessage(phase string, msg MessageRecord) error
}

// Processor is implemented by engines that can resolve the current phase
// and move to the next one. A game loop needs it; a single phase does not.
type Processor interface {
	// Process resolves the submitted orders and advances the phase.
	Process() error

	// IsDone reports whether the game has ended.
	IsDone() bool
}
