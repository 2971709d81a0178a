// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assign binds each power to the model that plays it for a run.
package assign

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/AleutianAI/AleutianDiplomacy/pkg/validation"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

// DefaultPool is the model pool used when none is configured.
var DefaultPool = []string{
	"o3-mini",
	"gemini-1.5-flash",
	"gemini-2.0-flash",
	"gemini-2.0-flash-lite",
	"gemini-1.5-pro",
	"gpt-4o-mini",
	"claude-3-5-haiku-20241022",
}

var (
	// ErrModelCount is returned when an explicit list does not name one
	// model per power.
	ErrModelCount = errors.New("assign: wrong number of models")

	// ErrEmptyPool is returned when there is nothing to draw from.
	ErrEmptyPool = errors.New("assign: empty model pool")
)

// Assignment maps each power to its model id.
type Assignment map[game.Power]string

// Models returns the distinct model ids in power order.
func (a Assignment) Models() []string {
	seen := make(map[string]bool, len(a))
	var out []string
	for _, p := range game.StandardPowers {
		m, ok := a[p]
		if !ok || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// ParseModelList maps a comma separated list onto the standard powers in
// order. The list must have exactly one entry per power.
func ParseModelList(csv string) (Assignment, error) {
	parts := strings.Split(csv, ",")
	if len(parts) != len(game.StandardPowers) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrModelCount, len(game.StandardPowers), len(parts))
	}
	out := make(Assignment, len(parts))
	for i, p := range game.StandardPowers {
		model := strings.TrimSpace(parts[i])
		if model == "" {
			return nil, fmt.Errorf("%w: empty entry for %s", ErrModelCount, p)
		}
		if err := validation.ValidateModelID(model); err != nil {
			return nil, fmt.Errorf("model for %s: %w", p, err)
		}
		out[p] = model
	}
	return out, nil
}

// Assign draws a model for every standard power.
//
// # Description
//
// With randomize, models are drawn without replacement and the pool is
// replenished once it runs dry, so a pool of at least seven models gives
// every power a distinct model. Without randomize, power i gets
// pool[i mod len(pool)].
//
// # Inputs
//
//	pool      - candidate model ids. Must not be empty.
//	randomize - draw at random instead of by index.
//	rng       - random source; nil uses the global source.
func Assign(pool []string, randomize bool, rng *rand.Rand) (Assignment, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}
	out := make(Assignment, len(game.StandardPowers))
	if !randomize {
		for i, p := range game.StandardPowers {
			out[p] = pool[i%len(pool)]
		}
		return out, nil
	}

	intn := rand.IntN
	if rng != nil {
		intn = rng.IntN
	}
	var available []string
	for _, p := range game.StandardPowers {
		if len(available) == 0 {
			available = append(available[:0], pool...)
		}
		i := intn(len(available))
		out[p] = available[i]
		available = append(available[:i], available[i+1:]...)
	}
	return out, nil
}
