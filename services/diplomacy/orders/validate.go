// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orders

import (
	"strings"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

// holdSuffix marks a hold order ("A PAR H"). Matching on the separated token
// keeps moves into provinces ending in H ("F LON - NTH") out.
const holdSuffix = " H"

// originKeyLen is the length of a province abbreviation. Coast-qualified
// locations ("STP/SC") share the key of their province.
const originKeyLen = 3

// Result is the detailed outcome of Reconcile.
type Result struct {
	// Orders is the final order set.
	Orders []string

	// Accepted counts candidates that matched a legal action.
	Accepted int

	// Rejected holds trimmed string candidates that were not legal.
	Rejected []string

	// Skipped counts candidates that were legal but dropped because their
	// origin slot was already covered, plus any non-string elements.
	Skipped int

	// Filled counts slots completed with a default action.
	Filled int

	// FellBack is true when Orders is Fallback(universe).
	FellBack bool
}

// Validate reconciles candidates with the legal universe.
//
// # Description
//
// candidates is whatever the extractor found under "orders". Anything other
// than a list falls back. String elements are trimmed and accepted when they
// equal a legal action in any slot. Each accepted order covers the slot named
// by the first three characters of its second token. Uncovered slots get a
// default action. If nothing was accepted the result is Fallback(universe).
//
// # Thread Safety
//
// Safe for concurrent use. universe is only read.
func Validate(candidates any, universe game.Universe) []string {
	return Reconcile(candidates, universe).Orders
}

// Reconcile is Validate with the bookkeeping exposed for logging.
func Reconcile(candidates any, universe game.Universe) Result {
	list, ok := asList(candidates)
	if !ok {
		return Result{Orders: Fallback(universe), FellBack: true}
	}

	slotKeys := make(map[string]bool, universe.Len())
	universe.Each(func(location string, _ []string) {
		slotKeys[originKey(location)] = true
	})

	var res Result
	covered := make(map[string]bool, universe.Len())
	for _, c := range list {
		s, isString := c.(string)
		if !isString {
			res.Skipped++
			continue
		}
		s = strings.TrimSpace(s)
		if !universe.Contains(s) {
			res.Rejected = append(res.Rejected, s)
			continue
		}
		key := OriginSlot(s)
		if slotKeys[key] {
			if covered[key] {
				res.Skipped++
				continue
			}
			covered[key] = true
		}
		res.Orders = append(res.Orders, s)
		res.Accepted++
	}

	if res.Accepted == 0 {
		res.Orders = Fallback(universe)
		res.FellBack = true
		return res
	}

	universe.Each(func(location string, actions []string) {
		if len(actions) == 0 || covered[originKey(location)] {
			return
		}
		res.Orders = append(res.Orders, defaultAction(actions))
		res.Filled++
	})
	return res
}

// Fallback returns one default action per slot with a non-empty legal set,
// in slot order. A hold is preferred, otherwise the first listed action.
// Fallback is total and deterministic; the result is never nil.
func Fallback(universe game.Universe) []string {
	out := make([]string, 0, universe.Len())
	universe.Each(func(_ string, actions []string) {
		if len(actions) == 0 {
			return
		}
		out = append(out, defaultAction(actions))
	})
	return out
}

// OriginSlot derives the slot key an order acts from: the first three
// characters of its second whitespace-delimited token. Orders with fewer than
// two tokens ("WAIVE") have an empty origin.
func OriginSlot(order string) string {
	fields := strings.Fields(order)
	if len(fields) < 2 {
		return ""
	}
	return originKey(fields[1])
}

// IsHold reports whether an action is a hold order.
func IsHold(action string) bool {
	return strings.HasSuffix(action, holdSuffix)
}

func originKey(location string) string {
	if len(location) > originKeyLen {
		return location[:originKeyLen]
	}
	return location
}

func defaultAction(actions []string) string {
	for _, a := range actions {
		if IsHold(a) {
			return a
		}
	}
	return actions[0]
}

func asList(candidates any) ([]any, bool) {
	switch v := candidates.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
