// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orders turns free model text into a legal order set for one power.
//
// # Description
//
// Three pieces, used in sequence by the agent:
//
//   - Extractor: recovers the raw "orders" payload from text using an
//     ordered list of strategies. First strategy that yields a payload wins.
//   - Validate: reconciles candidates against the legal universe and fills
//     every uncovered slot.
//   - Fallback: the total, deterministic default set.
//
// Nothing in this package returns an error for malformed model output. Bad
// text degrades to the next strategy, then to "no payload".
//
// # Thread Safety
//
// All exported functions and Extractor methods are safe for concurrent use.
package orders

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// Strategy names, also used as the "strategy" log attribute.
const (
	StrategyLabelled    = "labelled"
	StrategyInline      = "inline"
	StrategyJSONFence   = "json_fence"
	StrategyDoubleBrace = "double_brace"
)

// Strategy locates a candidate payload fragment in raw text.
//
// Capture returns the fragment (with or without its outer braces) and true,
// or "" and false when the strategy does not apply to the text.
type Strategy interface {
	Name() string
	Capture(text string) (string, bool)
}

// RegexStrategy captures the first submatch of a pattern.
type RegexStrategy struct {
	name    string
	pattern *regexp.Regexp
}

// NewRegexStrategy builds a Strategy from a pattern with one capture group.
func NewRegexStrategy(name string, pattern *regexp.Regexp) RegexStrategy {
	return RegexStrategy{name: name, pattern: pattern}
}

// Name implements Strategy.
func (s RegexStrategy) Name() string { return s.name }

// Capture implements Strategy.
func (s RegexStrategy) Capture(text string) (string, bool) {
	m := s.pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

var (
	// labelledPattern is greedy: it spans from the first brace after the label
	// to the last closing brace in the text.
	labelledPattern = regexp.MustCompile(`(?s)PARSABLE OUTPUT:\s*(\{.*\})`)

	// inlinePattern captures the object body without its braces and only
	// matches when the object closes the text.
	inlinePattern = regexp.MustCompile(`(?s)PARSABLE OUTPUT\s*\{(.*?)\}\s*$`)

	jsonFencePattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

	// doubleBracePattern matches an unlabelled templated object "{{ ... }}".
	doubleBracePattern = regexp.MustCompile(`(?s)(\{\{.*\}\})`)

	// ordersListPattern is the last-resort recovery for payloads that are not
	// valid JSON but still carry a recognizable orders list.
	ordersListPattern = regexp.MustCompile(`["']orders["']\s*:\s*\[([^\]]*)\]`)
)

// DefaultStrategies returns the standard strategy chain in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewRegexStrategy(StrategyLabelled, labelledPattern),
		NewRegexStrategy(StrategyInline, inlinePattern),
		NewRegexStrategy(StrategyJSONFence, jsonFencePattern),
		NewRegexStrategy(StrategyDoubleBrace, doubleBracePattern),
	}
}

// Payload is a successfully extracted orders value.
type Payload struct {
	// Orders is the raw value found under the "orders" key. It is usually
	// []any but is not checked here; Validate handles any shape.
	Orders any

	// Strategy is the name of the strategy that produced the payload.
	Strategy string

	// Recovered is true when the payload came from the literal-list
	// recovery rather than a JSON decode.
	Recovered bool
}

// Extractor runs a strategy chain over model text.
type Extractor struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewExtractor creates an Extractor. With no strategies it uses
// DefaultStrategies. A nil logger falls back to slog.Default().
func NewExtractor(logger *slog.Logger, strategies ...Strategy) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{
		strategies: strategies,
		logger:     logger.With(slog.String("component", "order_extractor")),
	}
}

// Extract recovers the orders payload from text.
//
// # Description
//
// Each strategy is tried in order. A strategy succeeds when its captured
// fragment, after normalization, either decodes as a JSON object carrying a
// non-null "orders" key, or fails to decode but contains a recoverable
// literal orders list. A strategy that matches but yields nothing passes
// control to the next one.
//
// # Outputs
//
//	Payload - the extracted value, valid only when ok is true.
//	bool    - false when no strategy produced a payload.
func (e *Extractor) Extract(text string) (Payload, bool) {
	for _, s := range e.strategies {
		fragment, ok := s.Capture(text)
		if !ok {
			continue
		}
		normalized := Normalize(fragment)
		value, recovered, ok := decodeOrders(normalized)
		if !ok {
			e.logger.Debug("strategy matched without usable payload",
				slog.String("strategy", s.Name()),
				slog.Int("fragment_len", len(fragment)))
			continue
		}
		return Payload{Orders: value, Strategy: s.Name(), Recovered: recovered}, true
	}
	return Payload{}, false
}

// Normalize prepares a captured fragment for JSON decoding.
//
// A fragment wrapped in doubled braces loses exactly one layer. A fragment
// that already starts with "{" is kept. Anything else is wrapped in braces.
func Normalize(fragment string) string {
	s := strings.TrimSpace(fragment)
	switch {
	case strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}"):
		return strings.TrimSpace(s[1 : len(s)-1])
	case strings.HasPrefix(s, "{"):
		return s
	default:
		return "{" + s + "}"
	}
}

// decodeOrders returns the orders value and whether it came from the literal
// recovery path.
func decodeOrders(normalized string) (any, bool, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(normalized), &obj); err == nil {
		v, present := obj["orders"]
		if !present || v == nil {
			return nil, false, false
		}
		return v, false, true
	}

	m := ordersListPattern.FindStringSubmatch(normalized)
	if len(m) < 2 {
		return nil, false, false
	}
	list, err := ParseLiteralList("[" + m[1] + "]")
	if err != nil {
		return nil, false, false
	}
	return list, true, true
}
