// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package messages recovers addressed chat messages from model text.
package messages

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

// Message types understood in a block's "message_type" field.
const (
	TypeGlobal  = "global"
	TypePrivate = "private"
)

// Strategy names, used as the "strategy" log attribute.
const (
	StrategyDoubleBrace = "double_brace"
	StrategyLabelled    = "labelled"
	StrategyJSONFence   = "json_fence"
)

// BlockStrategy finds every candidate block in a response.
type BlockStrategy interface {
	Name() string
	Blocks(text string) []string
}

// RegexBlocks collects the first submatch of every non-overlapping match.
type RegexBlocks struct {
	name    string
	pattern *regexp.Regexp
}

// NewRegexBlocks builds a BlockStrategy from a pattern with one capture group.
func NewRegexBlocks(name string, pattern *regexp.Regexp) RegexBlocks {
	return RegexBlocks{name: name, pattern: pattern}
}

// Name implements BlockStrategy.
func (s RegexBlocks) Name() string { return s.name }

// Blocks implements BlockStrategy.
func (s RegexBlocks) Blocks(text string) []string {
	var out []string
	for _, m := range s.pattern.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 {
			out = append(out, m[1])
		}
	}
	return out
}

var (
	doubleBraceBlocks = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)
	labelledBlocks    = regexp.MustCompile(`(?s)PARSABLE OUTPUT:\s*\{(.*?)\}`)
	jsonFenceBlocks   = regexp.MustCompile("(?s)```json\n(.*?)\n```")
)

// DefaultStrategies returns the standard block strategies in priority order.
func DefaultStrategies() []BlockStrategy {
	return []BlockStrategy{
		NewRegexBlocks(StrategyDoubleBrace, doubleBraceBlocks),
		NewRegexBlocks(StrategyLabelled, labelledBlocks),
		NewRegexBlocks(StrategyJSONFence, jsonFenceBlocks),
	}
}

// Extractor turns a conversation reply into message records.
//
// # Description
//
// The first strategy that finds at least one block supplies all blocks for
// the response. Each block is decoded on its own; a block that does not
// decode is skipped. Records are deduplicated on their canonical JSON form.
//
// # Thread Safety
//
// Extractor is safe for concurrent use.
type Extractor struct {
	strategies []BlockStrategy
	logger     *slog.Logger
}

// NewExtractor creates an Extractor. With no strategies it uses
// DefaultStrategies. A nil logger falls back to slog.Default().
func NewExtractor(logger *slog.Logger, strategies ...BlockStrategy) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{
		strategies: strategies,
		logger:     logger.With(slog.String("component", "message_extractor")),
	}
}

// Extract returns the deduplicated messages sender wrote in text.
//
// # Inputs
//
//	text   - raw model reply. Empty text yields no records.
//	sender - the power that produced the reply.
//	active - powers that may receive private messages.
//
// # Outputs
//
//	[]game.MessageRecord - zero or more records, first occurrence order,
//	each recipient either game.GlobalRecipient or a member of active.
func (e *Extractor) Extract(text string, sender game.Power, active []game.Power) []game.MessageRecord {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		blocks   []string
		strategy string
	)
	for _, s := range e.strategies {
		if blocks = s.Blocks(text); len(blocks) > 0 {
			strategy = s.Name()
			break
		}
	}
	if len(blocks) == 0 {
		e.logger.Debug("no message blocks found", slog.String("power", string(sender)))
		return nil
	}

	activeSet := make(map[string]bool, len(active))
	for _, p := range active {
		activeSet[string(p)] = true
	}

	records := make([]game.MessageRecord, 0, len(blocks))
	for i, block := range blocks {
		rec, ok := e.record(block, sender, activeSet)
		if !ok {
			e.logger.Debug("skipping undecodable message block",
				slog.String("power", string(sender)),
				slog.String("strategy", strategy),
				slog.Int("block", i))
			continue
		}
		records = append(records, rec)
	}
	return Dedupe(records)
}

func (e *Extractor) record(block string, sender game.Power, active map[string]bool) (game.MessageRecord, bool) {
	data, ok := decodeBlock(block)
	if !ok {
		return game.MessageRecord{}, false
	}

	messageType, ok := stringField(data, "message_type", TypeGlobal)
	if !ok {
		return game.MessageRecord{}, false
	}
	content, ok := stringField(data, "content", "")
	if !ok {
		return game.MessageRecord{}, false
	}
	recipient, ok := stringField(data, "recipient", game.GlobalRecipient)
	if !ok {
		return game.MessageRecord{}, false
	}
	recipient = strings.ToUpper(strings.TrimSpace(recipient))

	switch {
	case messageType != TypePrivate:
		recipient = game.GlobalRecipient
	case recipient == game.GlobalRecipient:
		e.logger.Warn("private message without recipient, sending as global",
			slog.String("power", string(sender)))
	case !active[recipient]:
		e.logger.Warn("invalid recipient, sending as global",
			slog.String("power", string(sender)),
			slog.String("recipient", recipient))
		recipient = game.GlobalRecipient
	}

	e.logger.Debug("message extracted",
		slog.String("power", string(sender)),
		slog.String("message_type", messageType),
		slog.String("recipient", recipient))

	return game.MessageRecord{
		Sender:    sender,
		Recipient: recipient,
		Content:   strings.TrimSpace(content),
	}, true
}

// Dedupe removes records whose canonical JSON form was already seen,
// keeping the first occurrence.
func Dedupe(records []game.MessageRecord) []game.MessageRecord {
	seen := make(map[string]bool, len(records))
	out := make([]game.MessageRecord, 0, len(records))
	for _, r := range records {
		key, err := json.Marshal(r)
		if err != nil {
			continue
		}
		if seen[string(key)] {
			continue
		}
		seen[string(key)] = true
		out = append(out, r)
	}
	return out
}

func decodeBlock(block string) (map[string]any, bool) {
	s := strings.TrimSpace(block)
	if !strings.HasPrefix(s, "{") {
		s = "{" + block + "}"
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(s), &data); err != nil || data == nil {
		return nil, false
	}
	return data, true
}

// stringField reads key as a string. Absent and null use def; any other
// non-string value is reported as not ok.
func stringField(data map[string]any, key, def string) (string, bool) {
	v, present := data[key]
	if !present || v == nil {
		return def, true
	}
	s, ok := v.(string)
	return s, ok
}
