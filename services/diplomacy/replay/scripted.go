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
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Stage names carried on the first line of every replay prompt.
const (
	StagePlanning    = "planning"
	StageNegotiation = "negotiation"
	StageOrders      = "orders"

	StageInitialState = "initial_state"
	StageState        = "state"
)

const stagePrefix = "STAGE: "

var (
	// ErrScripted is returned for a Reply with Error set.
	ErrScripted = errors.New("replay: scripted failure")

	// ErrUnknownStage is returned when a prompt has no stage header.
	ErrUnknownStage = errors.New("replay: prompt has no stage header")
)

// Call is one recorded Generate call.
type Call struct {
	Stage  string
	Round  int
	System string
	User   string
}

// ScriptedClient is an llm.ChatClient that answers from a Script.
//
// # Description
//
// The stage is read from the prompt header written by Prompts. Negotiation
// replies are indexed by round; a round past the end of the list gets "".
//
// # Thread Safety
//
// Safe for concurrent use.
type ScriptedClient struct {
	script Script

	mu    sync.Mutex
	calls []Call
}

// NewScriptedClient returns a client answering from s.
func NewScriptedClient(s Script) *ScriptedClient {
	return &ScriptedClient{script: s}
}

// Generate implements llm.ChatClient.
func (c *ScriptedClient) Generate(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stage, round, ok := ParseStage(user)
	if !ok {
		return "", ErrUnknownStage
	}

	c.mu.Lock()
	c.calls = append(c.calls, Call{Stage: stage, Round: round, System: system, User: user})
	c.mu.Unlock()

	var r Reply
	switch stage {
	case StagePlanning:
		r = c.script.Planning
	case StageNegotiation:
		if round < len(c.script.Negotiation) {
			r = c.script.Negotiation[round]
		}
	case StageOrders:
		r = c.script.Orders
	case StageInitialState:
		r = c.script.InitialState
	case StageState:
		r = c.script.State
	}
	if r.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrScripted, r.Error)
	}
	return r.Text, nil
}

// Calls returns a copy of every call made so far.
func (c *ScriptedClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// ParseStage reads the stage header from the first line of a prompt:
// "STAGE: planning", "STAGE: negotiation 2", "STAGE: orders",
// "STAGE: initial_state" or "STAGE: state".
func ParseStage(prompt string) (stage string, round int, ok bool) {
	line, _, _ := strings.Cut(prompt, "\n")
	rest, found := strings.CutPrefix(strings.TrimSpace(line), stagePrefix)
	if !found {
		return "", 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", 0, false
	}
	switch fields[0] {
	case StagePlanning, StageOrders, StageInitialState, StageState:
		return fields[0], 0, len(fields) == 1
	case StageNegotiation:
		if len(fields) != 2 {
			return "", 0, false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return "", 0, false
		}
		return StageNegotiation, n, true
	}
	return "", 0, false
}

func stageHeader(stage string, round int) string {
	if stage == StageNegotiation {
		return fmt.Sprintf("%s%s %d", stagePrefix, stage, round)
	}
	return stagePrefix + stage
}
