// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package replay runs one recorded phase through the full game loop with
// scripted model replies.
//
// # Description
//
// A Fixture supplies the phase, each power's model, its legal actions and
// what the model "said" at every stage. Run puts those replies behind real
// llm.Gateway instances, plays the phase on an in-memory game.Board and
// reports what the pipeline produced together with the error counters.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/agent"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/config"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/dispatch"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/history"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/stats"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/turn"
	"github.com/AleutianAI/AleutianDiplomacy/services/llm"
)

// ErrPastMaxYear is returned when the fixture's phase lies after the
// configured max_year, so nothing was played.
var ErrPastMaxYear = errors.New("replay: phase is past max_year")

// Options configures Run.
type Options struct {
	// Config supplies the turn settings, logging switches and provider
	// rate limits.
	Config config.Config

	// Registry receives the error counters. Nil creates a fresh one.
	Registry *stats.Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Report is the outcome of a replay.
type Report struct {
	RunID    string                       `json:"run_id"`
	Phase    string                       `json:"phase"`
	Models   map[game.Power]string        `json:"models"`
	Plans    map[game.Power]string        `json:"plans,omitempty"`
	Messages []game.MessageRecord         `json:"messages"`
	Orders   map[game.Power][]string      `json:"orders"`
	States   map[game.Power]agent.State   `json:"states,omitempty"`
	History  []history.Phase              `json:"history"`
	Stats    map[string]stats.ErrorCounts `json:"stats"`
	Rounds   []dispatch.RoundSummary      `json:"rounds"`
	Duration time.Duration                `json:"duration_ns"`

	// Clients exposes the scripted clients for inspection.
	Clients map[game.Power]*ScriptedClient `json:"-"`
}

// Run plays fx once.
//
// # Inputs
//
//	ctx  - cancels the phase between rounds.
//	fx   - the phase to replay; validated first.
//	opts - configuration and shared collaborators.
//
// # Outputs
//
//	Report - populated even when error is non-nil and the phase started.
//	error  - ErrInvalidFixture, ErrPastMaxYear, a construction error, or
//	         ctx.Err().
func Run(ctx context.Context, fx Fixture, opts Options) (Report, error) {
	if err := fx.Validate(); err != nil {
		return Report{}, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = stats.NewRegistry()
	}
	cfg := opts.Config

	runID := uuid.NewString()[:12]
	logger = logger.With(slog.String("run_id", runID))

	powers := fx.powers()
	board := game.NewBoard(fx.Phase, powers...)
	for _, ps := range fx.Powers {
		board.SetLegalActions(ps.Power, ps.LegalActions)
	}
	for _, p := range fx.Eliminated {
		board.Eliminate(p)
	}

	var prompts agent.SystemPrompts
	if cfg.Game.PromptDir != "" {
		var err error
		if prompts, err = agent.LoadSystemPrompts(cfg.Game.PromptDir, powers); err != nil {
			return Report{}, err
		}
	}

	hist := history.New()
	agents := make(map[game.Power]*agent.Agent, len(fx.Powers))
	clients := make(map[game.Power]*ScriptedClient, len(fx.Powers))
	for _, ps := range fx.Powers {
		client := NewScriptedClient(ps.Script)
		pc := cfg.Providers.Config(llm.ProviderFor(ps.Model))
		gw := llm.NewGateway(client, llm.GatewayConfig{
			ModelID:           ps.Model,
			Logging:           cfg.Logging,
			RequestsPerSecond: pc.RequestsPerSecond,
			Burst:             pc.Burst,
			OnFailure:         registry.RecordTransportFailure,
		}, logger)
		clients[ps.Power] = client
		agents[ps.Power] = agent.New(ps.Power, prompts.For(ps.Power), gw, registry, logger,
			agent.WithKnownPowers(powers))
	}

	runner, err := turn.NewRunner(cfg.TurnConfig(), turn.Deps{
		Engine:   board,
		Agents:   agents,
		History:  hist,
		Prompter: Prompts{History: hist},
		Logger:   logger,
	})
	if err != nil {
		return Report{}, fmt.Errorf("build runner: %w", err)
	}

	logger.Info("replay started", slog.String("phase", fx.Phase), slog.Int("powers", len(fx.Powers)))
	// The board has no queued phases, so the game ends after this one.
	phases, runErr := runner.RunGame(ctx)
	if runErr == nil && len(phases) == 0 {
		return Report{}, fmt.Errorf("%w: %s after %d", ErrPastMaxYear, fx.Phase, cfg.Game.MaxYear)
	}
	var phase turn.PhaseReport
	if len(phases) > 0 {
		phase = phases[len(phases)-1]
	}

	report := Report{
		RunID:    runID,
		Phase:    phase.Phase,
		Models:   fx.Models(),
		Plans:    phase.Plans,
		Messages: phase.Messages,
		Orders:   phase.Orders,
		States:   phase.States,
		History:  hist.Phases(),
		Stats:    registry.Snapshot(),
		Rounds:   phase.Rounds,
		Duration: phase.Duration,
		Clients:  clients,
	}
	if runErr != nil {
		return report, fmt.Errorf("replay %s: %w", runID, runErr)
	}
	logger.Info("replay complete", slog.Duration("duration", report.Duration))
	return report, nil
}

// WriteOverview writes the run overview as three JSON lines: error counts
// by model, the power to model map, and settings.
func WriteOverview(w io.Writer, r Report, settings any) error {
	enc := json.NewEncoder(w)
	for _, v := range []any{r.Stats, r.Models, settings} {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("write overview: %w", err)
		}
	}
	return nil
}
