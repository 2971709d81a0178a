// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDiplomacy/pkg/telemetry"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/api"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/config"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/replay"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/stats"
)

type replayFlags struct {
	overview string
	serve    bool
	reassign bool
	asJSON   bool
}

// overviewSettings is the third line of the overview file.
type overviewSettings struct {
	RunID    string                `json:"run_id"`
	Fixture  string                `json:"fixture"`
	Game     config.GameConfig     `json:"game"`
	Dispatch config.DispatchConfig `json:"dispatch"`
}

func newReplayCmd(a *app) *cobra.Command {
	var f replayFlags
	cmd := &cobra.Command{
		Use:   "replay <fixture.yaml>",
		Short: "Play a recorded phase through the pipeline with scripted replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReplay(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.overview, "overview", "", "write error stats and the power/model map as JSON lines to this file")
	cmd.Flags().BoolVar(&f.serve, "serve", false, "keep serving /health, /v1/stats and /metrics after the replay until interrupted")
	cmd.Flags().BoolVar(&f.reassign, "reassign", false, "replace the fixture's models with the configured assignment")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the full report as JSON")
	return cmd
}

func (a *app) runReplay(cmd *cobra.Command, path string, f replayFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := a.logger.Slog()

	reg := prometheus.NewRegistry()
	registry := stats.NewRegistry(stats.WithMetrics(stats.NewMetrics(reg)))

	tcfg := a.cfg.Telemetry
	tcfg.Registerer = reg
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	fx, err := replay.LoadFixture(path)
	if err != nil {
		return err
	}
	if f.reassign {
		assignment, err := a.cfg.Assignment(newRand(a.cfg.Game.Seed))
		if err != nil {
			return fmt.Errorf("assign models: %w", err)
		}
		fx = fx.WithModels(assignment)
	}

	report, err := replay.Run(ctx, fx, replay.Options{Config: a.cfg, Registry: registry, Logger: logger})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	} else {
		printReport(out, report)
	}

	if f.overview != "" {
		settings := overviewSettings{RunID: report.RunID, Fixture: path, Game: a.cfg.Game, Dispatch: a.cfg.Dispatch}
		if err := writeOverviewFile(f.overview, report, settings); err != nil {
			return err
		}
		logger.Info("overview written", "path", f.overview)
	}

	if f.serve {
		return api.Serve(ctx, a.cfg.Server.Listen, api.NewRouter(registry, reg), logger)
	}
	return nil
}

func writeOverviewFile(path string, report replay.Report, settings overviewSettings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create overview directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create overview: %w", err)
	}
	if err := replay.WriteOverview(file, report, settings); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func printReport(w io.Writer, r replay.Report) {
	fmt.Fprintf(w, "Run %s, phase %s (%s)\n", r.RunID, r.Phase, r.Duration.Round(time.Millisecond))

	if len(r.Plans) > 0 {
		fmt.Fprintln(w, "\nPlans:")
		for _, p := range sortedPowers(r.Plans) {
			fmt.Fprintf(w, "  %-8s %s\n", p, r.Plans[p])
		}
	}

	fmt.Fprintf(w, "\nMessages (%d):\n", len(r.Messages))
	for _, m := range r.Messages {
		fmt.Fprintf(w, "  %s -> %s: %s\n", m.Sender, m.Recipient, m.Content)
	}

	fmt.Fprintln(w, "\nOrders:")
	for _, p := range sortedPowers(r.Orders) {
		fmt.Fprintf(w, "  %-8s %v\n", p, r.Orders[p])
	}

	fmt.Fprintln(w, "\nErrors by model:")
	for _, model := range slices.Sorted(maps.Keys(r.Stats)) {
		c := r.Stats[model]
		fmt.Fprintf(w, "  %-24s order_decoding=%d conversation=%d\n", model, c.OrderDecodingErrors, c.ConversationErrors)
	}
}

// newRand returns a PCG source seeded with seed, or with a random seed
// when seed is zero.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// sortedPowers orders standard powers canonically, then any others by name.
func sortedPowers[V any](m map[game.Power]V) []game.Power {
	out := make([]game.Power, 0, len(m))
	for _, p := range game.StandardPowers {
		if _, ok := m[p]; ok {
			out = append(out, p)
		}
	}
	for _, p := range slices.Sorted(maps.Keys(m)) {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
