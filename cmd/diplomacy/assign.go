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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
	"github.com/AleutianAI/AleutianDiplomacy/services/llm"
)

func newAssignCmd(a *app) *cobra.Command {
	var (
		models string
		seed   uint64
		fixed  bool
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Show which model plays each power",
		Long: `assign resolves the model for every power from the configuration:
an explicit --models list wins, otherwise models are drawn from the pool.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if models != "" {
				cfg.Models.Assignments = models
			}
			if fixed {
				cfg.Models.Randomize = false
			}
			if cmd.Flags().Changed("seed") {
				cfg.Game.Seed = seed
			}

			assignment, err := cfg.Assignment(newRand(cfg.Game.Seed))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range game.StandardPowers {
				model := assignment[p]
				fmt.Fprintf(out, "%-8s %-28s %s\n", p, model, llm.ProviderFor(model))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&models, "models", "", "comma separated list of seven model ids in power order")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for the random draw (0 picks one)")
	cmd.Flags().BoolVar(&fixed, "fixed", false, "assign pool entries in order instead of at random")
	return cmd
}
