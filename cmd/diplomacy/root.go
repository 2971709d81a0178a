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

	"github.com/AleutianAI/AleutianDiplomacy/pkg/logging"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/config"
)

// app is the state shared by every subcommand for one invocation.
type app struct {
	configPath string
	logLevel   string
	quiet      bool

	cfg    config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "diplomacy",
		Short: "Run LLM agents through Diplomacy phases",
		Long: `diplomacy drives language-model agents through the planning,
negotiation and order stages of a Diplomacy phase and tracks how often each
model fails to produce usable output.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the YAML config (created with defaults when missing)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "disable log output on stderr")

	root.AddCommand(
		newReplayCmd(a),
		newParseCmd(a),
		newAssignCmd(a),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.LoadOrCreate(a.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.quiet {
		cfg.Logging.Quiet = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Logging.Output == nil {
		cfg.Logging.Output = cmd.ErrOrStderr()
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.Logging)
	a.logger.Debug("configuration loaded", "config", a.configPath)
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
