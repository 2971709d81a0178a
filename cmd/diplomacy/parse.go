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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianDiplomacy/pkg/validation"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/messages"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/orders"
)

// errNoPayload is returned by `parse orders` when nothing could be extracted.
var errNoPayload = errors.New("no orders payload found")

// ordersOutput is printed by `parse orders`.
type ordersOutput struct {
	Strategy  string   `json:"strategy"`
	Recovered bool     `json:"recovered"`
	Raw       any      `json:"raw"`
	Orders    []string `json:"orders,omitempty"`
	Rejected  []string `json:"rejected,omitempty"`
	Filled    int      `json:"filled,omitempty"`
	FellBack  bool     `json:"fell_back,omitempty"`
}

func newParseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Run the extractors over a saved model reply",
	}
	cmd.AddCommand(newParseOrdersCmd(a), newParseMessagesCmd(a))
	return cmd
}

func newParseOrdersCmd(a *app) *cobra.Command {
	var legalPath string
	cmd := &cobra.Command{
		Use:   "orders <reply.txt|->",
		Short: "Extract an orders payload and optionally reconcile it with legal actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			payload, ok := orders.NewExtractor(a.logger.Slog()).Extract(text)
			if !ok {
				return errNoPayload
			}
			out := ordersOutput{Strategy: payload.Strategy, Recovered: payload.Recovered, Raw: payload.Orders}

			if legalPath != "" {
				universe, err := readUniverse(legalPath)
				if err != nil {
					return err
				}
				res := orders.Reconcile(payload.Orders, universe)
				out.Orders, out.Rejected, out.Filled, out.FellBack = res.Orders, res.Rejected, res.Filled, res.FellBack
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&legalPath, "legal", "", "YAML mapping of location to legal actions")
	return cmd
}

func newParseMessagesCmd(a *app) *cobra.Command {
	var (
		sender string
		active []string
	)
	cmd := &cobra.Command{
		Use:   "messages <reply.txt|->",
		Short: "Extract message blocks from a negotiation reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			from, err := validation.SanitizePower(sender)
			if err != nil {
				return fmt.Errorf("--sender: %w", err)
			}
			names, err := validation.SanitizePowers(active)
			if err != nil {
				return fmt.Errorf("--active: %w", err)
			}
			powers := make([]game.Power, len(names))
			for i, n := range names {
				powers[i] = game.Power(n)
			}
			records := messages.NewExtractor(a.logger.Slog()).Extract(text, game.Power(from), powers)
			if records == nil {
				records = []game.MessageRecord{}
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "FRANCE", "power that wrote the reply")
	cmd.Flags().StringSliceVar(&active, "active", powerNames(game.StandardPowers), "powers that may receive private messages")
	return cmd
}

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func readUniverse(path string) (game.Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return game.Universe{}, fmt.Errorf("read legal actions: %w", err)
	}
	var u game.Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return game.Universe{}, fmt.Errorf("parse legal actions %s: %w", path, err)
	}
	return u, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func powerNames(powers []game.Power) []string {
	out := make([]string, len(powers))
	for i, p := range powers {
		out[i] = string(p)
	}
	return out
}
