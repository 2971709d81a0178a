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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDiplomacy/pkg/validation"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/assign"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/config"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
	"github.com/AleutianAI/AleutianDiplomacy/services/llm"
)

const fixture = "../../services/diplomacy/replay/testdata/spring_1901.yaml"

// writeConfig writes a config with file logging off and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diplomacy.yaml")
	body := "logging:\n  log_dir: \"\"\n  quiet: true\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// =============================================================================
// assign
// =============================================================================

func TestAssignCmd_ExplicitModels(t *testing.T) {
	out, err := execute(t, "", "assign", "--config", writeConfig(t, ""),
		"--models", "a,b,claude-x,d,e,f,g")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(game.StandardPowers))
	assert.Equal(t, []string{"AUSTRIA", "a", llm.ProviderOpenAI}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"FRANCE", "claude-x", llm.ProviderAnthropic}, strings.Fields(lines[2]))
}

func TestAssignCmd_FixedPool(t *testing.T) {
	out, err := execute(t, "", "assign", "--config", writeConfig(t, ""), "--fixed")
	require.NoError(t, err)
	assert.Contains(t, out, assign.DefaultPool[0])
	assert.True(t, strings.HasPrefix(out, "AUSTRIA"))
}

func TestAssignCmd_SeedIsDeterministic(t *testing.T) {
	cfg := writeConfig(t, "")
	first, err := execute(t, "", "assign", "--config", cfg, "--seed", "42")
	require.NoError(t, err)
	second, err := execute(t, "", "assign", "--config", cfg, "--seed", "42")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssignCmd_BadModels(t *testing.T) {
	_, err := execute(t, "", "assign", "--config", writeConfig(t, ""), "--models", "a,b")
	assert.ErrorIs(t, err, assign.ErrModelCount)
}

// =============================================================================
// parse
// =============================================================================

func TestParseOrdersCmd(t *testing.T) {
	dir := t.TempDir()
	reply := filepath.Join(dir, "reply.txt")
	legal := filepath.Join(dir, "legal.yaml")
	require.NoError(t, os.WriteFile(reply, []byte(`Thinking...
PARSABLE OUTPUT: {"orders": ["A PAR - BUR", "A PAR H", "A XXX H"]}`), 0600))
	require.NoError(t, os.WriteFile(legal, []byte("PAR: [A PAR H, A PAR - BUR]\nMAR: [A MAR - SPA, A MAR H]\n"), 0600))

	out, err := execute(t, "", "parse", "orders", reply, "--legal", legal, "--config", writeConfig(t, ""))
	require.NoError(t, err)

	var got ordersOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "labelled", got.Strategy)
	assert.False(t, got.Recovered)
	assert.Equal(t, []string{"A PAR - BUR", "A MAR H"}, got.Orders)
	assert.Equal(t, []string{"A XXX H"}, got.Rejected)
	assert.Equal(t, 1, got.Filled)
}

func TestParseOrdersCmd_Stdin(t *testing.T) {
	out, err := execute(t, "PARSABLE OUTPUT: {'orders': ['F BRE H']}", "parse", "orders", "-", "--config", writeConfig(t, ""))
	require.NoError(t, err)

	var got ordersOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Recovered)
	assert.Equal(t, []any{"F BRE H"}, got.Raw)
}

func TestParseOrdersCmd_NoPayload(t *testing.T) {
	_, err := execute(t, "I refuse to answer.", "parse", "orders", "-", "--config", writeConfig(t, ""))
	assert.ErrorIs(t, err, errNoPayload)
}

func TestParseMessagesCmd(t *testing.T) {
	reply := `{{"message_type": "private", "recipient": "germany", "content": "hi"}}
{{"message_type": "private", "recipient": "ITALY", "content": "psst"}}`
	out, err := execute(t, reply, "parse", "messages", "-",
		"--sender", "france", "--active", "GERMANY,ENGLAND", "--config", writeConfig(t, ""))
	require.NoError(t, err)

	var got []game.MessageRecord
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []game.MessageRecord{
		{Sender: "FRANCE", Recipient: "GERMANY", Content: "hi"},
		{Sender: "FRANCE", Recipient: game.GlobalRecipient, Content: "psst"},
	}, got)
}

func TestParseMessagesCmd_BadSender(t *testing.T) {
	_, err := execute(t, "", "parse", "messages", "-", "--sender", "fr ance", "--config", writeConfig(t, ""))
	assert.ErrorIs(t, err, validation.ErrInvalidPower)
}

// =============================================================================
// replay
// =============================================================================

func TestReplayCmd(t *testing.T) {
	overview := filepath.Join(t.TempDir(), "results", "overview.jsonl")
	out, err := execute(t, "", "replay", fixture, "--overview", overview, "--config", writeConfig(t, ""))
	require.NoError(t, err)

	assert.Contains(t, out, "phase S1901M")
	assert.Contains(t, out, "[A BER - KIE A MUN H]")
	assert.Contains(t, out, "[F LON H A LVP H]")
	assert.Contains(t, out, "deepseek-chat")

	data, err := os.ReadFile(overview)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var models map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &models))
	assert.Equal(t, "gpt-4o", models["FRANCE"])

	var settings overviewSettings
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &settings))
	assert.Equal(t, fixture, settings.Fixture)
	assert.Equal(t, 3, settings.Game.NegotiationRounds)
}

func TestReplayCmd_JSONWithReassign(t *testing.T) {
	cfg := writeConfig(t, "models:\n  assignments: m1,m2,m3,m4,m5,m6,m7\n")
	out, err := execute(t, "", "replay", fixture, "--json", "--reassign", "--config", cfg)
	require.NoError(t, err)

	var report struct {
		Phase  string                      `json:"phase"`
		Models map[string]string           `json:"models"`
		Orders map[string][]string         `json:"orders"`
		Stats  map[string]map[string]int64 `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "S1901M", report.Phase)
	assert.Equal(t, "m3", report.Models["FRANCE"])
	assert.Equal(t, "m2", report.Models["ENGLAND"])
	assert.Contains(t, report.Stats, "m3")
	assert.NotContains(t, report.Stats, "gpt-4o")
}

func TestReplayCmd_MissingFixture(t *testing.T) {
	_, err := execute(t, "", "replay", filepath.Join(t.TempDir(), "none.yaml"), "--config", writeConfig(t, ""))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// root
// =============================================================================

func TestRoot_CreatesMissingConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "new", "diplomacy.yaml")
	_, err := execute(t, "", "assign", "--fixed", "--quiet", "--config", path)
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Dispatch, cfg.Dispatch)
}

func TestRoot_InvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "dispatch:\n  negotiation_workers: 0\n")
	_, err := execute(t, "", "assign", "--config", cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRoot_LogLevelOverride(t *testing.T) {
	_, err := execute(t, "", "assign", "--config", writeConfig(t, ""), "--log-level", "loud")
	assert.ErrorIs(t, err, config.ErrInvalid)
}
