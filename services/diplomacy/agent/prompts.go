// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

// DefaultSystemPromptFile is the directive used by powers without their
// own file.
const DefaultSystemPromptFile = "system_prompt.txt"

// SystemPrompts resolves the system directive for each power.
type SystemPrompts struct {
	Default  string
	PerPower map[game.Power]string
}

// For returns the power's own directive, or Default.
func (s SystemPrompts) For(power game.Power) string {
	if p, ok := s.PerPower[power]; ok {
		return p
	}
	return s.Default
}

// LoadSystemPrompts reads DefaultSystemPromptFile and any
// "<power>_system_prompt.txt" files (power in lower case) from dir.
// A missing default file is not an error; the default is then "".
func LoadSystemPrompts(dir string, powers []game.Power) (SystemPrompts, error) {
	out := SystemPrompts{PerPower: make(map[game.Power]string)}

	def, ok, err := readPrompt(filepath.Join(dir, DefaultSystemPromptFile))
	if err != nil {
		return SystemPrompts{}, err
	}
	if ok {
		out.Default = def
	}

	for _, p := range powers {
		name := strings.ToLower(string(p)) + "_system_prompt.txt"
		text, ok, err := readPrompt(filepath.Join(dir, name))
		if err != nil {
			return SystemPrompts{}, err
		}
		if ok {
			out.PerPower[p] = text
		}
	}
	return out, nil
}

func readPrompt(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read system prompt %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}
