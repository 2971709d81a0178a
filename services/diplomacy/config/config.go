// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the runner configuration and its YAML form.
//
// # Description
//
// Default supplies every value. Load overlays a YAML file on the defaults
// and validates the result. Nothing here is global: the loaded Config is
// passed to whatever needs it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianDiplomacy/pkg/logging"
	"github.com/AleutianAI/AleutianDiplomacy/pkg/telemetry"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/assign"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/dispatch"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/turn"
	"github.com/AleutianAI/AleutianDiplomacy/services/llm"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete runner configuration.
type Config struct {
	Game      GameConfig       `yaml:"game" json:"game"`
	Dispatch  DispatchConfig   `yaml:"dispatch" json:"dispatch"`
	Models    ModelsConfig     `yaml:"models" json:"models"`
	Providers llm.Providers    `yaml:"providers" json:"providers"`
	Logging   logging.Config   `yaml:"logging" json:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
	Server    ServerConfig     `yaml:"server" json:"server"`
}

// GameConfig controls how a game is played.
type GameConfig struct {
	// MaxYear ends the game after this year: no phase of a later year is
	// played.
	MaxYear int `yaml:"max_year" json:"max_year" validate:"gte=1901"`

	// NegotiationRounds is the number of message rounds per movement phase.
	NegotiationRounds int `yaml:"negotiation_rounds" json:"negotiation_rounds" validate:"gte=0"`

	// PlanningPhase enables a planning round before negotiation.
	PlanningPhase bool `yaml:"planning_phase" json:"planning_phase"`

	// StateUpdates has every agent set goals and relationships at the start
	// of the game and revise them after each phase.
	StateUpdates bool `yaml:"state_updates" json:"state_updates"`

	// PromptDir holds system_prompt.txt and per-power overrides.
	PromptDir string `yaml:"prompt_dir,omitempty" json:"prompt_dir,omitempty"`

	// Seed seeds random model assignment. Zero draws a seed at startup.
	Seed uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// DispatchConfig sizes the worker pools. Every size must be set: a
// positive number caps concurrency and -1 runs one worker per power.
type DispatchConfig struct {
	PlanningWorkers    int `yaml:"planning_workers" json:"planning_workers" validate:"poolsize"`
	NegotiationWorkers int `yaml:"negotiation_workers" json:"negotiation_workers" validate:"poolsize"`
	OrderWorkers       int `yaml:"order_workers" json:"order_workers" validate:"poolsize"`
	StateWorkers       int `yaml:"state_workers" json:"state_workers" validate:"poolsize"`
}

// ModelsConfig decides which model plays each power.
type ModelsConfig struct {
	// Assignments is a comma separated list of seven model ids in power
	// order. When set it overrides Pool.
	Assignments string `yaml:"assignments,omitempty" json:"assignments,omitempty"`

	// Pool is drawn from when Assignments is empty.
	Pool []string `yaml:"pool" json:"pool" validate:"dive,required"`

	// Randomize draws from Pool at random instead of by index.
	Randomize bool `yaml:"randomize" json:"randomize"`
}

// ServerConfig configures the stats HTTP surface.
type ServerConfig struct {
	// Listen is the address for `replay --serve`.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	tel := telemetry.DefaultConfig()
	tel.TraceExporter = telemetry.ExporterNone
	return Config{
		Game: GameConfig{
			MaxYear:           1901,
			NegotiationRounds: 3,
			PlanningPhase:     false,
		},
		Dispatch: DispatchConfig{
			PlanningWorkers:    dispatch.FullFanOut,
			NegotiationWorkers: 1,
			OrderWorkers:       dispatch.FullFanOut,
			StateWorkers:       dispatch.FullFanOut,
		},
		Models: ModelsConfig{
			Pool:      append([]string(nil), assign.DefaultPool...),
			Randomize: true,
		},
		Providers: llm.DefaultProviders(),
		Logging: logging.Config{
			Level:   "info",
			LogDir:  "~/.aleutian/diplomacy/logs",
			Service: "diplomacy",
			Format:  logging.FormatAuto,
		},
		Telemetry: tel,
		Server:    ServerConfig{Listen: "127.0.0.1:9464"},
	}
}

// TurnConfig returns the phase driver settings.
func (c Config) TurnConfig() turn.Config {
	return turn.Config{
		Planning:           c.Game.PlanningPhase,
		NegotiationRounds:  c.Game.NegotiationRounds,
		StateUpdates:       c.Game.StateUpdates,
		MaxYear:            c.Game.MaxYear,
		PlanningWorkers:    c.Dispatch.PlanningWorkers,
		NegotiationWorkers: c.Dispatch.NegotiationWorkers,
		OrderWorkers:       c.Dispatch.OrderWorkers,
		StateWorkers:       c.Dispatch.StateWorkers,
	}
}

// Assignment resolves which model plays each power. rng is used only for a
// randomized draw and may be nil.
func (c Config) Assignment(rng *rand.Rand) (assign.Assignment, error) {
	if c.Models.Assignments != "" {
		return assign.ParseModelList(c.Models.Assignments)
	}
	return assign.Assign(c.Models.Pool, c.Models.Randomize, rng)
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Models.Assignments != "" {
		if _, err := assign.ParseModelList(c.Models.Assignments); err != nil {
			return fmt.Errorf("%w: models.assignments: %w", ErrInvalid, err)
		}
	} else if len(c.Models.Pool) == 0 {
		return fmt.Errorf("%w: models: pool or assignments required", ErrInvalid)
	}
	return nil
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrCreate loads path, first writing the defaults there if the file
// does not exist.
func LoadOrCreate(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Write(path, Default()); err != nil {
			return Config{}, err
		}
	}
	return Load(path)
}

// Write saves cfg as YAML, creating parent directories.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("poolsize", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n > 0 || n == dispatch.FullFanOut
	})
	return v
}
