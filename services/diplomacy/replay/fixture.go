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
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/assign"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

// ErrInvalidFixture wraps every fixture decoding and validation failure.
var ErrInvalidFixture = errors.New("replay: invalid fixture")

// Fixture describes one recorded phase.
//
// # Example
//
//	phase: S1901M
//	powers:
//	  - power: FRANCE
//	    model: gpt-4o
//	    legal_actions:
//	      PAR: ["A PAR H", "A PAR - BUR"]
//	    script:
//	      negotiation:
//	        - '{{"message_type": "global", "content": "hello"}}'
//	      orders: 'PARSABLE OUTPUT: {"orders": ["A PAR - BUR"]}'
type Fixture struct {
	Phase      string        `yaml:"phase" json:"phase" validate:"required"`
	Powers     []PowerScript `yaml:"powers" json:"powers" validate:"required,min=1,dive"`
	Eliminated []game.Power  `yaml:"eliminated,omitempty" json:"eliminated,omitempty"`
}

// PowerScript is one power's model, legal actions and canned replies.
type PowerScript struct {
	Power        game.Power    `yaml:"power" json:"power" validate:"required"`
	Model        string        `yaml:"model" json:"model" validate:"required"`
	LegalActions game.Universe `yaml:"legal_actions" json:"legal_actions"`
	Script       Script        `yaml:"script" json:"script"`
}

// Script holds the replies a model gives at each stage. A missing reply is
// an empty response.
type Script struct {
	Planning    Reply   `yaml:"planning,omitempty" json:"planning,omitempty"`
	Negotiation []Reply `yaml:"negotiation,omitempty" json:"negotiation,omitempty"`
	Orders      Reply   `yaml:"orders,omitempty" json:"orders,omitempty"`

	// State replies are used only when state updates are enabled.
	InitialState Reply `yaml:"initial_state,omitempty" json:"initial_state,omitempty"`
	State        Reply `yaml:"state,omitempty" json:"state,omitempty"`
}

// Reply is a canned model response. Error, when set, is returned as a
// transport failure instead of Text.
//
// In YAML a plain string is shorthand for {text: ...}.
type Reply struct {
	Text  string `yaml:"text,omitempty" json:"text,omitempty"`
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
}

// UnmarshalYAML accepts a scalar or a mapping.
func (r *Reply) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*r = Reply{}
		return value.Decode(&r.Text)
	}
	type plain Reply
	return value.Decode((*plain)(r))
}

// LoadFixture reads and validates the fixture at path.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture %s: %w", path, err)
	}
	fx, err := ParseFixture(data)
	if err != nil {
		return Fixture{}, fmt.Errorf("%s: %w", path, err)
	}
	return fx, nil
}

// ParseFixture decodes and validates a YAML fixture. Unknown keys are
// rejected.
func ParseFixture(data []byte) (Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return Fixture{}, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	if err := fx.Validate(); err != nil {
		return Fixture{}, err
	}
	return fx, nil
}

// Validate checks required fields and that no power appears twice.
func (f Fixture) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(f); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	seen := make(map[game.Power]bool, len(f.Powers))
	for _, p := range f.Powers {
		if seen[p.Power] {
			return fmt.Errorf("%w: power %s listed twice", ErrInvalidFixture, p.Power)
		}
		seen[p.Power] = true
	}
	return nil
}

// Models returns the power to model map.
func (f Fixture) Models() map[game.Power]string {
	out := make(map[game.Power]string, len(f.Powers))
	for _, p := range f.Powers {
		out[p.Power] = p.Model
	}
	return out
}

// WithModels returns a copy of f with models replaced from a. Powers
// missing from a keep their recorded model.
func (f Fixture) WithModels(a assign.Assignment) Fixture {
	out := f
	out.Powers = make([]PowerScript, len(f.Powers))
	for i, p := range f.Powers {
		if m, ok := a[p.Power]; ok {
			p.Model = m
		}
		out.Powers[i] = p
	}
	return out
}

// powers lists every power on the board: scripted powers in fixture order,
// then eliminated powers without a script.
func (f Fixture) powers() []game.Power {
	out := make([]game.Power, 0, len(f.Powers)+len(f.Eliminated))
	seen := make(map[game.Power]bool)
	for _, p := range f.Powers {
		out = append(out, p.Power)
		seen[p.Power] = true
	}
	for _, p := range f.Eliminated {
		if !seen[p] {
			out = append(out, p)
			seen[p] = true
		}
	}
	return out
}
