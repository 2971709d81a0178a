// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package game

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Slot is one orderable location and its ordered legal actions.
type Slot struct {
	Location string
	Actions  []string
}

// Universe maps orderable locations to their legal actions, in the order the
// engine listed them.
//
// # Description
//
// Slot order is significant: default actions are emitted in slot order, so a
// plain Go map cannot represent a Universe. Decoding from YAML or JSON keeps
// the document order of the mapping keys.
//
// # Thread Safety
//
// A Universe is never mutated after construction. Accessors return copies
// where a caller could otherwise alias internal slices.
type Universe struct {
	slots []Slot
	index map[string]int
}

// NewUniverse builds a Universe from slots. A repeated location replaces the
// actions of the earlier slot but keeps its position.
func NewUniverse(slots ...Slot) Universe {
	u := Universe{index: make(map[string]int, len(slots))}
	for _, s := range slots {
		actions := append([]string(nil), s.Actions...)
		if i, ok := u.index[s.Location]; ok {
			u.slots[i].Actions = actions
			continue
		}
		u.index[s.Location] = len(u.slots)
		u.slots = append(u.slots, Slot{Location: s.Location, Actions: actions})
	}
	return u
}

// Len returns the number of orderable locations.
func (u Universe) Len() int {
	return len(u.slots)
}

// IsEmpty reports whether the power has no orderable location at all.
func (u Universe) IsEmpty() bool {
	return len(u.slots) == 0
}

// Locations returns the orderable locations in order.
func (u Universe) Locations() []string {
	out := make([]string, len(u.slots))
	for i, s := range u.slots {
		out[i] = s.Location
	}
	return out
}

// Actions returns a copy of the legal actions for a location.
func (u Universe) Actions(location string) ([]string, bool) {
	i, ok := u.index[location]
	if !ok {
		return nil, false
	}
	return append([]string(nil), u.slots[i].Actions...), true
}

// Slots returns a copy of every slot in order.
func (u Universe) Slots() []Slot {
	out := make([]Slot, len(u.slots))
	for i, s := range u.slots {
		out[i] = Slot{Location: s.Location, Actions: append([]string(nil), s.Actions...)}
	}
	return out
}

// Each calls fn for every slot in order without copying. fn must not retain
// or modify actions.
func (u Universe) Each(fn func(location string, actions []string)) {
	for _, s := range u.slots {
		fn(s.Location, s.Actions)
	}
}

// Contains reports whether action is legal in any slot.
func (u Universe) Contains(action string) bool {
	for _, s := range u.slots {
		for _, a := range s.Actions {
			if a == action {
				return true
			}
		}
	}
	return false
}

// ActionCount returns the total number of legal actions across slots.
func (u Universe) ActionCount() int {
	n := 0
	for _, s := range u.slots {
		n += len(s.Actions)
	}
	return n
}

// UnmarshalYAML decodes a mapping of location to action list, keeping key order.
func (u *Universe) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("universe: expected mapping, got yaml kind %d at line %d", value.Kind, value.Line)
	}
	slots := make([]Slot, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var loc string
		if err := value.Content[i].Decode(&loc); err != nil {
			return fmt.Errorf("universe: location at line %d: %w", value.Content[i].Line, err)
		}
		var actions []string
		if err := value.Content[i+1].Decode(&actions); err != nil {
			return fmt.Errorf("universe: actions for %s: %w", loc, err)
		}
		slots = append(slots, Slot{Location: loc, Actions: actions})
	}
	*u = NewUniverse(slots...)
	return nil
}

// MarshalYAML encodes the universe as an ordered mapping.
func (u Universe) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range u.slots {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: s.Location}
		val := &yaml.Node{}
		if err := val.Encode(s.Actions); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}

// UnmarshalJSON decodes an object of location to action list, keeping key order.
func (u *Universe) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("universe: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("universe: expected object, got %v", tok)
	}
	var slots []Slot
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("universe: %w", err)
		}
		loc, ok := tok.(string)
		if !ok {
			return fmt.Errorf("universe: expected location key, got %v", tok)
		}
		var actions []string
		if err := dec.Decode(&actions); err != nil {
			return fmt.Errorf("universe: actions for %s: %w", loc, err)
		}
		slots = append(slots, Slot{Location: loc, Actions: actions})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("universe: %w", err)
	}
	*u = NewUniverse(slots...)
	return nil
}

// MarshalJSON encodes the universe as an ordered object.
func (u Universe) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range u.slots {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Location)
		if err != nil {
			return nil, err
		}
		actions := s.Actions
		if actions == nil {
			actions = []string{}
		}
		val, err := json.Marshal(actions)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
