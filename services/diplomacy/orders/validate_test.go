// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

func parisMarseilles() game.Universe {
	return game.NewUniverse(
		game.Slot{Location: "PAR", Actions: []string{"A PAR H", "A PAR - BUR"}},
		game.Slot{Location: "MAR", Actions: []string{"A MAR H"}},
	)
}

func TestValidate_FillsGaps(t *testing.T) {
	got := Validate([]any{"A PAR - BUR"}, parisMarseilles())
	assert.Equal(t, []string{"A PAR - BUR", "A MAR H"}, got)
}

func TestValidate_TotalRejectionFallsBack(t *testing.T) {
	u := parisMarseilles()
	got := Validate([]any{"bogus"}, u)
	assert.Equal(t, Fallback(u), got)
	assert.Equal(t, []string{"A PAR H", "A MAR H"}, got)
}

func TestReconcile(t *testing.T) {
	u := game.NewUniverse(
		game.Slot{Location: "PAR", Actions: []string{"A PAR - BUR", "A PAR H"}},
		game.Slot{Location: "MAR", Actions: []string{"A MAR - SPA", "A MAR S A PAR - BUR"}},
		game.Slot{Location: "BRE", Actions: []string{}},
		game.Slot{Location: "STP/SC", Actions: []string{"F STP/SC - BOT", "F STP/SC H"}},
	)

	tests := []struct {
		name       string
		candidates any
		want       []string
		accepted   int
		rejected   []string
		filled     int
		fellBack   bool
	}{
		{
			name:       "nil candidates",
			candidates: nil,
			want:       []string{"A PAR H", "A MAR - SPA", "F STP/SC H"},
			fellBack:   true,
		},
		{
			name:       "map is not a list",
			candidates: map[string]any{"orders": []any{"A PAR H"}},
			want:       []string{"A PAR H", "A MAR - SPA", "F STP/SC H"},
			fellBack:   true,
		},
		{
			name:       "trims and keeps candidate order",
			candidates: []any{"  A MAR S A PAR - BUR ", "A PAR - BUR"},
			want:       []string{"A MAR S A PAR - BUR", "A PAR - BUR", "F STP/SC H"},
			accepted:   2,
			filled:     1,
		},
		{
			name:       "coast qualified slot covered by province key",
			candidates: []string{"F STP/SC - BOT"},
			want:       []string{"F STP/SC - BOT", "A PAR H", "A MAR - SPA"},
			accepted:   1,
			filled:     2,
		},
		{
			name:       "non string elements ignored",
			candidates: []any{42.0, true, "A PAR H"},
			want:       []string{"A PAR H", "A MAR - SPA", "F STP/SC H"},
			accepted:   1,
			filled:     2,
		},
		{
			name:       "rejections recorded",
			candidates: []any{"A PAR - PIC", "A PAR H"},
			want:       []string{"A PAR H", "A MAR - SPA", "F STP/SC H"},
			accepted:   1,
			rejected:   []string{"A PAR - PIC"},
			filled:     2,
		},
		{
			name:       "second order for a covered slot dropped",
			candidates: []any{"A PAR H", "A PAR - BUR", "A PAR H"},
			want:       []string{"A PAR H", "A MAR - SPA", "F STP/SC H"},
			accepted:   1,
			filled:     2,
		},
		{
			name:       "membership checked across all slots",
			candidates: []any{"A MAR - SPA"},
			want:       []string{"A MAR - SPA", "A PAR H", "F STP/SC H"},
			accepted:   1,
			filled:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reconcile(tt.candidates, u)
			assert.Equal(t, tt.want, res.Orders)
			assert.Equal(t, tt.accepted, res.Accepted)
			assert.Equal(t, tt.rejected, res.Rejected)
			assert.Equal(t, tt.filled, res.Filled)
			assert.Equal(t, tt.fellBack, res.FellBack)
		})
	}
}

func TestValidate_DoesNotMutateUniverse(t *testing.T) {
	u := parisMarseilles()
	before, _ := u.Actions("PAR")
	_ = Validate([]any{"A PAR - BUR", "x"}, u)
	after, _ := u.Actions("PAR")
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"PAR", "MAR"}, u.Locations())
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name string
		u    game.Universe
		want []string
	}{
		{
			name: "empty universe",
			u:    game.Universe{},
			want: []string{},
		},
		{
			name: "hold preferred over earlier moves",
			u: game.NewUniverse(
				game.Slot{Location: "LON", Actions: []string{"F LON - NTH", "F LON - ENG", "F LON H"}},
			),
			want: []string{"F LON H"},
		},
		{
			name: "first action when no hold",
			u: game.NewUniverse(
				game.Slot{Location: "LON", Actions: []string{"F LON - NTH", "F LON - ENG"}},
				game.Slot{Location: "WAIVE", Actions: []string{"WAIVE"}},
			),
			want: []string{"F LON - NTH", "WAIVE"},
		},
		{
			name: "empty slots skipped",
			u: game.NewUniverse(
				game.Slot{Location: "PAR", Actions: nil},
				game.Slot{Location: "MAR", Actions: []string{"A MAR H"}},
			),
			want: []string{"A MAR H"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fallback(tt.u)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Fallback(tt.u))
		})
	}
}

func TestFallback_OnePerNonEmptySlot(t *testing.T) {
	u := game.NewUniverse(
		game.Slot{Location: "VIE", Actions: []string{"A VIE - GAL", "A VIE H"}},
		game.Slot{Location: "BUD", Actions: []string{"A BUD - SER"}},
		game.Slot{Location: "TRI", Actions: []string{}},
		game.Slot{Location: "GAL", Actions: []string{"A GAL H"}},
	)
	got := Fallback(u)
	assert.Len(t, got, 3)
	assert.Equal(t, []string{"A VIE H", "A BUD - SER", "A GAL H"}, got)
}

func TestOriginSlot(t *testing.T) {
	assert.Equal(t, "PAR", OriginSlot("A PAR - BUR"))
	assert.Equal(t, "STP", OriginSlot("F STP/SC - BOT"))
	assert.Equal(t, "", OriginSlot("WAIVE"))
	assert.Equal(t, "", OriginSlot(""))
	assert.True(t, IsHold("A PAR H"))
	assert.False(t, IsHold("F LON - NTH"))
}
