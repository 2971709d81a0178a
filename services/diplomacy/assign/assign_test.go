// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assign

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDiplomacy/pkg/validation"
	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

func TestParseModelList(t *testing.T) {
	a, err := ParseModelList("m1, m2,m3,m4,m5,m6 ,m7")
	require.NoError(t, err)
	assert.Equal(t, "m1", a["AUSTRIA"])
	assert.Equal(t, "m6", a["RUSSIA"])
	assert.Equal(t, "m7", a["TURKEY"])

	_, err = ParseModelList("m1,m2")
	assert.ErrorIs(t, err, ErrModelCount)

	_, err = ParseModelList("m1,m2,m3,,m5,m6,m7")
	assert.ErrorIs(t, err, ErrModelCount)

	_, err = ParseModelList("m1,m2,m3,gpt 4o,m5,m6,m7")
	assert.ErrorIs(t, err, validation.ErrInvalidModelID)
}

func TestAssign_Fixed(t *testing.T) {
	a, err := Assign(DefaultPool, false, nil)
	require.NoError(t, err)
	for i, p := range game.StandardPowers {
		assert.Equal(t, DefaultPool[i], a[p])
	}

	short, err := Assign([]string{"x", "y"}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", short["AUSTRIA"])
	assert.Equal(t, "y", short["ENGLAND"])
	assert.Equal(t, "x", short["FRANCE"])
}

func TestAssign_RandomWithoutReplacement(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	a, err := Assign(DefaultPool, true, rng)
	require.NoError(t, err)
	require.Len(t, a, len(game.StandardPowers))

	seen := map[string]bool{}
	for _, m := range a {
		assert.False(t, seen[m], "model %s assigned twice", m)
		seen[m] = true
	}
	assert.ElementsMatch(t, DefaultPool, a.Models())
}

func TestAssign_RandomReplenishes(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	a, err := Assign([]string{"a", "b", "c"}, true, rng)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, m := range a {
		counts[m]++
	}
	// 7 draws over a pool of 3: two full passes and one extra draw.
	for _, m := range []string{"a", "b", "c"} {
		assert.GreaterOrEqual(t, counts[m], 2)
		assert.LessOrEqual(t, counts[m], 3)
	}
}

func TestAssign_Deterministic(t *testing.T) {
	a1, _ := Assign(DefaultPool, true, rand.New(rand.NewPCG(42, 0)))
	a2, _ := Assign(DefaultPool, true, rand.New(rand.NewPCG(42, 0)))
	assert.Equal(t, a1, a2)
}

func TestAssign_EmptyPool(t *testing.T) {
	_, err := Assign(nil, true, nil)
	assert.ErrorIs(t, err, ErrEmptyPool)
}
