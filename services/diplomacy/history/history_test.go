// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/game"
)

func msg(sender game.Power, recipient, content string) game.MessageRecord {
	return game.MessageRecord{Sender: sender, Recipient: recipient, Content: content}
}

func TestHistory_VisibleTo(t *testing.T) {
	h := New()
	h.AddMessage("S1901M", msg("FRANCE", game.GlobalRecipient, "peace"))
	h.AddMessage("S1901M", msg("FRANCE", "ENGLAND", "channel?"))
	h.AddMessage("S1901M", msg("GERMANY", "RUSSIA", "secret"))
	h.AddMessage("F1901M", msg("ENGLAND", "FRANCE", "deal"))

	got := h.VisibleTo("ENGLAND")
	require.Len(t, got, 3)
	assert.Equal(t, "peace", got[0].Message.Content)
	assert.Equal(t, "channel?", got[1].Message.Content)
	assert.Equal(t, "F1901M", got[2].Phase)

	assert.Len(t, h.VisibleTo("RUSSIA"), 2)
	assert.Len(t, h.VisibleTo("ITALY"), 1)
}

func TestHistory_PhaseOrderAndCopies(t *testing.T) {
	h := New()
	h.AddPhase("S1901M")
	h.SetPlan("F1901M", "FRANCE", "take BEL")
	h.AddMessage("S1901M", msg("ITALY", game.GlobalRecipient, "hi"))

	assert.Equal(t, []string{"S1901M", "F1901M"}, h.PhaseNames())

	p, ok := h.Phase("S1901M")
	require.True(t, ok)
	p.Messages[0].Content = "mutated"
	again, _ := h.Phase("S1901M")
	assert.Equal(t, "hi", again.Messages[0].Content)

	plan, ok := h.Plan("F1901M", "FRANCE")
	assert.True(t, ok)
	assert.Equal(t, "take BEL", plan)
	_, ok = h.Plan("F1901M", "ITALY")
	assert.False(t, ok)
	_, ok = h.Phase("W1901A")
	assert.False(t, ok)
}

func TestHistory_AddOrdersPadsResults(t *testing.T) {
	h := New()
	h.AddOrders("S1901M", "FRANCE", []string{"A PAR - BUR", "A MAR H"}, [][]string{{"bounce"}})

	p, ok := h.Phase("S1901M")
	require.True(t, ok)
	assert.Equal(t, []string{"A PAR - BUR", "A MAR H"}, p.Orders["FRANCE"])
	require.Len(t, p.Results["FRANCE"], 2)
	assert.Equal(t, []string{"bounce"}, p.Results["FRANCE"][0])
	assert.Empty(t, p.Results["FRANCE"][1])
}

func TestHistory_Render(t *testing.T) {
	h := New()
	assert.Contains(t, h.Render("FRANCE", 5), "No game phases recorded yet")

	h.AddMessage("S1901M", msg("ENGLAND", game.GlobalRecipient, "hello all"))
	h.AddMessage("S1901M", msg("ENGLAND", "FRANCE", "just you"))
	h.AddMessage("S1901M", msg("GERMANY", "RUSSIA", "not for france"))
	h.AddPhase("F1901M")
	h.AddOrders("F1901M", "FRANCE", []string{"A PAR - BUR"}, [][]string{{"bounce"}})
	h.AddOrders("F1901M", "ENGLAND", []string{"F LON H"}, nil)

	out := h.Render("FRANCE", 5)
	assert.Contains(t, out, "GLOBAL:\n ENGLAND: hello all")
	assert.Contains(t, out, "ENGLAND -> FRANCE: just you")
	assert.NotContains(t, out, "not for france")
	assert.Contains(t, out, "A PAR - BUR (bounce)")
	assert.Contains(t, out, "F LON H (successful)")

	limited := h.Render("FRANCE", 1)
	assert.NotContains(t, limited, "hello all")
	assert.Contains(t, limited, "F1901M")
}

func TestHistory_ConcurrentReadWrite(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.AddMessage("S1901M", msg("FRANCE", game.GlobalRecipient, "x"))
		}()
		go func() {
			defer wg.Done()
			_ = h.VisibleTo("ENGLAND")
			_ = h.Render("ENGLAND", 0)
		}()
	}
	wg.Wait()
	assert.Len(t, h.VisibleTo("ENGLAND"), 10)
}
