// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder stamps unit starts and ends with a global sequence number.
type recorder struct {
	clock atomic.Int64

	mu     sync.Mutex
	starts map[int][]int64
	ends   map[int][]int64

	running    atomic.Int64
	maxRunning atomic.Int64
}

func newRecorder() *recorder {
	return &recorder{starts: map[int][]int64{}, ends: map[int][]int64{}}
}

func (r *recorder) unit(round int, key string, d time.Duration) Unit[string] {
	return Unit[string]{
		Key: key,
		Run: func(ctx context.Context) (string, error) {
			n := r.running.Add(1)
			for {
				m := r.maxRunning.Load()
				if n <= m || r.maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			r.mu.Lock()
			r.starts[round] = append(r.starts[round], r.clock.Add(1))
			r.mu.Unlock()

			time.Sleep(d)

			r.mu.Lock()
			r.ends[round] = append(r.ends[round], r.clock.Add(1))
			r.mu.Unlock()
			r.running.Add(-1)
			return key, nil
		},
	}
}

func TestNewDispatcher_PoolSizeMustBeExplicit(t *testing.T) {
	_, err := NewDispatcher[string](Config{Name: "negotiation"}, nil)
	assert.ErrorIs(t, err, ErrPoolSizeUnset)

	_, err = NewDispatcher[string](Config{Workers: -2}, nil)
	assert.ErrorIs(t, err, ErrInvalidPoolSize)

	d, err := NewDispatcher[string](Config{Workers: FullFanOut}, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, d.Workers(7))

	d, err = NewDispatcher[string](Config{Workers: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Workers(7))
	assert.Equal(t, 2, d.Workers(2))
}

func TestDispatcher_RoundBarrier(t *testing.T) {
	rec := newRecorder()
	d, err := NewDispatcher[string](Config{Name: "barrier", Workers: FullFanOut}, nil)
	require.NoError(t, err)

	const rounds = 4
	keys := []string{"AUSTRIA", "ENGLAND", "FRANCE", "GERMANY", "ITALY"}
	plan := func(round int) []Unit[string] {
		units := make([]Unit[string], 0, len(keys))
		for i, k := range keys {
			units = append(units, rec.unit(round, k, time.Duration(i+1)*time.Millisecond))
		}
		return units
	}

	collected := 0
	summaries, err := d.Run(context.Background(), rounds, plan, func(o Outcome[string]) {
		require.NoError(t, o.Err)
		collected++
	})
	require.NoError(t, err)
	require.Len(t, summaries, rounds)
	assert.Equal(t, rounds*len(keys), collected)

	for round := 1; round < rounds; round++ {
		var lastEnd int64
		for _, e := range rec.ends[round-1] {
			lastEnd = max(lastEnd, e)
		}
		for _, s := range rec.starts[round] {
			assert.Greater(t, s, lastEnd, "round %d started before round %d finished", round, round-1)
		}
	}
}

func TestDispatcher_SingleWorkerSerializes(t *testing.T) {
	rec := newRecorder()
	d, err := NewDispatcher[string](Config{Workers: 1}, nil)
	require.NoError(t, err)

	units := []Unit[string]{
		rec.unit(0, "A", 2*time.Millisecond),
		rec.unit(0, "B", 2*time.Millisecond),
		rec.unit(0, "C", 2*time.Millisecond),
	}
	summary := d.RunRound(context.Background(), 0, units, nil)

	assert.Equal(t, int64(1), rec.maxRunning.Load())
	assert.Equal(t, 3, summary.Submitted)
	assert.Equal(t, 1, summary.Workers)
}

func TestDispatcher_FullFanOutRunsAllAtOnce(t *testing.T) {
	const n = 7
	d, err := NewDispatcher[int](Config{Workers: FullFanOut}, nil)
	require.NoError(t, err)

	// Every unit waits until all n have started; this only completes if the
	// pool admits all of them together.
	var started sync.WaitGroup
	started.Add(n)
	allIn := make(chan struct{})
	go func() {
		started.Wait()
		close(allIn)
	}()

	units := make([]Unit[int], n)
	for i := range units {
		units[i] = Unit[int]{
			Key: fmt.Sprint(i),
			Run: func(ctx context.Context) (int, error) {
				started.Done()
				select {
				case <-allIn:
					return i, nil
				case <-time.After(5 * time.Second):
					return i, errors.New("pool did not fan out")
				}
			},
		}
	}

	summary := d.RunRound(context.Background(), 0, units, func(o Outcome[int]) {
		assert.NoError(t, o.Err)
	})
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, n, summary.Workers)
}

func TestDispatcher_CollectsInCompletionOrder(t *testing.T) {
	d, err := NewDispatcher[string](Config{Workers: FullFanOut}, nil)
	require.NoError(t, err)

	release := map[string]chan struct{}{
		"slow": make(chan struct{}),
		"fast": make(chan struct{}),
	}
	unit := func(key string) Unit[string] {
		return Unit[string]{Key: key, Run: func(ctx context.Context) (string, error) {
			<-release[key]
			return key, nil
		}}
	}

	go func() {
		close(release["fast"])
		time.Sleep(20 * time.Millisecond)
		close(release["slow"])
	}()

	var order []string
	var seqs []int
	d.RunRound(context.Background(), 0, []Unit[string]{unit("slow"), unit("fast")}, func(o Outcome[string]) {
		order = append(order, o.Value)
		seqs = append(seqs, o.Seq)
	})
	assert.Equal(t, []string{"fast", "slow"}, order)
	assert.Equal(t, []int{0, 1}, seqs)
}

func TestDispatcher_ErrorsAndPanicsAreOutcomes(t *testing.T) {
	d, err := NewDispatcher[string](Config{Workers: 2}, nil)
	require.NoError(t, err)

	boom := errors.New("transport down")
	units := []Unit[string]{
		{Key: "ok", Run: func(ctx context.Context) (string, error) { return "fine", nil }},
		{Key: "err", Run: func(ctx context.Context) (string, error) { return "", boom }},
		{Key: "panic", Run: func(ctx context.Context) (string, error) { panic("bad reply") }},
		{Key: "nil"},
	}

	got := map[string]Outcome[string]{}
	summary := d.RunRound(context.Background(), 0, units, func(o Outcome[string]) {
		got[o.Key] = o
	})

	assert.Equal(t, 3, summary.Failed)
	assert.NoError(t, got["ok"].Err)
	assert.Equal(t, "fine", got["ok"].Value)
	assert.ErrorIs(t, got["err"].Err, boom)
	assert.ErrorIs(t, got["panic"].Err, ErrUnitPanicked)
	assert.Contains(t, got["panic"].Err.Error(), "bad reply")
	assert.Error(t, got["nil"].Err)
}

func TestDispatcher_PlanSeesPreviousRound(t *testing.T) {
	d, err := NewDispatcher[int](Config{Workers: FullFanOut}, nil)
	require.NoError(t, err)

	total := 0
	var plannedWith []int
	plan := func(round int) []Unit[int] {
		plannedWith = append(plannedWith, total)
		return []Unit[int]{
			{Key: "a", Run: func(ctx context.Context) (int, error) { return 1, nil }},
			{Key: "b", Run: func(ctx context.Context) (int, error) { return 2, nil }},
		}
	}
	_, err = d.Run(context.Background(), 3, plan, func(o Outcome[int]) { total += o.Value })
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, plannedWith)
	assert.Equal(t, 9, total)
}

func TestDispatcher_EmptyRoundAndCancel(t *testing.T) {
	d, err := NewDispatcher[int](Config{Workers: 1}, nil)
	require.NoError(t, err)

	summaries, err := d.Run(context.Background(), 2, func(int) []Unit[int] { return nil }, nil)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
	assert.Equal(t, 0, summaries[0].Submitted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summaries, err = d.Run(ctx, 2, func(int) []Unit[int] { return nil }, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summaries)
}
