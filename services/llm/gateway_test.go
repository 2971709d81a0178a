// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDiplomacy/pkg/logging"
)

type failureLog struct {
	mu    sync.Mutex
	calls []string
}

func (f *failureLog) hook(modelID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelID+": "+err.Error())
}

func (f *failureLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestGateway(client ChatClient, cfg GatewayConfig) (*Gateway, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewGateway(client, cfg, logger), &buf
}

func TestGateway_PassesThrough(t *testing.T) {
	var gotSystem, gotUser string
	client := ChatClientFunc(func(ctx context.Context, system, user string) (string, error) {
		gotSystem, gotUser = system, user
		return "PARSABLE OUTPUT: {}", nil
	})
	failures := &failureLog{}
	g, _ := newTestGateway(client, GatewayConfig{ModelID: "gpt-4o", OnFailure: failures.hook})

	out := g.Generate(context.Background(), "sys", "user")
	assert.Equal(t, "PARSABLE OUTPUT: {}", out)
	assert.Equal(t, "sys", gotSystem)
	assert.Equal(t, "user", gotUser)
	assert.Equal(t, "gpt-4o", g.ModelID())
	assert.Zero(t, failures.count())
}

func TestGateway_ErrorBecomesEmpty(t *testing.T) {
	client := ChatClientFunc(func(ctx context.Context, system, user string) (string, error) {
		return "", errors.New("connection refused")
	})
	failures := &failureLog{}
	g, buf := newTestGateway(client, GatewayConfig{ModelID: "claude-3", OnFailure: failures.hook})

	assert.Equal(t, "", g.Generate(context.Background(), "", "hi"))
	require.Equal(t, 1, failures.count())
	assert.Equal(t, "claude-3: connection refused", failures.calls[0])
	assert.Contains(t, buf.String(), "model call failed")
}

func TestGateway_PanicBecomesEmpty(t *testing.T) {
	client := ChatClientFunc(func(ctx context.Context, system, user string) (string, error) {
		panic("nil map")
	})
	failures := &failureLog{}
	g, _ := newTestGateway(client, GatewayConfig{ModelID: "m", OnFailure: failures.hook})

	assert.NotPanics(t, func() {
		assert.Equal(t, "", g.Generate(context.Background(), "", "hi"))
	})
	require.Equal(t, 1, failures.count())
	assert.Contains(t, failures.calls[0], "panicked")
}

func TestGateway_WhitespaceIsEmpty(t *testing.T) {
	client := ChatClientFunc(func(ctx context.Context, system, user string) (string, error) {
		return " \n\t ", nil
	})
	failures := &failureLog{}
	g, _ := newTestGateway(client, GatewayConfig{ModelID: "m", OnFailure: failures.hook})

	assert.Equal(t, "", g.Generate(context.Background(), "", "hi"))
	assert.Zero(t, failures.count())
}

func TestGateway_NilHookAndLogger(t *testing.T) {
	client := ChatClientFunc(func(ctx context.Context, system, user string) (string, error) {
		return "", errors.New("boom")
	})
	g := NewGateway(client, GatewayConfig{ModelID: "m"}, nil)
	assert.Equal(t, "", g.Generate(context.Background(), "", "hi"))
}

func TestGateway_PromptLogging(t *testing.T) {
	prompt := strings.Repeat("p", 500)
	client := ChatClientFunc(func(ctx context.Context, system, user string) (string, error) {
		return strings.Repeat("r", 500), nil
	})

	t.Run("preview", func(t *testing.T) {
		g, buf := newTestGateway(client, GatewayConfig{ModelID: "m", Logging: logging.Config{PreviewChars: 10}})
		g.Generate(context.Background(), "", prompt)
		assert.Contains(t, buf.String(), "pppppppppp... [truncated, total length: 500 chars]")
		assert.Contains(t, buf.String(), "rrrrrrrrrr... [truncated, total length: 500 chars]")
		assert.NotContains(t, buf.String(), prompt)
	})

	t.Run("full", func(t *testing.T) {
		g, buf := newTestGateway(client, GatewayConfig{
			ModelID: "m",
			Logging: logging.Config{LogFullPrompts: true, LogFullResponses: true},
		})
		g.Generate(context.Background(), "", prompt)
		assert.Contains(t, buf.String(), prompt)
		assert.Contains(t, buf.String(), strings.Repeat("r", 500))
	})
}

func TestGateway_RateLimiterHonoursContext(t *testing.T) {
	calls := 0
	client := ChatClientFunc(func(ctx context.Context, system, user string) (string, error) {
		calls++
		return "ok", nil
	})
	failures := &failureLog{}
	g, _ := newTestGateway(client, GatewayConfig{
		ModelID:           "m",
		RequestsPerSecond: 0.001,
		Burst:             1,
		OnFailure:         failures.hook,
	})

	assert.Equal(t, "ok", g.Generate(context.Background(), "", "first"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, "", g.Generate(ctx, "", "second"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, failures.count())
}
