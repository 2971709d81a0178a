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
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianDiplomacy/pkg/logging"
	"github.com/AleutianAI/AleutianDiplomacy/pkg/telemetry"
)

var tracer = otel.Tracer("aleutian.llm")

// FailureHook is called once for every generation that failed.
type FailureHook func(modelID string, err error)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// ModelID is the model this gateway serves; used for logs and the hook.
	ModelID string

	// Logging supplies the prompt/response verbosity switches.
	Logging logging.Config

	// RequestsPerSecond and Burst rate-limit calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	// OnFailure receives every transport error and recovered panic.
	OnFailure FailureHook
}

// Gateway is the only path from the pipeline to a model.
//
// # Description
//
// Generate never returns an error. A provider error, a panic inside the
// client or a rate limiter wait cut short by ctx all yield "" and invoke
// OnFailure. Whitespace-only replies are returned as "".
//
// # Thread Safety
//
// Gateway is safe for concurrent use if its ChatClient is.
type Gateway struct {
	client  ChatClient
	cfg     GatewayConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGateway wraps client. A nil logger falls back to slog.Default().
func NewGateway(client ChatClient, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("model", cfg.ModelID)),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

// ModelID returns the served model id.
func (g *Gateway) ModelID() string {
	return g.cfg.ModelID
}

// Generate returns the model's reply, or "" on any failure.
func (g *Gateway) Generate(ctx context.Context, system, user string) (text string) {
	ctx, span := tracer.Start(ctx, "llm.Generate",
		trace.WithAttributes(
			attribute.String("llm.model", g.cfg.ModelID),
			attribute.Int("llm.prompt_chars", len(user)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			text = ""
			g.fail(ctx, span, fmt.Errorf("llm: client panicked: %v", r))
		}
	}()

	g.logPrompt(user)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.fail(ctx, span, fmt.Errorf("rate limiter: %w", err))
			return ""
		}
	}

	raw, err := g.client.Generate(ctx, system, user)
	if err != nil {
		g.fail(ctx, span, err)
		return ""
	}
	if strings.TrimSpace(raw) == "" {
		raw = ""
	}

	span.SetAttributes(attribute.Int("llm.response_chars", len(raw)))
	span.SetStatus(codes.Ok, "")
	g.logResponse(raw, time.Since(start))
	return raw
}

func (g *Gateway) fail(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	telemetry.LoggerWithTrace(ctx, g.logger).Error("model call failed", slog.String("error", err.Error()))
	if g.cfg.OnFailure != nil {
		g.cfg.OnFailure(g.cfg.ModelID, err)
	}
}

func (g *Gateway) logPrompt(user string) {
	if g.cfg.Logging.LogFullPrompts {
		g.logger.Info("prompt", slog.String("text", user))
		return
	}
	g.logger.Debug("prompt", slog.String("preview", logging.Truncate(user, g.cfg.Logging.Preview())))
}

func (g *Gateway) logResponse(raw string, elapsed time.Duration) {
	if g.cfg.Logging.LogFullResponses {
		g.logger.Info("response", slog.String("text", raw), slog.Duration("duration", elapsed))
		return
	}
	g.logger.Debug("response",
		slog.String("preview", logging.Truncate(raw, g.cfg.Logging.Preview())),
		slog.Int("chars", len(raw)),
		slog.Duration("duration", elapsed))
}
