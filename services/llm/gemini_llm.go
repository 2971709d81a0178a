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
	"net/http"

	"google.golang.org/genai"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGeminiClient creates a client for a Gemini model.
func NewGeminiClient(ctx context.Context, model string, cfg ProviderConfig) (*GeminiClient, error) {
	apiKey, err := cfg.apiKey()
	if err != nil {
		return nil, fmt.Errorf("gemini client for %s: %w", model, err)
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.timeout()},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: model, maxTokens: int32(cfg.MaxTokens)}, nil
}

// Generate implements ChatClient.
func (g *GeminiClient) Generate(ctx context.Context, system, user string) (string, error) {
	genCfg := &genai.GenerateContentConfig{}
	if system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if g.maxTokens > 0 {
		genCfg.MaxOutputTokens = g.maxTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return text, nil
}
