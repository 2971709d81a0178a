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
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	defaultOllamaURL = "http://localhost:11434"

	// OllamaPrefix selects the local Ollama provider: "ollama/llama3.1".
	OllamaPrefix = "ollama/"
)

// OllamaClient talks to a local Ollama server through langchaingo.
type OllamaClient struct {
	llm       *ollama.LLM
	model     string
	maxTokens int
}

// NewOllamaClient creates a client. model may carry the OllamaPrefix.
func NewOllamaClient(model string, cfg ProviderConfig) (*OllamaClient, error) {
	model = strings.TrimPrefix(model, OllamaPrefix)
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(baseURL),
		ollama.WithHTTPClient(&http.Client{Timeout: cfg.timeout()}),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama client for %s: %w", model, err)
	}
	slog.Info("Initializing Ollama client", slog.String("base_url", baseURL), slog.String("model", model))
	return &OllamaClient{llm: llm, model: model, maxTokens: cfg.MaxTokens}, nil
}

// Generate implements ChatClient.
func (o *OllamaClient) Generate(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	var opts []llms.CallOption
	if o.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(o.maxTokens))
	}

	resp, err := o.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("ollama call failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama: %w", ErrEmptyResponse)
	}
	return resp.Choices[0].Content, nil
}
