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

	"github.com/sashabaranov/go-openai"
)

const defaultDeepSeekURL = "https://api.deepseek.com"

// OpenAIClient talks to the OpenAI chat completions API or any endpoint
// compatible with it (DeepSeek).
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
	provider  string
}

// NewOpenAIClient creates a client for an OpenAI model.
func NewOpenAIClient(model string, cfg ProviderConfig) (*OpenAIClient, error) {
	return newOpenAICompatible("openai", model, cfg)
}

// NewDeepSeekClient creates a client for a DeepSeek model via its
// OpenAI-compatible endpoint.
func NewDeepSeekClient(model string, cfg ProviderConfig) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDeepSeekURL
	}
	return newOpenAICompatible("deepseek", model, cfg)
}

func newOpenAICompatible(provider, model string, cfg ProviderConfig) (*OpenAIClient, error) {
	apiKey, err := cfg.apiKey()
	if err != nil {
		return nil, fmt.Errorf("%s client for %s: %w", provider, model, err)
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.timeout()}

	slog.Info("Initializing OpenAI-compatible client",
		slog.String("provider", provider),
		slog.String("model", model))
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: cfg.MaxTokens,
		provider:  provider,
	}, nil
}

// Generate implements ChatClient.
func (o *OpenAIClient) Generate(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if o.maxTokens > 0 {
		req.MaxCompletionTokens = o.maxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s API call failed: %w", o.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", o.provider, ErrEmptyResponse)
	}
	slog.Debug("Received response",
		slog.String("provider", o.provider),
		slog.String("model", o.model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}
