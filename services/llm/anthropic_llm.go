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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	anthropicAPIVersion       = "2023-06-01"
	defaultAnthropicURL       = "https://api.anthropic.com/v1/messages"
	defaultAnthropicMaxTokens = 4096
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    []systemBlock      `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient calls the Messages API over plain HTTP.
type AnthropicClient struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	maxTokens  int
}

// NewAnthropicClient creates a client for a Claude model.
func NewAnthropicClient(model string, cfg ProviderConfig) (*AnthropicClient, error) {
	apiKey, err := cfg.apiKey()
	if err != nil {
		return nil, fmt.Errorf("anthropic client for %s: %w", model, err)
	}
	url := cfg.BaseURL
	if url == "" {
		url = defaultAnthropicURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: cfg.timeout()},
		url:        url,
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
	}, nil
}

// Generate implements ChatClient.
func (a *AnthropicClient) Generate(ctx context.Context, system, user string) (string, error) {
	reqPayload := anthropicRequest{
		Model:     a.model,
		Messages:  []anthropicMessage{{Role: "user", Content: user}},
		MaxTokens: a.maxTokens,
	}
	if system != "" {
		block := systemBlock{Type: "text", Text: system}
		// The system directive is identical for every call of a power.
		if len(system) > 1024 {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		reqPayload.System = []systemBlock{block}
	}

	reqBodyBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(reqBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	slog.Debug("Sending REST request to Anthropic", slog.String("model", a.model))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var finalText strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			finalText.WriteString(block.Text)
		}
	}
	if finalText.Len() == 0 {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}
	return finalText.String(), nil
}
