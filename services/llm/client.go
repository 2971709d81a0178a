// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the model gateway: one ChatClient per provider and a
// Gateway that never lets a provider failure escape.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ChatClient generates one reply for a system directive and a user prompt.
type ChatClient interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// ChatClientFunc adapts a function to ChatClient.
type ChatClientFunc func(ctx context.Context, system, user string) (string, error)

// Generate implements ChatClient.
func (f ChatClientFunc) Generate(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// Sentinel errors.
var (
	ErrMissingAPIKey = errors.New("llm: api key not configured")
	ErrEmptyResponse = errors.New("llm: provider returned no content")
)

// ProviderConfig configures one provider.
type ProviderConfig struct {
	// BaseURL overrides the provider endpoint. Empty uses the default.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`

	// APIKey is used as-is when set; mainly for tests.
	APIKey string `yaml:"-" json:"-"`

	// MaxTokens caps the reply length. Zero uses the provider default.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" validate:"gte=0"`

	// Timeout bounds one HTTP call. Zero means 60s.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"gte=0"`

	// RequestsPerSecond and Burst configure the per-model rate limiter.
	// Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty" validate:"gte=0"`
	Burst             int     `yaml:"burst,omitempty" json:"burst,omitempty" validate:"gte=0"`
}

// Providers holds the configuration of every supported provider.
type Providers struct {
	OpenAI    ProviderConfig `yaml:"openai" json:"openai"`
	DeepSeek  ProviderConfig `yaml:"deepseek" json:"deepseek"`
	Anthropic ProviderConfig `yaml:"anthropic" json:"anthropic"`
	Gemini    ProviderConfig `yaml:"gemini" json:"gemini"`
	Ollama    ProviderConfig `yaml:"ollama" json:"ollama"`
}

// DefaultProviders returns the standard env var names and endpoints.
func DefaultProviders() Providers {
	return Providers{
		OpenAI:    ProviderConfig{APIKeyEnv: "OPENAI_API_KEY"},
		DeepSeek:  ProviderConfig{APIKeyEnv: "DEEPSEEK_API_KEY", BaseURL: defaultDeepSeekURL},
		Anthropic: ProviderConfig{APIKeyEnv: "ANTHROPIC_API_KEY", BaseURL: defaultAnthropicURL},
		Gemini:    ProviderConfig{APIKeyEnv: "GEMINI_API_KEY"},
		Ollama:    ProviderConfig{BaseURL: defaultOllamaURL},
	}
}

const defaultTimeout = 60 * time.Second

func (c ProviderConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// apiKey resolves the provider key: explicit value, then the environment,
// then a container secret file named after the variable.
func (c ProviderConfig) apiKey() (string, error) {
	if c.APIKey != "" {
		return c.APIKey, nil
	}
	if c.APIKeyEnv == "" {
		return "", ErrMissingAPIKey
	}
	if v := strings.TrimSpace(os.Getenv(c.APIKeyEnv)); v != "" {
		return v, nil
	}
	secretPath := "/run/secrets/" + strings.ToLower(c.APIKeyEnv)
	if content, err := os.ReadFile(secretPath); err == nil {
		if v := strings.TrimSpace(string(content)); v != "" {
			slog.Info("read API key from container secret", slog.String("path", secretPath))
			return v, nil
		}
	}
	return "", ErrMissingAPIKey
}
