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
	"strings"
)

// Provider names returned by ProviderFor.
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// ProviderFor picks the provider serving a model id.
//
// "ollama/..." ids go to Ollama. Otherwise the id is matched case
// insensitively: "claude" is Anthropic, "gemini" is Gemini, "deepseek" is
// DeepSeek, anything else is OpenAI.
func ProviderFor(modelID string) string {
	if strings.HasPrefix(modelID, OllamaPrefix) {
		return ProviderOllama
	}
	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "claude"):
		return ProviderAnthropic
	case strings.Contains(lower, "gemini"):
		return ProviderGemini
	case strings.Contains(lower, "deepseek"):
		return ProviderDeepSeek
	default:
		return ProviderOpenAI
	}
}

// Config returns the configuration of a provider by name.
func (p Providers) Config(provider string) ProviderConfig {
	switch provider {
	case ProviderDeepSeek:
		return p.DeepSeek
	case ProviderAnthropic:
		return p.Anthropic
	case ProviderGemini:
		return p.Gemini
	case ProviderOllama:
		return p.Ollama
	default:
		return p.OpenAI
	}
}

// NewClientForModel builds the ChatClient for a model id.
func NewClientForModel(ctx context.Context, modelID string, providers Providers) (ChatClient, error) {
	provider := ProviderFor(modelID)
	cfg := providers.Config(provider)
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(modelID, cfg)
	case ProviderGemini:
		return NewGeminiClient(ctx, modelID, cfg)
	case ProviderDeepSeek:
		return NewDeepSeekClient(modelID, cfg)
	case ProviderOllama:
		return NewOllamaClient(modelID, cfg)
	default:
		return NewOpenAIClient(modelID, cfg)
	}
}
