// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the per-model error counters over HTTP.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/stats"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Models  int    `json:"models"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Models map[string]stats.ErrorCounts `json:"models"`
	Totals stats.ErrorCounts            `json:"totals"`
}

// ModelStatsResponse is the body of GET /v1/stats/*model.
type ModelStatsResponse struct {
	Model string `json:"model"`
	stats.ErrorCounts
	Total int64 `json:"total"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handlers holds the HTTP handlers.
type Handlers struct {
	registry *stats.Registry
}

// NewHandlers creates handlers reading from registry.
func NewHandlers(registry *stats.Registry) *Handlers {
	return &Handlers{registry: registry}
}

// HandleHealth handles GET /health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		Models:  len(h.registry.Models()),
	})
}

// HandleStats handles GET /v1/stats.
//
// Description:
//
//	Returns a snapshot of every model's counters keyed by model id, plus
//	the sums across models.
//
// Response:
//
//	200 OK: StatsResponse
func (h *Handlers) HandleStats(c *gin.Context) {
	snap := h.registry.Snapshot()
	var totals stats.ErrorCounts
	for _, counts := range snap {
		totals.OrderDecodingErrors += counts.OrderDecodingErrors
		totals.ConversationErrors += counts.ConversationErrors
	}
	c.JSON(http.StatusOK, StatsResponse{Models: snap, Totals: totals})
}

// HandleModelStats handles GET /v1/stats/*model. The rest of the path is
// the model id, so "ollama/llama3" is served at /v1/stats/ollama/llama3.
//
// Response:
//
//	200 OK: ModelStatsResponse
//	400 Bad Request: ErrorResponse when no model id is given
//	404 Not Found: ErrorResponse when the model has no entry
func (h *Handlers) HandleModelStats(c *gin.Context) {
	model := strings.TrimPrefix(c.Param("model"), "/")
	if model == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "model id required"})
		return
	}
	counts, ok := h.registry.Get(model)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown model: " + model})
		return
	}
	c.JSON(http.StatusOK, ModelStatsResponse{Model: model, ErrorCounts: counts, Total: counts.Total()})
}

// HandleModels handles GET /v1/models and lists the registered model ids
// sorted by name.
func (h *Handlers) HandleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": h.registry.Models()})
}
