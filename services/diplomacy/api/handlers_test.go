// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/stats"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*gin.Engine, *stats.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	registry := stats.NewRegistry(stats.WithMetrics(stats.NewMetrics(reg)))
	require.NoError(t, registry.Add("gpt-4o", stats.OrderDecodingErrors, 2))
	require.NoError(t, registry.Increment("gpt-4o", stats.ConversationErrors))
	require.NoError(t, registry.Increment("claude-3-5-sonnet", stats.ConversationErrors))
	registry.Touch("gemini-1.5-pro")
	return NewRouter(registry, reg), registry
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	router, _ := setupRouter(t)
	w := get(t, router, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.Equal(t, 3, resp.Models)
}

func TestHandleStats(t *testing.T) {
	router, _ := setupRouter(t)
	w := get(t, router, "/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, stats.ErrorCounts{OrderDecodingErrors: 2, ConversationErrors: 1}, resp.Models["gpt-4o"])
	assert.Equal(t, stats.ErrorCounts{}, resp.Models["gemini-1.5-pro"])
	assert.Equal(t, stats.ErrorCounts{OrderDecodingErrors: 2, ConversationErrors: 2}, resp.Totals)

	// The wire keys are part of the contract.
	var raw map[string]map[string]map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, 2, raw["models"]["gpt-4o"]["order_decoding_errors"])
	assert.Equal(t, 1, raw["models"]["gpt-4o"]["conversation_errors"])
}

func TestHandleModelStats(t *testing.T) {
	router, _ := setupRouter(t)

	w := get(t, router, "/v1/stats/claude-3-5-sonnet")
	require.Equal(t, http.StatusOK, w.Code)
	var resp ModelStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "claude-3-5-sonnet", resp.Model)
	assert.Equal(t, int64(1), resp.ConversationErrors)
	assert.Equal(t, int64(1), resp.Total)

	w = get(t, router, "/v1/stats/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Contains(t, errResp.Error, "unknown")
}

func TestHandleModelStats_ModelWithSlash(t *testing.T) {
	router, registry := setupRouter(t)
	require.NoError(t, registry.Increment("ollama/llama3", stats.OrderDecodingErrors))

	w := get(t, router, "/v1/stats/ollama/llama3")
	require.Equal(t, http.StatusOK, w.Code)
	var resp ModelStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ollama/llama3", resp.Model)
	assert.Equal(t, int64(1), resp.OrderDecodingErrors)

	w = get(t, router, "/v1/stats/ollama/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, router, "/v1/stats/")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The catch-all route leaves the listing route alone.
	w = get(t, router, "/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var all StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Contains(t, all.Models, "ollama/llama3")
}

func TestHandleModels(t *testing.T) {
	router, _ := setupRouter(t)
	w := get(t, router, "/v1/models")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Models []string `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"claude-3-5-sonnet", "gemini-1.5-pro", "gpt-4o"}, resp.Models)
}

func TestMetricsEndpoint(t *testing.T) {
	router, registry := setupRouter(t)
	registry.RecordTransportFailure("gpt-4o", errors.New("timeout"))

	w := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `aleutian_diplomacy_pipeline_errors_total{counter="order_decoding_errors",model="gpt-4o"} 2`)
	assert.Contains(t, body, `aleutian_diplomacy_transport_failures_total{model="gpt-4o"} 1`)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	router, _ := setupRouter(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, router, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServe_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = Serve(context.Background(), ln.Addr().String(), http.NotFoundHandler(), nil)
	assert.Error(t, err)
}
