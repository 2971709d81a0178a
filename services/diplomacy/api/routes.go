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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianDiplomacy/services/diplomacy/stats"
)

const (
	serviceName     = "aleutian-diplomacy"
	shutdownTimeout = 5 * time.Second
)

// RegisterRoutes registers the stats routes on rg.
//
// Endpoints:
//
//	GET /v1/stats         - all counters
//	GET /v1/stats/*model  - one model; ids may contain "/"
//	GET /v1/models        - registered model ids
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.GET("/stats", handlers.HandleStats)
	rg.GET("/stats/*model", handlers.HandleModelStats)
	rg.GET("/models", handlers.HandleModels)
}

// NewRouter builds the full router: /health, /metrics and the /v1 group.
//
// # Inputs
//
//	registry - counters served under /v1.
//	gatherer - Prometheus registry served on /metrics; nil uses the
//	           default gatherer.
func NewRouter(registry *stats.Registry, gatherer prometheus.Gatherer) *gin.Engine {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	handlers := NewHandlers(registry)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	RegisterRoutes(router.Group("/v1"), handlers)
	return router
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stats server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("stats server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown stats server: %w", err)
	}
	logger.Info("stats server stopped")
	return nil
}
