// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/gateway"
)

// NewRouter assembles the HTTP surface:
//
//	POST /api/v1/recognize  - recognize an artwork image
//	GET  /api/v1/models     - current model ranking
//	GET  /api/v1/stats      - per-model statistics
//	GET  /health/live       - liveness probe
//	GET  /health/ready      - readiness probe
//	GET  /metrics           - Prometheus metrics
func NewRouter(svc *gateway.Service, cfg config.Config) http.Handler {
	h := &handlers{svc: svc}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverer)
	r.Use(observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.API.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health/live", h.live)
	r.Get("/health/ready", h.ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.API.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(cfg.API.RateLimitReqs, cfg.API.RateLimitWindow))
		}
		r.Post("/recognize", h.recognize)
		r.Get("/models", h.listModels)
		r.Get("/stats", h.getStats)
	})

	return r
}
