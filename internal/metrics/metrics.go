// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package metrics defines Prometheus collectors for the recognition
// gateway. All collectors are registered with the default registry via
// promauto at package initialization.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts cache hits partitioned by tier (tier1, tier2).
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gomuseum_cache_hits_total",
		Help: "Total cache hits by tier",
	}, []string{"tier"})

	// CacheMisses counts full cache misses (neither tier held the key).
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomuseum_cache_misses_total",
		Help: "Total cache misses across all tiers",
	})

	// CacheEvictions counts tier-1 entries removed, partitioned by
	// reason (scored, expired, corrupt).
	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gomuseum_cache_evictions_total",
		Help: "Total tier-1 cache evictions by reason",
	}, []string{"reason"})

	// CacheEntries tracks the current tier-1 entry count.
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gomuseum_cache_entries",
		Help: "Current number of tier-1 cache entries",
	})

	// CachePromotions counts tier-2 hits promoted into tier 1.
	CachePromotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomuseum_cache_promotions_total",
		Help: "Total entries promoted from tier 2 to tier 1",
	})

	// Tier2Errors counts tier-2 store failures by operation (get, set).
	Tier2Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gomuseum_cache_tier2_errors_total",
		Help: "Total tier-2 cache store errors by operation",
	}, []string{"op"})

	// ModelSelections counts selector decisions by strategy and winner.
	ModelSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gomuseum_model_selections_total",
		Help: "Total model selections by strategy and chosen model",
	}, []string{"strategy", "model"})

	// ModelAttempts counts recognition attempts by model and outcome
	// (success, timeout, error, rejected).
	ModelAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gomuseum_model_attempts_total",
		Help: "Total model invocation attempts by model and outcome",
	}, []string{"model", "outcome"})

	// ModelLatency observes per-model invocation latency in seconds.
	ModelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gomuseum_model_latency_seconds",
		Help:    "Model invocation latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 4, 5},
	}, []string{"model"})

	// FallbackDepth observes how many attempts a request needed before
	// success or exhaustion.
	FallbackDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gomuseum_fallback_depth",
		Help:    "Number of model attempts per recognition request",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	// DegradedResponses counts requests that exhausted every candidate.
	DegradedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomuseum_degraded_responses_total",
		Help: "Total recognition requests answered with a degraded response",
	})

	// BreakerState tracks circuit breaker state per provider
	// (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gomuseum_breaker_state",
		Help: "Circuit breaker state by provider (0=closed, 1=half-open, 2=open)",
	}, []string{"provider"})

	// ModelHealthy tracks the health monitor's verdict per model
	// (1=healthy, 0=disabled).
	ModelHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gomuseum_model_healthy",
		Help: "Model health status (1=healthy, 0=disabled by health monitor)",
	}, []string{"model"})

	// RequestDuration observes end-to-end recognition latency by result
	// (cached, recognized, degraded, rejected).
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gomuseum_request_duration_seconds",
		Help:    "End-to-end recognition request duration by result",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"result"})

	// HTTPRequests counts HTTP requests by method, route, and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gomuseum_http_requests_total",
		Help: "Total HTTP requests by method, route, and status code",
	}, []string{"method", "route", "status"})

	// QuotaRejections counts requests refused for exceeded quota.
	QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gomuseum_quota_rejections_total",
		Help: "Total recognition requests rejected by quota enforcement",
	})
)
