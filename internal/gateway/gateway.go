// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package gateway implements the recognition pipeline: quota check,
// fingerprint, cache lookup, model selection, fallback orchestration,
// and write-through caching of the result.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/gomuseum/gateway/internal/cache"
	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/fallback"
	"github.com/gomuseum/gateway/internal/fingerprint"
	"github.com/gomuseum/gateway/internal/logging"
	"github.com/gomuseum/gateway/internal/metrics"
	"github.com/gomuseum/gateway/internal/models"
	"github.com/gomuseum/gateway/internal/registry"
	"github.com/gomuseum/gateway/internal/selector"
	"github.com/gomuseum/gateway/internal/stats"
)

// Request is one recognition request after transport decoding.
type Request struct {
	Image        []byte
	LanguageHint string
	Strategy     models.Strategy
	Constraints  models.Constraints
	UserID       string

	// Proximity weights the cached result's eviction score; 0 means no
	// proximity signal.
	Proximity float64
}

// Service is the recognition gateway facade used by the HTTP layer.
type Service struct {
	cfg      config.Config
	cache    *cache.Manager
	registry *registry.Registry
	selector *selector.Selector
	chain    *fallback.Orchestrator
	monitor  *stats.Monitor
	quota    QuotaService
}

// New wires the pipeline. quota may be nil, in which case requests are
// admitted without limits.
func New(cfg config.Config, cacheMgr *cache.Manager, reg *registry.Registry, sel *selector.Selector, chain *fallback.Orchestrator, monitor *stats.Monitor, quota QuotaService) *Service {
	if quota == nil {
		quota = UnlimitedQuota{}
	}
	return &Service{
		cfg:      cfg,
		cache:    cacheMgr,
		registry: reg,
		selector: sel,
		chain:    chain,
		monitor:  monitor,
		quota:    quota,
	}
}

// Recognize runs the full pipeline and returns the outcome.
//
// Error cases surface as sentinel errors from the models package:
// ErrInvalidInput (bad image), ErrQuotaExceeded, ErrNoEligibleModel.
// Exhaustion of the fallback chain is NOT an error: the caller receives
// a degraded outcome so the client can fall back gracefully.
func (s *Service) Recognize(ctx context.Context, req Request) (models.RecognitionOutcome, error) {
	started := time.Now()

	if err := s.quota.Check(ctx, req.UserID); err != nil {
		metrics.QuotaRejections.Inc()
		s.observe("rejected", started)
		return models.RecognitionOutcome{}, err
	}

	key, err := fingerprint.Extract(req.Image, s.cfg.API.MaxImageBytes)
	if err != nil {
		s.observe("rejected", started)
		return models.RecognitionOutcome{}, err
	}

	if outcome, ok := s.cache.Lookup(ctx, key); ok {
		outcome.Cached = true
		outcome.ProcessingTimeMs = time.Since(started).Milliseconds()
		s.observe("cached", started)
		return outcome, nil
	}

	ranked, err := s.selector.Select(models.SelectionRequest{
		Strategy:       req.Strategy,
		Constraints:    req.Constraints,
		GlobalDeadline: started.Add(s.cfg.Fallback.TotalBudget),
	})
	if err != nil {
		s.observe("rejected", started)
		return models.RecognitionOutcome{}, err
	}

	outcome, err := s.chain.Execute(ctx, req.Image, req.LanguageHint, ranked)
	if err != nil {
		if errors.Is(err, models.ErrAllModelsExhausted) {
			logging.Warn().
				Str("fingerprint", key.String()).
				Int("candidates", len(ranked)).
				Msg("fallback chain exhausted, returning degraded outcome")
			s.observe("degraded", started)
			return outcome, nil
		}
		s.observe("rejected", started)
		return models.RecognitionOutcome{}, err
	}

	s.finish(ctx, key, &outcome, req)
	s.observe("recognized", started)
	return outcome, nil
}

// finish caches the fresh outcome, marks popular pieces, and commits the
// user's quota.
func (s *Service) finish(ctx context.Context, key models.FingerprintKey, outcome *models.RecognitionOutcome, req Request) {
	s.cache.Store(ctx, key, *outcome, req.Proximity)

	if outcome.TopConfidence() > s.cfg.Stats.PopularityThreshold {
		s.cache.MarkPopular(key)
	}

	if err := s.quota.Commit(ctx, req.UserID); err != nil {
		// The user already has the result; losing one quota tick is
		// preferable to failing the request after the fact.
		logging.Warn().Err(err).Str("user", req.UserID).Msg("quota commit failed")
	}
}

func (s *Service) observe(result string, started time.Time) {
	metrics.RequestDuration.WithLabelValues(result).Observe(time.Since(started).Seconds())
}

// Rankings returns the current candidate ordering for a strategy, used
// by the models listing endpoint.
func (s *Service) Rankings(strategy models.Strategy, constraints models.Constraints) (models.SelectionResult, error) {
	return s.selector.Select(models.SelectionRequest{
		Strategy:    strategy,
		Constraints: constraints,
	})
}

// Stats returns the per-model statistics snapshot.
func (s *Service) Stats() []models.ModelStats {
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Snapshot()
}

// CacheEntries reports the tier-1 entry count for the stats endpoint.
func (s *Service) CacheEntries() int {
	return s.cache.Entries()
}

// Ready reports whether downstream dependencies are reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.cache.Ready(ctx)
}
