// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package selector ranks recognition models for a request. Candidates
// are filtered by hard constraints, then scored by the requested
// strategy; the ordered result drives the fallback chain and is computed
// exactly once per request.
package selector

import (
	"fmt"
	"sort"
	"time"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/metrics"
	"github.com/gomuseum/gateway/internal/models"
	"github.com/gomuseum/gateway/internal/registry"
)

// costEpsilon keeps free models from dividing the cost score by zero.
const costEpsilon = 1e-6

// HealthSource exposes the stats monitor's verdicts to the selector.
type HealthSource interface {
	IsHealthy(modelID string) bool
	ProbeEligible(modelID string) bool
	LatencyEWMA(modelID string) (float64, bool)
}

// Selector computes the ranked candidate list.
type Selector struct {
	cfg    config.SelectorConfig
	reg    *registry.Registry
	health HealthSource
}

// New creates a selector over the registry. health may be nil, in which
// case every enabled model is considered healthy and latencies fall back
// to configured baselines.
func New(cfg config.SelectorConfig, reg *registry.Registry, health HealthSource) *Selector {
	return &Selector{cfg: cfg, reg: reg, health: health}
}

// Select returns candidates ordered by descending strategy score, ties
// broken by ascending model ID for determinism. Disabled models whose
// probe cooldown has elapsed are appended after all healthy candidates
// so a recovering model is only tried as a last resort.
//
// Returns models.ErrNoEligibleModel when no model satisfies the
// constraints.
func (s *Selector) Select(req models.SelectionRequest) (models.SelectionResult, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = models.Strategy(s.cfg.DefaultStrategy)
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy %q", models.ErrInvalidInput, strategy)
	}

	var healthy, probes []models.ModelDescriptor
	for _, desc := range s.reg.List() {
		if !s.matchesConstraints(desc, req.Constraints) {
			continue
		}
		if !fitsDeadline(desc, req.GlobalDeadline) {
			continue
		}
		switch {
		case desc.Enabled && s.isHealthy(desc.ID):
			healthy = append(healthy, desc)
		case s.probeEligible(desc.ID):
			probes = append(probes, desc)
		}
	}

	if len(healthy) == 0 && len(probes) == 0 {
		return nil, models.ErrNoEligibleModel
	}

	ranked := s.rank(healthy, strategy)
	ranked = append(ranked, s.rank(probes, strategy)...)

	metrics.ModelSelections.WithLabelValues(string(strategy), ranked[0].Descriptor.ID).Inc()
	return ranked, nil
}

func (s *Selector) isHealthy(modelID string) bool {
	return s.health == nil || s.health.IsHealthy(modelID)
}

func (s *Selector) probeEligible(modelID string) bool {
	return s.health != nil && s.health.ProbeEligible(modelID)
}

// fitsDeadline drops candidates whose baseline latency cannot fit inside
// the remaining global budget; attempting them would only burn the
// deadline. A zero deadline means no budget constraint.
func fitsDeadline(desc models.ModelDescriptor, deadline time.Time) bool {
	if deadline.IsZero() {
		return true
	}
	baseline := time.Duration(desc.BaselineLatencyMs) * time.Millisecond
	return baseline <= time.Until(deadline)
}

func (s *Selector) matchesConstraints(desc models.ModelDescriptor, c models.Constraints) bool {
	if c.MaxCost != nil && desc.CostPerCall > *c.MaxCost {
		return false
	}
	if c.MinAccuracy != nil && desc.AccuracyScore < *c.MinAccuracy {
		return false
	}
	if len(c.ProviderFilter) > 0 {
		allowed := false
		for _, p := range c.ProviderFilter {
			if p == desc.ProviderName {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}

// rank scores and orders one candidate pool.
func (s *Selector) rank(pool []models.ModelDescriptor, strategy models.Strategy) models.SelectionResult {
	if len(pool) == 0 {
		return nil
	}

	// Balanced scoring normalizes cost and speed against the best value
	// in the pool so the three components share the [0, 1] range.
	minCost, minLatency := s.poolMinimums(pool)

	ranked := make(models.SelectionResult, 0, len(pool))
	for _, desc := range pool {
		ranked = append(ranked, models.RankedModel{
			Descriptor: desc,
			Score:      s.score(desc, strategy, minCost, minLatency),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Descriptor.ID < ranked[j].Descriptor.ID
	})
	return ranked
}

func (s *Selector) poolMinimums(pool []models.ModelDescriptor) (minCost, minLatency float64) {
	minCost = pool[0].CostPerCall
	minLatency = s.effectiveLatency(pool[0])
	for _, desc := range pool[1:] {
		if desc.CostPerCall < minCost {
			minCost = desc.CostPerCall
		}
		if lat := s.effectiveLatency(desc); lat < minLatency {
			minLatency = lat
		}
	}
	return minCost, minLatency
}

// effectiveLatency prefers the observed EWMA over the configured
// baseline, so the speed strategy adapts to real provider behavior.
func (s *Selector) effectiveLatency(desc models.ModelDescriptor) float64 {
	if s.health != nil {
		if ewma, ok := s.health.LatencyEWMA(desc.ID); ok {
			return ewma
		}
	}
	return float64(desc.BaselineLatencyMs)
}

func (s *Selector) score(desc models.ModelDescriptor, strategy models.Strategy, minCost, minLatency float64) float64 {
	switch strategy {
	case models.StrategyCost:
		return 1 / (desc.CostPerCall + costEpsilon)
	case models.StrategyAccuracy:
		return desc.AccuracyScore
	case models.StrategySpeed:
		return 1 / (s.effectiveLatency(desc) + 1)
	case models.StrategyBalanced:
		costScore := (minCost + costEpsilon) / (desc.CostPerCall + costEpsilon)
		speedScore := (minLatency + 1) / (s.effectiveLatency(desc) + 1)
		return s.cfg.AccuracyWeight*desc.AccuracyScore +
			s.cfg.CostWeight*costScore +
			s.cfg.SpeedWeight*speedScore
	default:
		return 0
	}
}
